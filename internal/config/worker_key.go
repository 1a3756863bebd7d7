package config

// WorkerKeyStruct names the Redis queues shared by the violation worker
// and the archiver.
type WorkerKeyStruct struct {
	// PersistCheatsQueue holds violations waiting to be archived.
	PersistCheatsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistCheatsQueue: "persist_cheats_queue",
}

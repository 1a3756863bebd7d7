package model

// TimerState is the backend's view of the remaining time.
type TimerState struct {
	TimeRemainingSeconds int  `json:"time_remaining_seconds"`
	ExamStarted          bool `json:"exam_started"`
	AutoSubmit           bool `json:"auto_submit"`
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/model"
)

const (
	ArchiveBatchSize    = 50
	ArchiveBatchTimeout = 2 * time.Second
	PollTimeout         = 1 * time.Second // Must be >= 1s to satisfy Redis
	redisErrorPause     = 3 * time.Second
	requeuePause        = 2 * time.Second
)

// ArchiveJournal is the journal side of the archiver.
type ArchiveJournal interface {
	RecordViolations(ctx context.Context, batch []model.Violation) error
	RecordViolation(ctx context.Context, v model.Violation) error
}

// CheatArchiver drains persist_cheats_queue into the local journal, so a
// proctoring station can keep the violations of every kiosk publishing to
// the same Redis.
type CheatArchiver struct {
	rdb     *redis.Client
	journal ArchiveJournal
	log     zerolog.Logger

	pause time.Duration
}

// NewCheatArchiver creates the archiver.
func NewCheatArchiver(rdb *redis.Client, journal ArchiveJournal, log zerolog.Logger) *CheatArchiver {
	return &CheatArchiver{
		rdb:     rdb,
		journal: journal,
		log:     log.With().Str("component", "cheat_archiver").Logger(),
		pause:   requeuePause,
	}
}

// Start runs until ctx is cancelled. Call in a goroutine.
func (w *CheatArchiver) Start(ctx context.Context) {
	w.log.Info().Str("queue", config.WorkerKey.PersistCheatsQueue).Msg("Archiver started")

	buffer := make([]violationPayload, 0, ArchiveBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= ArchiveBatchSize || time.Since(lastFlush) >= ArchiveBatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistCheatsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Dur("pause", redisErrorPause).Msg("Redis connection error")
			select {
			case <-ctx.Done():
			case <-time.After(redisErrorPause):
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		p, ok := w.decode(result[1])
		if !ok {
			continue
		}
		buffer = append(buffer, p)
	}
}

// decode parses one queue item. Malformed items cannot be retried and are
// dropped.
func (w *CheatArchiver) decode(raw string) (violationPayload, bool) {
	var p violationPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed JSON")
		return p, false
	}
	if p.ExamID <= 0 {
		w.log.Error().Str("data", raw).Msg("Discarding violation without exam id")
		return p, false
	}
	if p.ViolationID == "" {
		p.ViolationID = uuid.NewString()
	}
	return p, true
}

func (p violationPayload) violation() model.Violation {
	return model.Violation{
		ID:     p.ViolationID,
		ExamID: p.ExamID,
		Reason: p.Reason,
		At:     time.Unix(p.Timestamp, 0).UTC(),
	}
}

// flushSafe tries the batch insert, then row by row, then requeues what
// still failed.
func (w *CheatArchiver) flushSafe(ctx context.Context, batch []violationPayload) {
	vs := make([]model.Violation, len(batch))
	for i, p := range batch {
		vs[i] = p.violation()
	}

	err := w.journal.RecordViolations(ctx, vs)
	if err == nil {
		w.log.Debug().Int("count", len(vs)).Msg("Archived violations")
		return
	}
	w.log.Warn().Err(err).Int("count", len(vs)).Msg("Batch insert failed, attempting row-by-row recovery")

	var requeue []violationPayload
	for i, v := range vs {
		if err := w.journal.RecordViolation(ctx, v); err != nil {
			w.log.Error().Err(err).Str("violation_id", v.ID).Msg("Insert failed, requeueing")
			requeue = append(requeue, batch[i])
		}
	}
	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *CheatArchiver) requeue(ctx context.Context, items []violationPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistCheatsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")

	// Avoid thrashing while the journal is unavailable.
	select {
	case <-ctx.Done():
	case <-time.After(w.pause):
	}
}

func (w *CheatArchiver) shutdown(buffer []violationPayload) {
	w.log.Info().Msg("Archiver stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(ctx, buffer)
	}
	w.log.Info().Msg("Archiver stopped")
}

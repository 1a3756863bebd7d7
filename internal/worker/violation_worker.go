package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/model"
)

const (
	ViolationBatchSize = 50
	// MaxPendingViolations bounds what is held for Redis during an outage.
	MaxPendingViolations = 1000
	RetryBackoffMin      = 500 * time.Millisecond
	RetryBackoffMax      = 30 * time.Second
	ShutdownTimeout      = 5 * time.Second
)

// ViolationJournal persists violations locally.
type ViolationJournal interface {
	RecordViolation(ctx context.Context, v model.Violation) error
}

// ViolationWorker fans recorded violations out to the local journal and,
// when configured, to Redis for live monitoring.
type ViolationWorker struct {
	in      <-chan model.Violation
	rdb     *redis.Client
	journal ViolationJournal
	log     zerolog.Logger

	// send delivers a batch; replaced in tests.
	send func(ctx context.Context, batch []violationPayload) error
}

// NewViolationWorker creates the worker. rdb and journal may be nil.
func NewViolationWorker(in <-chan model.Violation, rdb *redis.Client, journal ViolationJournal, log zerolog.Logger) *ViolationWorker {
	w := &ViolationWorker{
		in:      in,
		rdb:     rdb,
		journal: journal,
		log:     log.With().Str("component", "violation_worker").Logger(),
	}
	w.send = w.publish
	return w
}

type violationPayload struct {
	Type        string `json:"type"`
	ViolationID string `json:"violation_id"`
	ExamID      int64  `json:"exam_id"`
	Reason      string `json:"reason"`
	Timestamp   int64  `json:"timestamp"`
}

func newViolationPayload(v model.Violation) violationPayload {
	return violationPayload{
		Type:        "cheat",
		ViolationID: v.ID,
		ExamID:      v.ExamID,
		Reason:      v.Reason,
		Timestamp:   v.At.Unix(),
	}
}

// Start runs until ctx is cancelled or the input channel is closed. Call in a goroutine.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Bool("redis", w.rdb != nil).Bool("journal", w.journal != nil).Msg("Worker started")

	pending := make([]violationPayload, 0, ViolationBatchSize)
	backoff := RetryBackoffMin
	backingOff := false
	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown(pending)
			return

		case v, ok := <-w.in:
			if !ok {
				w.shutdown(pending)
				return
			}
			w.persist(ctx, v)
			if w.rdb == nil {
				continue
			}
			pending = w.enqueue(pending, newViolationPayload(v))
			// Drain whatever else is already buffered into the same batch.
			pending = w.collect(ctx, pending)
			if backingOff {
				continue
			}

			if err := w.send(ctx, pending); err != nil {
				w.log.Warn().Err(err).Int("count", len(pending)).Dur("backoff", backoff).Msg("Redis publish failed, will retry")
				retry.Reset(backoff)
				backoff = nextBackoff(backoff)
				backingOff = true
				continue
			}
			pending = pending[:0]

		case <-retry.C:
			if len(pending) == 0 {
				backoff, backingOff = RetryBackoffMin, false
				continue
			}
			if err := w.send(ctx, pending); err != nil {
				w.log.Warn().Err(err).Int("count", len(pending)).Dur("backoff", backoff).Msg("Redis retry failed")
				retry.Reset(backoff)
				backoff = nextBackoff(backoff)
				continue
			}
			w.log.Info().Int("count", len(pending)).Msg("Requeued violations delivered")
			pending = pending[:0]
			backoff, backingOff = RetryBackoffMin, false
		}
	}
}

// enqueue appends p, dropping the oldest pending violations once more than
// MaxPendingViolations are waiting. Dropped ones are still in the journal.
func (w *ViolationWorker) enqueue(pending []violationPayload, p violationPayload) []violationPayload {
	pending = append(pending, p)
	if over := len(pending) - MaxPendingViolations; over > 0 {
		w.log.Error().Int("dropped", over).Str("violation_id", pending[0].ViolationID).
			Msg("CRITICAL: Pending violation buffer full, dropping oldest. Data loss occurred.")
		pending = append(pending[:0], pending[over:]...)
	}
	return pending
}

// collect drains up to ViolationBatchSize buffered violations into pending.
func (w *ViolationWorker) collect(ctx context.Context, pending []violationPayload) []violationPayload {
	for n := 0; n < ViolationBatchSize; n++ {
		select {
		case v, ok := <-w.in:
			if !ok {
				return pending
			}
			w.persist(ctx, v)
			pending = w.enqueue(pending, newViolationPayload(v))
		default:
			return pending
		}
	}
	return pending
}

func (w *ViolationWorker) persist(ctx context.Context, v model.Violation) {
	if w.journal == nil {
		return
	}
	if err := w.journal.RecordViolation(ctx, v); err != nil {
		w.log.Error().Err(err).Str("violation_id", v.ID).Msg("Journal write failed")
	}
}

// publish announces each violation on the exam monitor channel and queues it
// for persistence, all in one pipeline.
func (w *ViolationWorker) publish(ctx context.Context, batch []violationPayload) error {
	pipe := w.rdb.Pipeline()
	for _, p := range batch {
		data, err := json.Marshal(p)
		if err != nil {
			w.log.Error().Err(err).Str("violation_id", p.ViolationID).Msg("Discarding unencodable violation")
			continue
		}
		pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(p.ExamID), data)
		pipe.RPush(ctx, config.WorkerKey.PersistCheatsQueue, data)
		pipe.RPush(ctx, config.CacheKey.ExamViolationsKey(p.ExamID), data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (w *ViolationWorker) shutdown(pending []violationPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining violations...")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	pending = w.collect(ctx, pending)
	if w.rdb == nil || len(pending) == 0 {
		w.log.Info().Msg("Worker stopped")
		return
	}
	if err := w.send(ctx, pending); err != nil {
		w.log.Error().Err(err).Int("count", len(pending)).Msg("CRITICAL: Failed to flush violations to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(pending)).Msg("Worker stopped")
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > RetryBackoffMax {
		return RetryBackoffMax
	}
	return d
}

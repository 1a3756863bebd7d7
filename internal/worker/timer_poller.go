package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

// TimerSource returns the server's remaining time for an exam.
type TimerSource interface {
	GetTimer(ctx context.Context, examID int64) (*model.TimerState, error)
}

// TimerPoller polls the backend clock at a fixed cadence. The server value
// always replaces the local one; nothing is counted down locally.
type TimerPoller struct {
	src      TimerSource
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTimerPoller creates a poller. interval defaults to one second.
func NewTimerPoller(src TimerSource, interval time.Duration, log zerolog.Logger) *TimerPoller {
	if interval <= 0 {
		interval = time.Second
	}
	return &TimerPoller{
		src:      src,
		interval: interval,
		log:      log.With().Str("component", "timer_poller").Logger(),
	}
}

// Start replaces any running loop with a new one for examID. onUpdate gets
// every successful server value. onExpire runs once, after the loop has
// exited, when the backend signals auto-submit.
func (p *TimerPoller) Start(ctx context.Context, examID int64, onUpdate func(seconds int), onExpire func()) {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		expired := p.run(ctx, examID, onUpdate)
		close(done)
		if expired && onExpire != nil {
			onExpire()
		}
	}()
}

// Stop cancels the loop and waits for it to exit. Safe to call from onExpire.
func (p *TimerPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a loop is active.
func (p *TimerPoller) Running() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (p *TimerPoller) run(ctx context.Context, examID int64, onUpdate func(int)) bool {
	log := p.log.With().Int64("exam_id", examID).Logger()
	log.Debug().Dur("interval", p.interval).Msg("Timer polling started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Timer polling stopped")
			return false
		case <-ticker.C:
		}

		state, err := p.src.GetTimer(ctx, examID)
		if ctx.Err() != nil {
			return false
		}
		if err != nil {
			log.Warn().Err(err).Msg("Timer poll failed, retrying next tick")
			continue
		}

		if state.AutoSubmit {
			log.Info().Msg("Backend signalled auto submit")
			return true
		}
		if onUpdate != nil {
			onUpdate(state.TimeRemainingSeconds)
		}
	}
}

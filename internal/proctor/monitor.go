// Package proctor records proctoring violations and enforces the
// auto-submit policy.
package proctor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

// Violation reasons.
const (
	ReasonTabSwitch      = "Tab switch detected"
	ReasonBlur           = "Window blur detected"
	ReasonExitFullscreen = "Exited fullscreen"
)

const (
	fullscreenBlocked = "Browser blocked fullscreen. Please allow it or press F11 to continue."
	autoSubmitFailed  = "Auto submit failed: "
)

var (
	// ErrNoRequester is returned by ReturnToFullscreen without a requester.
	ErrNoRequester = errors.New("fullscreen is not supported, press F11 manually")
	// ErrFullscreenBlocked is returned when the kiosk refused fullscreen.
	ErrFullscreenBlocked = errors.New(fullscreenBlocked)
)

// EventKind classifies monitor notifications.
type EventKind string

const (
	EventViolation       EventKind = "violation"
	EventPrompt          EventKind = "prompt_fullscreen"
	EventPromptDismissed EventKind = "prompt_dismissed"
	EventSuppressed      EventKind = "suppressed"
	EventEscalated       EventKind = "escalated"
	EventEscalateFailed  EventKind = "escalate_failed"
)

// Event is pushed to observers after each state change.
type Event struct {
	Kind      EventKind        `json:"kind"`
	Violation *model.Violation `json:"violation,omitempty"`
	Count     int              `json:"count"`
	Message   string           `json:"message,omitempty"`
}

// Config holds the policy knobs.
type Config struct {
	Threshold    int
	LogSize      int
	PauseDefault time.Duration
}

// Status is a copy of the monitor state.
type Status struct {
	Active          bool              `json:"active"`
	Violations      []model.Violation `json:"violations"`
	LastMessage     string            `json:"last_message"`
	NeedsFullscreen bool              `json:"needs_fullscreen"`
	Paused          bool              `json:"paused"`
	Escalated       bool              `json:"escalated"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithRequester sets the fullscreen requester.
func WithRequester(r FullscreenRequester) Option {
	return func(m *Monitor) { m.requester = r }
}

// WithSink forwards every recorded violation to ch without blocking.
func WithSink(ch chan<- model.Violation) Option {
	return func(m *Monitor) { m.sink = ch }
}

// Monitor is the proctoring state machine for one exam screen session.
type Monitor struct {
	cfg       Config
	log       zerolog.Logger
	escalator Escalator
	requester FullscreenRequester
	sink      chan<- model.Violation
	now       func() time.Time

	mu              sync.Mutex
	examID          int64
	active          bool
	violations      []model.Violation
	lastMessage     string
	needsFullscreen bool
	escalated       bool
	pauseUntil      time.Time
	pauseGen        uint64
	stopWatch       context.CancelFunc
	unsubscribe     func()
	observers       []func(Event)
}

// New creates a monitor. escalator is called at most once per Start.
func New(cfg Config, escalator Escalator, log zerolog.Logger, opts ...Option) *Monitor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 4
	}
	if cfg.LogSize <= 0 {
		cfg.LogSize = 5
	}
	if cfg.PauseDefault <= 0 {
		cfg.PauseDefault = 15 * time.Second
	}
	m := &Monitor{
		cfg:       cfg,
		log:       log.With().Str("component", "proctor").Logger(),
		escalator: escalator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe registers fn for every event. fn must not block.
func (m *Monitor) Observe(fn func(Event)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Start begins a new session for examID, clearing the violation log, and
// subscribes to source when non-nil.
func (m *Monitor) Start(examID int64, source SignalSource) {
	m.Stop()

	m.mu.Lock()
	m.examID = examID
	m.active = true
	m.violations = nil
	m.lastMessage = ""
	m.needsFullscreen = false
	m.escalated = false
	m.mu.Unlock()

	if source != nil {
		unsub := source.Subscribe(m.HandleSignal)
		m.mu.Lock()
		m.unsubscribe = unsub
		m.mu.Unlock()
	}
	m.log.Info().Int64("exam_id", examID).Msg("Proctoring started")
}

// Stop unsubscribes, cancels any pause and dismisses the prompt. The
// violation log is kept for display until the next Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	wasActive := m.active
	m.active = false
	m.needsFullscreen = false
	m.pauseUntil = time.Time{}
	m.pauseGen++
	unsub := m.unsubscribe
	m.unsubscribe = nil
	stop := m.stopWatch
	m.stopWatch = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	if unsub != nil {
		unsub()
	}
	if wasActive {
		m.log.Info().Msg("Proctoring stopped")
	}
}

// Pause suppresses violation recording for d (the default when d <= 0).
func (m *Monitor) Pause(d time.Duration) {
	m.mu.Lock()
	m.pauseLocked(d)
	m.mu.Unlock()
}

func (m *Monitor) pauseLocked(d time.Duration) uint64 {
	if d <= 0 {
		d = m.cfg.PauseDefault
	}
	m.pauseUntil = m.now().Add(d)
	m.pauseGen++
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	return m.pauseGen
}

// PauseUntilClosed pauses for d and lifts the pause early once closed fires.
func (m *Monitor) PauseUntilClosed(d time.Duration, closed <-chan struct{}) {
	m.mu.Lock()
	gen := m.pauseLocked(d)
	ctx, cancel := context.WithCancel(context.Background())
	m.stopWatch = cancel
	wait := m.pauseUntil.Sub(m.now())
	m.mu.Unlock()

	go func() {
		defer cancel()
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-closed:
			m.mu.Lock()
			if m.pauseGen == gen {
				m.pauseUntil = time.Time{}
				m.log.Debug().Msg("Pause lifted, window closed")
			}
			m.mu.Unlock()
		case <-timer.C:
		case <-ctx.Done():
		}
	}()
}

// Paused reports whether a pause window is active.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pausedLocked()
}

func (m *Monitor) pausedLocked() bool {
	return m.now().Before(m.pauseUntil)
}

// HandleSignal applies one kiosk signal.
func (m *Monitor) HandleSignal(sig Signal) {
	switch sig.Kind {
	case SignalContextMenu:
		m.emit(Event{Kind: EventSuppressed, Count: m.count()})
		return
	case SignalVisibility:
		if sig.Hidden {
			m.record(ReasonTabSwitch)
		}
	case SignalBlur:
		m.record(ReasonBlur)
	case SignalFullscreen:
		if sig.Fullscreen {
			m.dismissPrompt()
			return
		}
		m.record(ReasonExitFullscreen)
	default:
		m.log.Debug().Str("kind", string(sig.Kind)).Msg("Ignoring unknown signal")
	}
}

func (m *Monitor) record(reason string) {
	m.mu.Lock()
	if !m.active || m.pausedLocked() {
		m.mu.Unlock()
		return
	}

	v := model.Violation{
		ID:     uuid.New().String(),
		ExamID: m.examID,
		Reason: reason,
		At:     m.now().UTC(),
	}
	m.violations = append(m.violations, v)
	if len(m.violations) > m.cfg.LogSize {
		m.violations = append([]model.Violation(nil), m.violations[len(m.violations)-m.cfg.LogSize:]...)
	}
	m.lastMessage = reason
	count := len(m.violations)
	escalate := count >= m.cfg.Threshold && !m.escalated
	if escalate {
		m.escalated = true
	} else {
		m.needsFullscreen = true
	}
	examID := m.examID
	m.mu.Unlock()

	m.log.Warn().Int64("exam_id", examID).Str("reason", reason).Int("count", count).Msg("Violation recorded")
	m.forward(v)
	m.emit(Event{Kind: EventViolation, Violation: &v, Count: count, Message: reason})

	if !escalate {
		m.emit(Event{Kind: EventPrompt, Count: count, Message: reason})
		return
	}
	m.runEscalation(examID, count)
}

func (m *Monitor) runEscalation(examID int64, count int) {
	m.log.Warn().Int64("exam_id", examID).Int("count", count).Msg("Violation threshold reached, submitting")

	err := m.escalator.Escalate(context.Background(), examID)
	if err == nil {
		m.emit(Event{Kind: EventEscalated, Count: count})
		return
	}

	msg := autoSubmitFailed + err.Error()
	m.log.Error().Err(err).Int64("exam_id", examID).Msg("Auto submit failed")

	m.mu.Lock()
	m.lastMessage = msg
	if m.active {
		m.needsFullscreen = true
	}
	m.mu.Unlock()

	m.emit(Event{Kind: EventEscalateFailed, Count: count, Message: msg})
	m.emit(Event{Kind: EventPrompt, Count: count, Message: msg})
}

func (m *Monitor) forward(v model.Violation) {
	if m.sink == nil {
		return
	}
	select {
	case m.sink <- v:
	default:
		m.log.Warn().Str("violation_id", v.ID).Msg("Violation sink full, dropping")
	}
}

// ReturnToFullscreen asks the kiosk for fullscreen and dismisses the prompt
// when it was entered. On failure the prompt stays.
func (m *Monitor) ReturnToFullscreen(ctx context.Context) error {
	if m.requester == nil {
		return ErrNoRequester
	}
	entered, err := m.requester.RequestFullscreen(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Fullscreen request failed")
		return ErrFullscreenBlocked
	}
	if !entered {
		return ErrFullscreenBlocked
	}
	m.dismissPrompt()
	return nil
}

// Dismiss clears the prompt when the candidate proceeds to submission.
func (m *Monitor) Dismiss() {
	m.dismissPrompt()
}

func (m *Monitor) dismissPrompt() {
	m.mu.Lock()
	was := m.needsFullscreen
	m.needsFullscreen = false
	count := len(m.violations)
	m.mu.Unlock()

	if was {
		m.emit(Event{Kind: EventPromptDismissed, Count: count})
	}
}

// Status returns a copy of the current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Active:          m.active,
		Violations:      append([]model.Violation(nil), m.violations...),
		LastMessage:     m.lastMessage,
		NeedsFullscreen: m.needsFullscreen,
		Paused:          m.pausedLocked(),
		Escalated:       m.escalated,
	}
}

func (m *Monitor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.violations)
}

func (m *Monitor) emit(ev Event) {
	m.mu.Lock()
	observers := append([]func(Event){}, m.observers...)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

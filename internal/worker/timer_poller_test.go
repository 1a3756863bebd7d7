package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

type scriptedTimer struct {
	mu    sync.Mutex
	steps []func() (*model.TimerState, error)
	calls int
}

func (s *scriptedTimer) GetTimer(ctx context.Context, examID int64) (*model.TimerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i]()
}

func (s *scriptedTimer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func remaining(n int) func() (*model.TimerState, error) {
	return func() (*model.TimerState, error) {
		return &model.TimerState{TimeRemainingSeconds: n, ExamStarted: true}, nil
	}
}

func failing() (*model.TimerState, error) { return nil, errors.New("connection refused") }

func expired() (*model.TimerState, error) {
	return &model.TimerState{ExamStarted: true, AutoSubmit: true}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestTimerPollerOverwritesAndExpiresOnce(t *testing.T) {
	src := &scriptedTimer{steps: []func() (*model.TimerState, error){
		remaining(120), failing, remaining(500), expired,
	}}
	p := NewTimerPoller(src, 5*time.Millisecond, zerolog.Nop())

	var mu sync.Mutex
	var seen []int
	var expiries int32
	p.Start(context.Background(), 1, func(s int) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}, func() {
		atomic.AddInt32(&expiries, 1)
		p.Stop()
	})

	waitFor(t, "expiry", func() bool { return atomic.LoadInt32(&expiries) == 1 })
	time.Sleep(30 * time.Millisecond)

	if n := atomic.LoadInt32(&expiries); n != 1 {
		t.Errorf("expected one expiry, got %d", n)
	}
	if src.Calls() != 4 {
		t.Errorf("expected polling to stop after auto submit, got %d calls", src.Calls())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 120 || seen[1] != 500 {
		t.Errorf("expected server values applied as-is, got %v", seen)
	}
	if p.Running() {
		t.Error("expected poller stopped")
	}
}

func TestTimerPollerKeepsGoingOnFailure(t *testing.T) {
	src := &scriptedTimer{steps: []func() (*model.TimerState, error){failing}}
	p := NewTimerPoller(src, 2*time.Millisecond, zerolog.Nop())

	var expired int32
	p.Start(context.Background(), 1, nil, func() { atomic.AddInt32(&expired, 1) })
	waitFor(t, "several polls", func() bool { return src.Calls() >= 5 })

	if !p.Running() {
		t.Error("expected poller to keep running after failures")
	}
	p.Stop()
	calls := src.Calls()
	time.Sleep(20 * time.Millisecond)

	if src.Calls() != calls {
		t.Errorf("expected no polls after Stop, got %d more", src.Calls()-calls)
	}
	if atomic.LoadInt32(&expired) != 0 {
		t.Error("failures must never expire the exam")
	}
}

func TestTimerPollerRestartReplacesLoop(t *testing.T) {
	src := &scriptedTimer{steps: []func() (*model.TimerState, error){remaining(60)}}
	p := NewTimerPoller(src, 2*time.Millisecond, zerolog.Nop())

	p.Start(context.Background(), 1, nil, nil)
	p.Start(context.Background(), 2, nil, nil)
	waitFor(t, "polling", func() bool { return src.Calls() >= 2 })
	p.Stop()
	p.Stop()

	if p.Running() {
		t.Error("expected stopped")
	}
}

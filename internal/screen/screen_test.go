package screen

import (
	"errors"
	"sync"
	"testing"
)

func TestAllowedEdges(t *testing.T) {
	all := []Screen{Setup, Ready, Exam, Submission, Evaluation}
	allowed := map[[2]Screen]bool{
		{Setup, Ready}:           true,
		{Ready, Exam}:            true,
		{Exam, Submission}:       true,
		{Submission, Evaluation}: true,
	}

	for _, from := range all {
		for _, to := range all {
			if got := Allowed(from, to); got != allowed[[2]Screen{from, to}] {
				t.Errorf("Allowed(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestTransitionRejectsSkips(t *testing.T) {
	c := NewController()

	err := c.Transition(Exam)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if c.Current() != Setup || c.Epoch() != 0 {
		t.Errorf("state changed on rejected transition: %s epoch %d", c.Current(), c.Epoch())
	}

	for _, to := range []Screen{Ready, Exam, Submission, Evaluation} {
		if err := c.Transition(to); err != nil {
			t.Fatalf("Transition(%s): %v", to, err)
		}
	}
	if c.Epoch() != 4 {
		t.Errorf("expected epoch 4, got %d", c.Epoch())
	}
	if err := c.Transition(Exam); err == nil {
		t.Error("expected evaluation -> exam to be rejected")
	}
}

func TestHooksAndReset(t *testing.T) {
	c := NewController()
	var log []string
	c.OnEnter(Exam, func(from, to Screen) { log = append(log, "enter:"+string(from)) })
	c.OnLeave(Exam, func(from, to Screen) { log = append(log, "leave:"+string(to)) })
	c.OnReset(func() { log = append(log, "reset") })

	c.Transition(Ready)
	c.Transition(Exam)
	c.Reset()

	want := []string{"enter:ready", "leave:setup", "reset"}
	if len(log) != len(want) {
		t.Fatalf("expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("hook %d: expected %q, got %q", i, want[i], log[i])
		}
	}
	if c.Current() != Setup {
		t.Errorf("expected setup after reset, got %s", c.Current())
	}
}

func TestTransitionFromRace(t *testing.T) {
	c := NewController()
	c.Transition(Ready)
	c.Transition(Exam)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TransitionFrom(Exam, Submission) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
	if c.Current() != Submission {
		t.Errorf("expected submission, got %s", c.Current())
	}
}

// Package screen holds the five-state screen controller.
package screen

import (
	"errors"
	"fmt"
	"sync"
)

// Screen is one of the five top-level views.
type Screen string

const (
	Setup      Screen = "setup"
	Ready      Screen = "ready"
	Exam       Screen = "exam"
	Submission Screen = "submission"
	Evaluation Screen = "evaluation"
)

// ErrInvalidTransition is returned for edges outside the allowed graph.
var ErrInvalidTransition = errors.New("invalid screen transition")

var edges = map[Screen]Screen{
	Setup:      Ready,
	Ready:      Exam,
	Exam:       Submission,
	Submission: Evaluation,
}

// Allowed reports whether from→to is a permitted forward edge.
func Allowed(from, to Screen) bool {
	next, ok := edges[from]
	return ok && next == to
}

// Hook observes a transition. Hooks run synchronously on the goroutine that
// made the transition, after the state has changed.
type Hook func(from, to Screen)

// Controller is the screen FSM.
type Controller struct {
	mu      sync.Mutex
	current Screen
	epoch   uint64

	onLeave map[Screen][]Hook
	onEnter map[Screen][]Hook
	onReset []func()
}

// NewController starts on the setup screen.
func NewController() *Controller {
	return &Controller{
		current: Setup,
		onLeave: make(map[Screen][]Hook),
		onEnter: make(map[Screen][]Hook),
	}
}

// Current returns the active screen.
func (c *Controller) Current() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Epoch increments on every successful transition. In-flight work captures it
// and drops its result if it changed.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// OnEnter registers fn to run after entering s.
func (c *Controller) OnEnter(s Screen, fn Hook) {
	c.mu.Lock()
	c.onEnter[s] = append(c.onEnter[s], fn)
	c.mu.Unlock()
}

// OnLeave registers fn to run after leaving s.
func (c *Controller) OnLeave(s Screen, fn Hook) {
	c.mu.Lock()
	c.onLeave[s] = append(c.onLeave[s], fn)
	c.mu.Unlock()
}

// OnReset registers fn to run on Reset.
func (c *Controller) OnReset(fn func()) {
	c.mu.Lock()
	c.onReset = append(c.onReset, fn)
	c.mu.Unlock()
}

// Transition moves to the next screen. The state is unchanged on error.
func (c *Controller) Transition(to Screen) error {
	return c.move(nil, to)
}

// TransitionFrom performs from→to only if from is still current. It lets
// concurrent triggers (timer expiry, manual finish) race safely.
func (c *Controller) TransitionFrom(from, to Screen) error {
	return c.move(&from, to)
}

func (c *Controller) move(expect *Screen, to Screen) error {
	c.mu.Lock()
	from := c.current
	if expect != nil && *expect != from {
		c.mu.Unlock()
		return fmt.Errorf("%w: expected %s, on %s", ErrInvalidTransition, *expect, from)
	}
	if !Allowed(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.current = to
	c.epoch++
	leave := append([]Hook(nil), c.onLeave[from]...)
	enter := append([]Hook(nil), c.onEnter[to]...)
	c.mu.Unlock()

	for _, fn := range leave {
		fn(from, to)
	}
	for _, fn := range enter {
		fn(from, to)
	}
	return nil
}

// Reset returns to setup from any screen and runs reset hooks.
func (c *Controller) Reset() {
	c.mu.Lock()
	from := c.current
	c.current = Setup
	c.epoch++
	leave := append([]Hook(nil), c.onLeave[from]...)
	resets := append([]func(){}, c.onReset...)
	c.mu.Unlock()

	if from != Setup {
		for _, fn := range leave {
			fn(from, Setup)
		}
	}
	for _, fn := range resets {
		fn()
	}
}

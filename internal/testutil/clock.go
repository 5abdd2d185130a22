// Package testutil holds deterministic collaborators for tests and the
// scenario harness.
package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is where a DeterministicClock starts.
var DefaultEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a wall clock that advances by a fixed step on every
// call to Now. It satisfies engine.Clock.
//
// Unlike a frozen clock, consecutive timestamps differ, so run durations
// and started/finished ordering are observable, yet every run of the same
// test produces the same values.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int64
}

// NewDeterministicClock creates a clock at DefaultEpoch stepping one second.
//
// The first call to Now() returns DefaultEpoch + 1s.
func NewDeterministicClock() *DeterministicClock {
	return NewStepClock(DefaultEpoch, time.Second)
}

// NewStepClock creates a clock starting at start, advancing step per call.
func NewStepClock(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start.UTC(), step: step}
}

// Now advances the clock and returns the new time.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.start.Add(time.Duration(c.calls) * c.step)
}

// Current returns the time of the last Now call without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.calls) * c.step)
}

// Reset rewinds the clock to its start.
//
// Used for test reuse. After Reset(), the next Now() returns start + step.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}

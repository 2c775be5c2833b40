package testutil

import (
	"sync"
	"time"
)

// FixedClock is a deterministic wall clock for tests.
//
// Every call to Now returns the configured instant plus step times the number
// of previous calls, so timestamps embedded in run folders are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int
}

// NewFixedClock creates a clock that always returns start.
func NewFixedClock(start time.Time) *FixedClock {
	return &FixedClock{start: start}
}

// NewTickingClock creates a clock that advances by step on every call.
func NewTickingClock(start time.Time, step time.Duration) *FixedClock {
	return &FixedClock{start: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Reset rewinds the clock to its start.
func (c *FixedClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}

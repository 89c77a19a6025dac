package testutil

import (
	"sync"
	"time"
)

// FakeNow is a settable wall clock for tests.
//
// The engine stamps PendingAction.IssuedAt and the console computes
// "placed today" from wall time; FakeNow keeps both deterministic.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeNow struct {
	mu sync.Mutex
	t  time.Time
}

// NewFakeNow creates a clock frozen at t.
func NewFakeNow(t time.Time) *FakeNow {
	return &FakeNow{t: t}
}

// Now returns the current fake time. Its method value satisfies
// func() time.Time.
func (c *FakeNow) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FakeNow) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Set moves the clock to t.
func (c *FakeNow) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

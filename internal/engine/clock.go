package engine

import "sync/atomic"

// Clock stamps every applied change with a sequence number. Sequence
// numbers totally order changes across orders and sources; the journal is
// keyed by them. Safe for concurrent use.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a clock whose first Next is last+1, so a process
// restarted over an existing journal never reuses a seq.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.last.Store(last)
	return c
}

// Next advances the clock.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current is the last seq handed out, 0 if none.
func (c *Clock) Current() int64 {
	return c.last.Load()
}

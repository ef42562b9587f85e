package engine

import "sync/atomic"

// Clock issues checkpoint seqs. Seqs only grow: the store refuses a
// checkpoint whose seq does not exceed the stored one, which keeps two
// writers on the same database from overwriting each other silently.
// Wall time never takes part in ordering.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock for an empty store.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a clock that continues after last, the highest seq
// already checkpointed.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.last.Store(last)
	return c
}

// Next issues the seq for the next checkpoint.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current is the last issued seq, 0 before the first checkpoint.
func (c *Clock) Current() int64 {
	return c.last.Load()
}

// Observe moves the clock up to seq when a checkpoint written elsewhere is
// ahead of it. A seq at or below Current is ignored.
func (c *Clock) Observe(seq int64) {
	for {
		cur := c.last.Load()
		if seq <= cur || c.last.CompareAndSwap(cur, seq) {
			return
		}
	}
}

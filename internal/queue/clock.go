package queue

import "sync/atomic"

// Clock is the monotonic logical clock task transitions are stamped with.
//
// Seq numbers give deterministic ordering without wall-clock race
// conditions, and make trace comparison byte-stable. Implemented by the
// atomic clock below (production) and testutil.DeterministicClock (tests).
type Clock interface {
	// Next returns the next sequence number and increments the clock.
	Next() int64
	// Current returns the current sequence number without incrementing.
	Current() int64
}

// NewClock creates a monotonic clock starting at 0.
// Safe for concurrent use (atomic operations).
func NewClock() Clock {
	return &atomicClock{}
}

type atomicClock struct {
	seq atomic.Int64
}

func (c *atomicClock) Next() int64 {
	return c.seq.Add(1)
}

func (c *atomicClock) Current() int64 {
	return c.seq.Load()
}

// Package sched provides the pluggable "run this callback, return a
// canceller" abstraction the task queue uses to decide when a scheduled
// task's effect actually runs.
package sched

import (
	"sync"
	"time"
)

// Scheduler decides when a queued task's flush runs. Schedule must either
// run flush (now or later) or be cancelled; the returned cancel func
// prevents a not-yet-started flush from ever running and is safe to call
// more than once, including after the flush ran.
type Scheduler interface {
	Schedule(flush func()) (cancel func())
}

// Immediate runs the flush synchronously inside Schedule.
// The returned cancel is a no-op: by the time Schedule returns, the flush
// already ran.
func Immediate() Scheduler { return immediate{} }

type immediate struct{}

func (immediate) Schedule(flush func()) func() {
	flush()
	return func() {}
}

// After defers the flush by a fixed delay. This is the closest analogue
// to the source domain's frame/idle schedulers: a task whose effect should
// land on the next frame uses After(FrameInterval).
func After(d time.Duration) Scheduler { return after{d} }

// FrameInterval approximates one frame at 60Hz.
const FrameInterval = 16 * time.Millisecond

type after struct {
	d time.Duration
}

func (a after) Schedule(flush func()) func() {
	var once sync.Once
	timer := time.AfterFunc(a.d, func() {
		once.Do(flush)
	})
	return func() {
		timer.Stop()
		// Mark the flush consumed even if the timer already fired the
		// goroutine but lost the race: cancel wins.
		once.Do(func() {})
	}
}

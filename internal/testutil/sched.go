package testutil

import "sync"

// ManualScheduler collects scheduled flushes and runs them only when the
// test says so. It exercises the "scheduled but never started" half of
// supersession: a task parked here can be aborted before its handler
// ever runs.
//
// Implements sched.Scheduler.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []*manualEntry
}

type manualEntry struct {
	flush     func()
	cancelled bool
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule parks the flush until FireAll (or Fire) is called.
func (m *ManualScheduler) Schedule(flush func()) func() {
	entry := &manualEntry{flush: flush}
	m.mu.Lock()
	m.pending = append(m.pending, entry)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		entry.cancelled = true
		m.mu.Unlock()
	}
}

// Pending returns the number of parked, not-cancelled flushes.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.pending {
		if !e.cancelled {
			n++
		}
	}
	return n
}

// FireAll runs every parked flush that was not cancelled, in schedule
// order, and clears the queue.
func (m *ManualScheduler) FireAll() {
	m.mu.Lock()
	entries := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, e := range entries {
		if !e.cancelled {
			e.flush()
		}
	}
}

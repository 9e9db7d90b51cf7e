package harness

import (
	"context"
	"sync"

	"github.com/roach88/playback/internal/queue"
	"github.com/roach88/playback/internal/state"
	"github.com/roach88/playback/internal/testutil"
	"github.com/roach88/playback/internal/trace"
)

// recorder funnels queue transitions and state change rounds into a
// trace store, in logical-clock order. It also lets the runner wait for
// an invocation's terminal transition, which lands just after the
// handle settles.
type recorder struct {
	mu    sync.Mutex
	cond  *sync.Cond
	store *trace.Store
	clock *testutil.DeterministicClock

	events   []trace.Event
	terminal map[string]bool
	err      error
}

func newRecorder(store *trace.Store, clock *testutil.DeterministicClock) *recorder {
	r := &recorder{
		store:    store,
		clock:    clock,
		terminal: map[string]bool{},
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// watchQueue subscribes to task transitions. Idle resets are not part
// of a recording.
func (r *recorder) watchQueue(q *queue.Queue) func() {
	return q.Subscribe(func(t queue.Task) {
		if t.Status == queue.StatusIdle {
			return
		}
		code := ""
		if t.Err != nil {
			code = string(queue.CodeOf(t.Err))
		}
		r.record(trace.Event{
			Seq:          t.Seq,
			Kind:         trace.KindTransition,
			Task:         t.Name,
			TaskKey:      t.Key,
			InvocationID: t.InvocationID,
			Status:       string(t.Status),
			Error:        code,
		})
	})
}

// watchState subscribes to change rounds, snapshotting the container
// after each flush.
func (r *recorder) watchState(st *state.State) func() {
	return st.Subscribe(func(changed []string) {
		r.record(trace.Event{
			Seq:     r.clock.Next(),
			Kind:    trace.KindState,
			Changed: changed,
			State:   st.Snapshot(),
		})
	})
}

func (r *recorder) record(ev trace.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch ev.Kind {
	case trace.KindState:
		err = r.store.RecordState(context.Background(), ev)
	default:
		err = r.store.RecordTransition(context.Background(), ev)
	}
	if err != nil && r.err == nil {
		r.err = err
	}

	r.events = append(r.events, ev)
	if ev.Kind == trace.KindTransition && ev.InvocationID != "" {
		switch queue.Status(ev.Status) {
		case queue.StatusSuccess, queue.StatusError:
			r.terminal[ev.InvocationID] = true
		}
	}
	r.cond.Broadcast()
}

// waitTerminal blocks until the invocation's terminal transition has
// been recorded. A settled handle guarantees the transition is at most
// one notification away.
func (r *recorder) waitTerminal(ctx context.Context, invocationID string) error {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for !r.terminal[invocationID] {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.cond.Wait()
	}
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *recorder) Events() []trace.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]trace.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Err reports the first storage failure, if any.
func (r *recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

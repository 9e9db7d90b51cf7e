package queue

import (
	"context"
	"sync"
)

// Handle is the waitable result of an enqueued task.
//
// A handle settles exactly once: with the handler's result, or with a
// *Error describing rejection, cancellation, supersession, or handler
// failure. When a task is cancelled, its context is cancelled strictly
// before the handle settles, so a handler watching the context can stop
// before the waiter observes the rejection.
type Handle struct {
	name string
	key  string
	id   string

	once sync.Once
	done chan struct{}

	result any
	err    error
}

func newHandle(name, key, id string) *Handle {
	return &Handle{name: name, key: key, id: id, done: make(chan struct{})}
}

// NewRejectedHandle creates a handle that is already rejected. Used for
// requests refused before they reach the queue (destroyed store, no
// target attached).
func NewRejectedHandle(name, key string, err error) *Handle {
	h := newHandle(name, key, "")
	h.settle(nil, err)
	return h
}

// Name returns the task name this handle tracks.
func (h *Handle) Name() string { return h.name }

// Key returns the exclusivity key the task ran under.
func (h *Handle) Key() string { return h.key }

// InvocationID returns the unique ID of this invocation.
// Empty for requests refused before enqueue.
func (h *Handle) InvocationID() string { return h.id }

// Done returns a channel closed when the task settles.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Settled reports whether the task has settled.
func (h *Handle) Settled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the settled outcome. Valid only after Done is closed;
// before that it returns (nil, nil).
func (h *Handle) Result() (any, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		return nil, nil
	}
}

// Wait blocks until the task settles or ctx is done.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle records the outcome and wakes waiters. First caller wins;
// later calls are discarded (a superseded task's late handler result).
func (h *Handle) settle(result any, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.done)
	})
}

// Package store composes features over one target type into a reactive
// store: a merged observable state container, a callable request surface
// backed by the task queue, and an attach/detach lifecycle against a
// live target.
//
// The store exclusively owns its queue and state container (created at
// construction, destroyed with the store). Features are shared immutable
// descriptors; the target is never owned — attach only creates a
// reference plus a set of subscriptions scoped to a cancellable context.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/playback/internal/queue"
	"github.com/roach88/playback/internal/state"
)

// Store binds a set of features to at most one attached target.
//
// Lifecycle: constructed → OnSetup fires once → zero or more
// attach/detach cycles → Destroy (terminal).
type Store[T any] struct {
	mu sync.Mutex

	cfg      Config[T]
	features []Feature[T]
	requests map[string]Request[T]
	logger   *slog.Logger

	st *state.State
	q  *queue.Queue

	setupCtx    context.Context
	setupCancel context.CancelFunc

	target       T
	attached     bool
	attachCancel context.CancelFunc
	generation   int

	destroyed bool
}

// New constructs a store from a config and fires the OnSetup hook.
func New[T any](cfg Config[T]) *Store[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	features := cfg.Features
	requests := make(map[string]Request[T])
	for _, f := range features {
		for name, req := range f.Requests() {
			// Last-registered-wins on name collisions.
			requests[name] = req
		}
	}

	newState := cfg.NewState
	if newState == nil {
		newState = state.New
	}
	newQueue := cfg.NewQueue
	if newQueue == nil {
		newQueue = func() *queue.Queue { return queue.New() }
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store[T]{
		cfg:         cfg,
		features:    features,
		requests:    requests,
		logger:      logger,
		setupCtx:    ctx,
		setupCancel: cancel,
	}
	s.st = newState(s.defaults())
	s.q = newQueue()

	if cfg.OnSetup != nil {
		if err := guardPanic(func() error { cfg.OnSetup(s); return nil }); err != nil {
			s.routeError(PhaseSetup, "", err)
		}
	}
	return s
}

// defaults returns the key-wise union of all features' initial state,
// later features overriding earlier ones.
func (s *Store[T]) defaults() map[string]any {
	out := make(map[string]any)
	for _, f := range s.features {
		for k, v := range f.InitialState() {
			out[k] = v
		}
	}
	return out
}

// State returns the live merged state container. Callers read through
// it or subscribe; mutation belongs to the engine.
func (s *Store[T]) State() *state.State { return s.st }

// Snapshot returns an independent copy of the current merged state.
func (s *Store[T]) Snapshot() map[string]any { return s.st.Snapshot() }

// Subscribe observes every state key. Returns an unsubscribe func.
func (s *Store[T]) Subscribe(fn state.Observer) func() { return s.st.Subscribe(fn) }

// SubscribeKeys observes a subset of state keys.
func (s *Store[T]) SubscribeKeys(keys []string, fn state.Observer) func() {
	return s.st.SubscribeKeys(keys, fn)
}

// Queue exposes the store's task queue for status introspection.
func (s *Store[T]) Queue() *queue.Queue { return s.q }

// Target returns the currently attached target, if any.
func (s *Store[T]) Target() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.attached
}

// Attach binds the store to a target and returns a detach func.
//
// A previous attachment is detached first: its subscriptions are
// unregistered before any of the new attachment's subscriptions are
// registered, so a target swap never double-delivers. State resets to
// defaults, every feature subscribes (failures are routed per-feature
// without aborting the others), then every feature's snapshot merges
// into state in one batch.
func (s *Store[T]) Attach(target T) (func(), error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil, &queue.Error{Code: queue.CodeDestroyed, Message: "store is destroyed"}
	}
	prevGen := s.generation
	s.mu.Unlock()

	s.detachGen(prevGen)

	s.mu.Lock()
	attachCtx, cancel := context.WithCancel(s.setupCtx)
	s.target = target
	s.attached = true
	s.attachCancel = cancel
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.st.Reset(s.defaults())

	for _, f := range s.features {
		f := f
		notify := func() {
			if attachCtx.Err() != nil {
				return
			}
			s.patchSnapshot(f, target)
		}
		err := guardPanic(func() error { return f.Subscribe(target, notify, attachCtx) })
		if err != nil {
			s.routeError(PhaseSubscribe, "", err)
		}
	}

	s.st.Batch(func() {
		for _, f := range s.features {
			s.patchSnapshot(f, target)
		}
	})

	if s.cfg.OnAttach != nil {
		if err := guardPanic(func() error { s.cfg.OnAttach(s, target); return nil }); err != nil {
			s.routeError(PhaseAttach, "", err)
		}
	}

	return func() { s.detachGen(gen) }, nil
}

// patchSnapshot merges one feature's snapshot into state, routing
// snapshot panics without disturbing other features.
func (s *Store[T]) patchSnapshot(f Feature[T], target T) {
	var snap map[string]any
	err := guardPanic(func() error {
		snap = f.Snapshot(target)
		return nil
	})
	if err != nil {
		s.routeError(PhaseSnapshot, "", err)
		return
	}
	if len(snap) > 0 {
		s.st.Patch(snap)
	}
}

// Detach releases the current target: subscriptions are unregistered,
// all queue tasks aborted, state reset to defaults. No-op when nothing
// is attached.
func (s *Store[T]) Detach() {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.detachGen(gen)
}

// detachGen detaches only if the attachment identified by gen is still
// current, so a stale detach func from an earlier attach cannot tear
// down a later one.
func (s *Store[T]) detachGen(gen int) {
	s.mu.Lock()
	if !s.attached || s.generation != gen {
		s.mu.Unlock()
		return
	}
	cancel := s.attachCancel
	s.attached = false
	s.attachCancel = nil
	var zero T
	s.target = zero
	s.mu.Unlock()

	// Subscriptions die before anything else so no external event can
	// race a state write during teardown.
	cancel()
	s.q.AbortAll()
	s.st.Reset(s.defaults())
}

// Attached reports whether a target is currently attached.
func (s *Store[T]) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Request returns the callable for a request name. The callable may be
// held across attach/detach cycles; each invocation re-checks the
// store's lifecycle state.
func (s *Store[T]) Request(name string) func(input any) *queue.Handle {
	return func(input any) *queue.Handle { return s.enqueue(name, input) }
}

// Call invokes a request and waits for it to settle.
func (s *Store[T]) Call(ctx context.Context, name string, input any) (any, error) {
	return s.enqueue(name, input).Wait(ctx)
}

// RequestNames lists the composed request surface, unordered.
func (s *Store[T]) RequestNames() []string {
	names := make([]string, 0, len(s.requests))
	for name := range s.requests {
		names = append(names, name)
	}
	return names
}

// enqueue forwards one invocation to the queue, rejecting immediately —
// without touching the queue — when the store is destroyed or nothing
// is attached.
func (s *Store[T]) enqueue(name string, input any) *queue.Handle {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		err := &queue.Error{Code: queue.CodeDestroyed, Task: name, Message: "store is destroyed"}
		s.routeError(PhaseTask, name, err)
		return queue.NewRejectedHandle(name, "", err)
	}
	if !s.attached {
		s.mu.Unlock()
		err := &queue.Error{Code: queue.CodeNoTarget, Task: name, Message: "no target attached"}
		s.routeError(PhaseTask, name, err)
		return queue.NewRejectedHandle(name, "", err)
	}
	target := s.target
	req, ok := s.requests[name]
	s.mu.Unlock()

	if !ok {
		err := &queue.Error{Code: queue.CodeHandler, Task: name, Message: "unknown request"}
		s.routeError(PhaseTask, name, err)
		return queue.NewRejectedHandle(name, "", err)
	}

	key := name
	if req.KeyFn != nil {
		key = req.KeyFn(input)
	} else if req.Key != "" {
		key = req.Key
	}
	session := Session[T]{Target: target, Name: name, Key: key}

	guards := make([]queue.GuardFunc, len(req.Guards))
	for i, g := range req.Guards {
		g := g
		guards[i] = func(ctx context.Context, input any) (bool, error) {
			return g(ctx, input, session)
		}
	}

	h := s.q.Enqueue(queue.Request{
		Name:     name,
		Key:      key,
		Mode:     req.Mode,
		Cancel:   req.Cancel,
		Guards:   guards,
		Schedule: req.Schedule,
		Input:    input,
		Handler: func(ctx context.Context, input any) (any, error) {
			return req.Handler(ctx, input, session)
		},
	})

	// Dual-path error routing: the handle rejects for the caller, and
	// the hook sees the same error for centralized observability.
	go func() {
		<-h.Done()
		if _, err := h.Result(); err != nil {
			s.routeError(PhaseTask, name, err)
		}
	}()

	return h
}

// Destroyed reports whether Destroy has been called.
func (s *Store[T]) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Destroy detaches if attached, cancels the setup scope, and destroys
// the queue. Idempotent; any further Attach or request rejects with a
// DESTROYED error.
func (s *Store[T]) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	s.mu.Unlock()

	s.detachGen(gen)

	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()

	s.setupCancel()
	s.q.Destroy()
}

// routeError funnels an error to the OnError hook when configured, else
// to the logger. Never both, and never silently dropped.
func (s *Store[T]) routeError(phase Phase, task string, err error) {
	if err == nil {
		return
	}
	if s.cfg.OnError != nil {
		s.cfg.OnError(ErrorContext{Phase: phase, Task: task, Err: err})
		return
	}
	s.logger.Error("store error",
		"phase", string(phase),
		"task", task,
		"error", err,
	)
}

// guardPanic runs fn, converting a panic into an error so one feature's
// bug cannot tear down its siblings.
func guardPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

package store

import (
	"context"

	"github.com/roach88/playback/internal/queue"
	"github.com/roach88/playback/internal/sched"
)

// Feature is an immutable, reusable unit of state and behavior composed
// into a store. A feature instance is stateless and may back any number
// of stores at once; all per-attachment state lives in the store.
//
// The generic parameter T is the target type every feature in one store
// agrees on.
type Feature[T any] interface {
	// InitialState returns the state fragment used before any target is
	// attached. Called once per store construction and on every detach.
	InitialState() map[string]any

	// Snapshot reads the target's current condition into a state
	// fragment. Must not mutate the target.
	Snapshot(target T) map[string]any

	// Subscribe registers the feature's change sources against the
	// target. notify must be called whenever the target's observable
	// condition may have changed; the store re-snapshots the feature in
	// response. All registrations must be undone when ctx is done.
	Subscribe(target T, notify func(), ctx context.Context) error

	// Requests returns the feature's operation map. Across features,
	// name collisions resolve last-registered-wins.
	Requests() map[string]Request[T]
}

// Session carries the per-invocation context handlers and guards see.
type Session[T any] struct {
	// Target is the currently attached target.
	Target T

	// Name is the request name the invocation ran under.
	Name string

	// Key is the resolved exclusivity key.
	Key string
}

// Handler performs a request's work against the target. ctx is cancelled
// on abort or supersession; check it before mutating the target.
type Handler[T any] func(ctx context.Context, input any, s Session[T]) (any, error)

// Guard gates a request before its handler runs. The first guard
// returning false rejects the request without touching the target.
type Guard[T any] func(ctx context.Context, input any, s Session[T]) (bool, error)

// Request is a feature's resolved configuration for one operation.
type Request[T any] struct {
	// Key is the exclusivity scope; empty means the request name.
	Key string

	// KeyFn resolves a data-dependent key from the input. Takes
	// precedence over Key.
	KeyFn func(input any) string

	// Mode selects supersession behavior (exclusive by default).
	Mode queue.Mode

	// Cancel lists extra keys aborted when this request starts;
	// queue.CancelAll aborts everything in flight.
	Cancel []string

	// Guards run in order before the handler.
	Guards []Guard[T]

	// Schedule decides when the handler starts. Nil means immediately.
	Schedule sched.Scheduler

	// Handler performs the work. Required.
	Handler Handler[T]
}

// FuncFeature adapts plain values and closures to the Feature interface.
// The zero value is a valid feature with no state and no requests.
type FuncFeature[T any] struct {
	Initial     map[string]any
	SnapshotFn  func(target T) map[string]any
	SubscribeFn func(target T, notify func(), ctx context.Context) error
	RequestMap  map[string]Request[T]
}

func (f *FuncFeature[T]) InitialState() map[string]any {
	return f.Initial
}

func (f *FuncFeature[T]) Snapshot(target T) map[string]any {
	if f.SnapshotFn == nil {
		return nil
	}
	return f.SnapshotFn(target)
}

func (f *FuncFeature[T]) Subscribe(target T, notify func(), ctx context.Context) error {
	if f.SubscribeFn == nil {
		return nil
	}
	return f.SubscribeFn(target, notify, ctx)
}

func (f *FuncFeature[T]) Requests() map[string]Request[T] {
	return f.RequestMap
}

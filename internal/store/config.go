package store

import (
	"log/slog"
	"reflect"

	"github.com/roach88/playback/internal/queue"
	"github.com/roach88/playback/internal/state"
)

// Phase names where in the store lifecycle an error surfaced.
type Phase string

const (
	PhaseSetup     Phase = "setup"
	PhaseAttach    Phase = "attach"
	PhaseSnapshot  Phase = "snapshot"
	PhaseSubscribe Phase = "subscribe"
	PhaseTask      Phase = "task"
)

// ErrorContext is what the OnError hook receives for every error the
// store routes: setup, attach, snapshot, and subscription failures, and
// every task rejection. Request handles still settle independently so
// callers can handle a single request's failure locally in addition to
// the hook.
type ErrorContext struct {
	// Phase is the lifecycle phase the error surfaced in.
	Phase Phase

	// Task is the request name for PhaseTask errors, empty otherwise.
	Task string

	// Err is the error itself. Task errors carry a *queue.Error.
	Err error
}

// Config describes a store: its features and lifecycle hooks.
type Config[T any] struct {
	// Features compose in order. State fragments merge key-wise (later
	// fragments win), request names resolve last-registered-wins.
	Features []Feature[T]

	// OnSetup fires once, at construction.
	OnSetup func(s *Store[T])

	// OnAttach fires after every successful attach, with state already
	// snapshotted from the target.
	OnAttach func(s *Store[T], target T)

	// OnError receives every routed error. When nil, errors go to the
	// Logger instead.
	OnError func(ErrorContext)

	// Logger is the fallback error sink and general log output. Nil
	// means slog.Default().
	Logger *slog.Logger

	// NewQueue overrides the task queue factory (tests inject
	// deterministic clocks and ID generators through this).
	NewQueue func() *queue.Queue

	// NewState overrides the state container factory.
	NewState func(initial map[string]any) *state.State
}

// ExtendConfig merges an extension onto a base configuration:
//
//   - feature lists concatenate, deduplicated by identity, keeping the
//     later occurrence (the extension's position wins)
//   - lifecycle hooks compose, base hook first
//   - queue/state factories from the extension override the base's
func ExtendConfig[T any](base, ext Config[T]) Config[T] {
	out := Config[T]{
		Features: dedupeFeatures(append(append([]Feature[T]{}, base.Features...), ext.Features...)),
		OnSetup:  composeHook(base.OnSetup, ext.OnSetup),
		OnAttach: composeHook2(base.OnAttach, ext.OnAttach),
		Logger:   base.Logger,
		NewQueue: base.NewQueue,
		NewState: base.NewState,
	}

	switch {
	case base.OnError == nil:
		out.OnError = ext.OnError
	case ext.OnError == nil:
		out.OnError = base.OnError
	default:
		b, e := base.OnError, ext.OnError
		out.OnError = func(ec ErrorContext) {
			b(ec)
			e(ec)
		}
	}

	if ext.Logger != nil {
		out.Logger = ext.Logger
	}
	if ext.NewQueue != nil {
		out.NewQueue = ext.NewQueue
	}
	if ext.NewState != nil {
		out.NewState = ext.NewState
	}
	return out
}

func composeHook[S any](base, ext func(S)) func(S) {
	switch {
	case base == nil:
		return ext
	case ext == nil:
		return base
	}
	return func(s S) {
		base(s)
		ext(s)
	}
}

func composeHook2[S, T any](base, ext func(S, T)) func(S, T) {
	switch {
	case base == nil:
		return ext
	case ext == nil:
		return base
	}
	return func(s S, t T) {
		base(s, t)
		ext(s, t)
	}
}

// dedupeFeatures drops earlier occurrences of the same feature identity,
// so an extension re-listing a base feature moves it to the extension's
// position.
func dedupeFeatures[T any](features []Feature[T]) []Feature[T] {
	out := make([]Feature[T], 0, len(features))
	for i, f := range features {
		dup := false
		for _, later := range features[i+1:] {
			if sameFeature(f, later) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}

// sameFeature compares feature identity. Features are normally pointers,
// where identity is the pointer itself; non-pointer features are never
// considered duplicates.
func sameFeature[T any](a, b Feature[T]) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != reflect.Pointer || vb.Kind() != reflect.Pointer {
		return false
	}
	return va.Pointer() == vb.Pointer()
}

package media

import (
	"context"
	"fmt"

	"github.com/roach88/playback/internal/queue"
	"github.com/roach88/playback/internal/store"
)

// listen registers notify for each event and ties the registrations to
// ctx, so an aborted attach scope removes them all.
func listen(el Element, notify func(), ctx context.Context, events ...Event) {
	for _, ev := range events {
		off := el.AddListener(ev, notify)
		context.AfterFunc(ctx, off)
	}
}

// Volume is the stock volume/muted feature. All volume-adjusting
// requests share the "volume" key, so a rapid setVolume → mute sequence
// leaves exactly one winner in flight.
func Volume() store.Feature[Element] {
	return &store.FuncFeature[Element]{
		Initial: map[string]any{"volume": 1.0, "muted": false},
		SnapshotFn: func(el Element) map[string]any {
			return map[string]any{"volume": el.Volume(), "muted": el.Muted()}
		},
		SubscribeFn: func(el Element, notify func(), ctx context.Context) error {
			listen(el, notify, ctx, EventVolumeChange)
			return nil
		},
		RequestMap: map[string]store.Request[Element]{
			"setVolume": {
				Key: "volume",
				Handler: func(ctx context.Context, input any, s store.Session[Element]) (any, error) {
					v, ok := input.(float64)
					if !ok {
						return nil, fmt.Errorf("setVolume: want float64 input, got %T", input)
					}
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					s.Target.SetVolume(v)
					return s.Target.Volume(), nil
				},
			},
			"mute": {
				Key: "volume",
				Handler: func(ctx context.Context, input any, s store.Session[Element]) (any, error) {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					s.Target.SetMuted(true)
					return true, nil
				},
			},
			"unmute": {
				Key: "volume",
				Handler: func(ctx context.Context, input any, s store.Session[Element]) (any, error) {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					s.Target.SetMuted(false)
					return false, nil
				},
			},
		},
	}
}

// Playback is the stock play/pause feature. play runs shared: starting
// playback twice is harmless and the calls must not cancel each other.
// pause is exclusive under the same key, so it supersedes pending plays.
func Playback() store.Feature[Element] {
	return &store.FuncFeature[Element]{
		Initial: map[string]any{"paused": true, "ended": false},
		SnapshotFn: func(el Element) map[string]any {
			return map[string]any{"paused": el.Paused(), "ended": el.Ended()}
		},
		SubscribeFn: func(el Element, notify func(), ctx context.Context) error {
			listen(el, notify, ctx, EventPlay, EventPause, EventEnded)
			return nil
		},
		RequestMap: map[string]store.Request[Element]{
			"play": {
				Key:  "playback",
				Mode: queue.ModeShared,
				Handler: func(ctx context.Context, input any, s store.Session[Element]) (any, error) {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					return nil, s.Target.Play()
				},
			},
			"pause": {
				Key: "playback",
				Handler: func(ctx context.Context, input any, s store.Session[Element]) (any, error) {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					s.Target.Pause()
					return nil, nil
				},
			},
		},
	}
}

// Time is the stock position/duration feature. seek is guarded on
// metadata being available: seeking an empty element rejects without
// touching it.
func Time() store.Feature[Element] {
	return &store.FuncFeature[Element]{
		Initial: map[string]any{"currentTime": 0.0, "duration": 0.0},
		SnapshotFn: func(el Element) map[string]any {
			return map[string]any{"currentTime": el.CurrentTime(), "duration": el.Duration()}
		},
		SubscribeFn: func(el Element, notify func(), ctx context.Context) error {
			listen(el, notify, ctx, EventTimeUpdate, EventDurationChange)
			return nil
		},
		RequestMap: map[string]store.Request[Element]{
			"seek": {
				Key: "seek",
				Guards: []store.Guard[Element]{
					func(ctx context.Context, input any, s store.Session[Element]) (bool, error) {
						return s.Target.ReadyState() >= ReadyMetadata, nil
					},
				},
				Handler: func(ctx context.Context, input any, s store.Session[Element]) (any, error) {
					t, ok := input.(float64)
					if !ok {
						return nil, fmt.Errorf("seek: want float64 input, got %T", input)
					}
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					s.Target.SetCurrentTime(t)
					return s.Target.CurrentTime(), nil
				},
			},
		},
	}
}

// Source is the stock source feature. changeSource cancels everything
// in flight: a seek or play racing a source swap has lost its meaning.
func Source() store.Feature[Element] {
	return &store.FuncFeature[Element]{
		Initial: map[string]any{"source": "", "readyState": ReadyNothing},
		SnapshotFn: func(el Element) map[string]any {
			return map[string]any{"source": el.Source(), "readyState": el.ReadyState()}
		},
		SubscribeFn: func(el Element, notify func(), ctx context.Context) error {
			listen(el, notify, ctx, EventSourceChange, EventReadyChange)
			return nil
		},
		RequestMap: map[string]store.Request[Element]{
			"changeSource": {
				Key:    "source",
				Cancel: []string{queue.CancelAll},
				Handler: func(ctx context.Context, input any, s store.Session[Element]) (any, error) {
					src, ok := input.(string)
					if !ok {
						return nil, fmt.Errorf("changeSource: want string input, got %T", input)
					}
					if err := s.Target.Load(ctx, src); err != nil {
						return nil, err
					}
					return src, nil
				},
			},
		},
	}
}

// Features returns the stock feature set in composition order.
func Features() []store.Feature[Element] {
	return []store.Feature[Element]{Volume(), Playback(), Time(), Source()}
}

// DefaultConfig is the store configuration composing the stock features.
func DefaultConfig() store.Config[Element] {
	return store.Config[Element]{Features: Features()}
}

// NewStore builds a store over the stock features. Extra configurations
// merge onto the default via ExtendConfig, extension-last.
func NewStore(ext ...store.Config[Element]) *store.Store[Element] {
	cfg := DefaultConfig()
	for _, e := range ext {
		cfg = store.ExtendConfig(cfg, e)
	}
	return store.New(cfg)
}

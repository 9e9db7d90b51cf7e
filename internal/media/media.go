// Package media defines the playback target contract the stock features
// are written against, a fake in-memory element for tests and tooling,
// and the stock feature set itself (volume, playback, time, source).
//
// The engine core (state, queue, store) is target-agnostic; everything
// media-shaped lives here.
package media

import "context"

// ReadyState describes how much of the current source is usable.
type ReadyState int

const (
	// ReadyNothing: no information about the source is available.
	ReadyNothing ReadyState = iota
	// ReadyMetadata: duration and dimensions are known.
	ReadyMetadata
	// ReadyCurrentData: data for the current position is available.
	ReadyCurrentData
	// ReadyEnough: enough data to play through is available.
	ReadyEnough
)

// Event names an observable change on an element.
type Event string

const (
	EventVolumeChange   Event = "volumechange"
	EventPlay           Event = "play"
	EventPause          Event = "pause"
	EventEnded          Event = "ended"
	EventTimeUpdate     Event = "timeupdate"
	EventDurationChange Event = "durationchange"
	EventSourceChange   Event = "sourcechange"
	EventReadyChange    Event = "readychange"
)

// Element is the playback target every stock feature agrees on. The
// engine never constructs or destroys an element; it only observes it
// through listeners and mutates it inside request handlers.
type Element interface {
	Volume() float64
	SetVolume(v float64)
	Muted() bool
	SetMuted(muted bool)

	Paused() bool
	Ended() bool
	Play() error
	Pause()

	CurrentTime() float64
	SetCurrentTime(t float64)
	Duration() float64
	ReadyState() ReadyState

	Source() string
	// Load swaps the element's source. It blocks until metadata is
	// available or ctx is cancelled.
	Load(ctx context.Context, src string) error

	// AddListener registers a callback for an event and returns its
	// removal func.
	AddListener(event Event, fn func()) (remove func())
}

package media

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoSource is returned by Play on an element with nothing loaded.
var ErrNoSource = errors.New("media: no source loaded")

// FakeElement is an in-memory Element used by tests, the conformance
// harness, and the CLI. All mutators emit the matching event
// synchronously, like a real element firing DOM events.
type FakeElement struct {
	mu sync.Mutex

	volume      float64
	muted       bool
	paused      bool
	ended       bool
	currentTime float64
	duration    float64
	readyState  ReadyState
	source      string

	// LoadDelay simulates network latency inside Load. Zero means
	// metadata is available immediately.
	LoadDelay time.Duration

	// LoadDuration is the duration Load reports for the new source.
	LoadDuration float64

	// FailLoad, when set, makes the next Load return this error.
	FailLoad error

	listeners map[Event]map[int]func()
	nextID    int
}

// NewFakeElement creates a paused element with volume 1 and no source.
func NewFakeElement() *FakeElement {
	return &FakeElement{
		volume:       1.0,
		paused:       true,
		LoadDuration: 60,
		listeners:    make(map[Event]map[int]func()),
	}
}

func (e *FakeElement) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *FakeElement) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	e.mu.Lock()
	changed := e.volume != v
	e.volume = v
	e.mu.Unlock()
	if changed {
		e.emit(EventVolumeChange)
	}
}

func (e *FakeElement) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *FakeElement) SetMuted(muted bool) {
	e.mu.Lock()
	changed := e.muted != muted
	e.muted = muted
	e.mu.Unlock()
	if changed {
		e.emit(EventVolumeChange)
	}
}

func (e *FakeElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *FakeElement) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *FakeElement) Play() error {
	e.mu.Lock()
	if e.source == "" {
		e.mu.Unlock()
		return ErrNoSource
	}
	changed := e.paused
	e.paused = false
	e.ended = false
	e.mu.Unlock()
	if changed {
		e.emit(EventPlay)
	}
	return nil
}

func (e *FakeElement) Pause() {
	e.mu.Lock()
	changed := !e.paused
	e.paused = true
	e.mu.Unlock()
	if changed {
		e.emit(EventPause)
	}
}

// FinishPlayback simulates the source playing to its end.
func (e *FakeElement) FinishPlayback() {
	e.mu.Lock()
	e.paused = true
	e.ended = true
	e.currentTime = e.duration
	e.mu.Unlock()
	e.emit(EventTimeUpdate)
	e.emit(EventEnded)
}

func (e *FakeElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

func (e *FakeElement) SetCurrentTime(t float64) {
	e.mu.Lock()
	if t < 0 {
		t = 0
	}
	if e.duration > 0 && t > e.duration {
		t = e.duration
	}
	changed := e.currentTime != t
	e.currentTime = t
	e.mu.Unlock()
	if changed {
		e.emit(EventTimeUpdate)
	}
}

func (e *FakeElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *FakeElement) ReadyState() ReadyState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readyState
}

func (e *FakeElement) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// Load swaps the source: readiness drops to nothing, the source change
// is announced, then — after LoadDelay — metadata becomes available.
// Cancellation mid-load leaves the element with the new source but no
// metadata, like a real element whose fetch was aborted.
func (e *FakeElement) Load(ctx context.Context, src string) error {
	e.mu.Lock()
	if err := e.FailLoad; err != nil {
		e.FailLoad = nil
		e.mu.Unlock()
		return err
	}
	delay := e.LoadDelay
	e.source = src
	e.readyState = ReadyNothing
	e.currentTime = 0
	e.duration = 0
	e.paused = true
	e.ended = false
	e.mu.Unlock()
	e.emit(EventSourceChange)
	e.emit(EventReadyChange)

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	e.duration = e.LoadDuration
	e.readyState = ReadyMetadata
	e.mu.Unlock()
	e.emit(EventDurationChange)
	e.emit(EventReadyChange)
	return nil
}

func (e *FakeElement) AddListener(event Event, fn func()) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[int]func())
	}
	e.listeners[event][id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners[event], id)
		e.mu.Unlock()
	}
}

// ListenerCount reports live registrations across all events. Tests use
// it to prove detach unregisters everything.
func (e *FakeElement) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, m := range e.listeners {
		n += len(m)
	}
	return n
}

func (e *FakeElement) emit(event Event) {
	e.mu.Lock()
	fns := make([]func(), 0, len(e.listeners[event]))
	for _, fn := range e.listeners[event] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

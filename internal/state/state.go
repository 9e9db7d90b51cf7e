// Package state implements the reactive key/value container that backs a
// store's observable state.
//
// Writes apply to the backing record immediately (reads are never stale),
// but observer notification is deferred and coalesced: inside a Batch all
// notifications wait for the outermost batch to return, and a key whose
// value ends up equal to the last flushed value produces no notification
// at all. Nested map values are wrapped in child containers so that
// mutating a nested field raises a change for the top-level key that
// holds it.
//
// Thread-safety model: a container tree shares one mutex (rooted at the
// container created by New). All methods are safe for concurrent use, but
// the engine's single-writer design means mutations normally come from
// one goroutine.
package state

import (
	"reflect"
	"sync"
)

// Observer receives the set of keys whose values changed since the last
// notification round. The slice is sorted and must not be retained.
type Observer func(changed []string)

// observer pairs a callback with an optional key filter.
type observer struct {
	id   int
	keys map[string]struct{} // nil means all keys
	fn   Observer
}

// State is a reactive container wrapping a plain record.
//
// INVARIANTS:
//   - After any Flush, every observer whose selected keys changed is
//     notified exactly once, with no notification for keys whose value
//     did not change relative to the last flushed value.
//   - Reads always see the latest write, flushed or not.
type State struct {
	mu *sync.Mutex // shared across the container tree

	values  map[string]any
	flushed map[string]any // last values observers were notified against
	dirty   map[string]struct{}
	forced  map[string]struct{} // dirty keys that bypass the equality check

	observers  []*observer
	nextObsID  int
	batchDepth int
	flushing   bool

	// Nested containers. parent is nil on the root.
	parent    *State
	parentKey string
	children  map[string]*State
}

// New creates a container holding a copy of the initial record.
//
// Map values in the initial record are wrapped in child containers,
// exactly as if they had been assigned via Set.
func New(initial map[string]any) *State {
	s := &State{
		mu:       &sync.Mutex{},
		values:   make(map[string]any, len(initial)),
		flushed:  make(map[string]any, len(initial)),
		dirty:    make(map[string]struct{}),
		forced:   make(map[string]struct{}),
		children: make(map[string]*State),
	}
	s.mu.Lock()
	for k, v := range initial {
		s.setLocked(k, v)
	}
	// Initial values are the baseline, not a change.
	s.settleLocked()
	s.mu.Unlock()
	return s
}

// newChild creates a nested container sharing the parent's mutex.
// Must be called with the tree mutex held.
func newChild(parent *State, key string, initial map[string]any) *State {
	c := &State{
		mu:        parent.mu,
		values:    make(map[string]any, len(initial)),
		flushed:   make(map[string]any, len(initial)),
		dirty:     make(map[string]struct{}),
		forced:    make(map[string]struct{}),
		children:  make(map[string]*State),
		parent:    parent,
		parentKey: key,
	}
	for k, v := range initial {
		c.setLocked(k, v)
	}
	c.settleLocked()
	return c
}

// root walks to the container that owns batching state for the tree.
func (s *State) root() *State {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Set writes a single key. The write is visible to Get immediately;
// notification is deferred to the end of the enclosing Batch, or runs
// synchronously before Set returns when no batch is open.
//
// Assigning a map[string]any wraps it in a child container; the child is
// what Get returns for the key, and mutations through the child bubble a
// change for this key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	s.setLocked(key, value)
	s.mu.Unlock()
	s.root().maybeFlush()
}

// Patch merges a record of shallow key/value pairs, as one logical write.
func (s *State) Patch(partial map[string]any) {
	s.mu.Lock()
	for k, v := range partial {
		s.setLocked(k, v)
	}
	s.mu.Unlock()
	s.root().maybeFlush()
}

// setLocked applies a write and marks the key dirty.
// Must be called with the tree mutex held.
func (s *State) setLocked(key string, value any) {
	if m, ok := value.(map[string]any); ok {
		child := newChild(s, key, m)
		s.values[key] = child
		s.children[key] = child
		// A fresh child is a new value for the key regardless of what
		// was there before.
		s.forced[key] = struct{}{}
		s.dirty[key] = struct{}{}
		return
	}
	delete(s.children, key)
	s.values[key] = value
	s.dirty[key] = struct{}{}
}

// touchLocked marks a key changed unconditionally, bypassing the equality
// check against the flushed value. Used by child containers to bubble
// nested mutations: the parent's stored value (the child pointer) never
// changes identity, so equality would otherwise suppress the notification.
func (s *State) touchLocked(key string) {
	s.dirty[key] = struct{}{}
	s.forced[key] = struct{}{}
	if s.parent != nil {
		s.parent.touchLocked(s.parentKey)
	}
}

// Get returns the current value for key. Nested records come back as
// *State children; mutate them through their own Set/Patch.
func (s *State) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Snapshot returns an independent shallow copy of the current record.
// Nested containers are flattened to plain maps. Mutating the returned
// map never affects the container.
func (s *State) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		if child, ok := v.(*State); ok {
			out[k] = child.snapshotLocked()
			continue
		}
		out[k] = v
	}
	return out
}

// Reset replaces the whole record with the given one. Keys absent from
// the new record are removed. Changes notify like any other write.
func (s *State) Reset(record map[string]any) {
	s.mu.Lock()
	for k := range s.values {
		if _, keep := record[k]; !keep {
			delete(s.values, k)
			delete(s.children, k)
			s.dirty[k] = struct{}{}
		}
	}
	for k, v := range record {
		s.setLocked(k, v)
	}
	s.mu.Unlock()
	s.root().maybeFlush()
}

// Subscribe registers an observer for every key. Returns an unsubscribe
// function; calling it more than once is harmless.
func (s *State) Subscribe(fn Observer) func() {
	return s.subscribe(nil, fn)
}

// SubscribeKeys registers an observer that fires only when one of the
// listed keys actually changed value.
func (s *State) SubscribeKeys(keys []string, fn Observer) func() {
	filter := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		filter[k] = struct{}{}
	}
	return s.subscribe(filter, fn)
}

func (s *State) subscribe(filter map[string]struct{}, fn Observer) func() {
	s.mu.Lock()
	s.nextObsID++
	obs := &observer{id: s.nextObsID, keys: filter, fn: fn}
	s.observers = append(s.observers, obs)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == obs.id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Batch runs fn and defers all resulting notifications until fn returns,
// coalescing them into a single notification round. Batches nest: only
// the outermost batch flushes.
func (s *State) Batch(fn func()) {
	r := s.root()
	r.mu.Lock()
	r.batchDepth++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.batchDepth--
		r.mu.Unlock()
		r.maybeFlush()
	}()

	fn()
}

// Flush forces any pending deferred notifications to run synchronously.
// A no-op when nothing is dirty. Observer panics are not recovered; they
// propagate to the caller so observer bugs surface instead of hiding.
func (s *State) Flush() {
	s.root().flush()
}

// maybeFlush flushes unless a batch is open or a flush is already on the
// stack (observers may write back into the container; those writes join
// the current round's loop rather than recursing).
func (s *State) maybeFlush() {
	s.mu.Lock()
	skip := s.batchDepth > 0 || s.flushing
	s.mu.Unlock()
	if !skip {
		s.flush()
	}
}

// flush drains dirty keys across the container tree until none remain,
// notifying observers with the set of keys whose values changed relative
// to the last flushed values.
func (s *State) flush() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true

	for s.treeDirtyLocked() {
		// Children settle first so a nested write and its bubbled
		// parent change land in the same round.
		notifications := s.collectLocked()

		// Unlock for observer callbacks to allow writes back into the
		// container. Those re-dirty keys and loop again.
		s.mu.Unlock()
		for _, n := range notifications {
			n.obs.fn(n.changed)
		}
		s.mu.Lock()
	}

	s.flushing = false
	s.mu.Unlock()
}

type notification struct {
	obs     *observer
	changed []string
}

// treeDirtyLocked reports whether this container or any descendant has
// pending dirty keys.
func (s *State) treeDirtyLocked() bool {
	if len(s.dirty) > 0 {
		return true
	}
	for _, c := range s.children {
		if c.treeDirtyLocked() {
			return true
		}
	}
	return false
}

// collectLocked settles dirty keys (depth-first) and returns the observer
// notifications due for this round.
func (s *State) collectLocked() []notification {
	var out []notification
	for _, c := range s.children {
		out = append(out, c.collectLocked()...)
	}

	changed := s.settleLocked()
	if len(changed) == 0 || len(s.observers) == 0 {
		return out
	}

	for _, obs := range s.observers {
		keys := changed
		if obs.keys != nil {
			keys = keys[:0:0]
			for _, k := range changed {
				if _, ok := obs.keys[k]; ok {
					keys = append(keys, k)
				}
			}
			if len(keys) == 0 {
				continue
			}
		}
		out = append(out, notification{obs: obs, changed: keys})
	}
	return out
}

// settleLocked moves dirty keys into the flushed baseline and returns the
// keys that actually changed, sorted.
func (s *State) settleLocked() []string {
	if len(s.dirty) == 0 {
		return nil
	}
	var changed []string
	for k := range s.dirty {
		cur, ok := s.values[k]
		_, force := s.forced[k]
		prev, had := s.flushed[k]
		if !ok {
			// Key removed by Reset.
			if had {
				delete(s.flushed, k)
				changed = append(changed, k)
			}
			continue
		}
		if force || !had || !equal(prev, cur) {
			s.flushed[k] = cur
			changed = append(changed, k)
		}
	}
	s.dirty = make(map[string]struct{})
	s.forced = make(map[string]struct{})
	if len(changed) > 0 && s.parent != nil {
		// Bubble: a settled nested change is a change of the parent key.
		// Ancestors settle after their children in a collect pass, so
		// the touch lands in the same notification round.
		s.parent.touchLocked(s.parentKey)
	}
	sortKeys(changed)
	return changed
}

// equal is the change-detection predicate: strict equality for comparable
// values. Values of non-comparable types (slices, funcs) always count as
// changed; callers holding such state should prefer nested containers or
// replace-on-write values.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func sortKeys(keys []string) {
	// Insertion sort: change sets are tiny.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

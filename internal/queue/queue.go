// Package queue implements the task queue underneath a store's request
// surface: named asynchronous operations with key-based cancellation and
// supersession.
//
// Every enqueued task resolves an exclusivity key. Before a task starts,
// any still-pending task sharing its key is aborted (unless the new task
// is ModeShared), the predecessor's context is cancelled, and its handle
// rejects with a supersession error. This guarantees exactly one live
// exclusive task per key.
//
// Thread-safety model:
//   - Enqueue, Abort, Reset, Tasks, Subscribe: safe from any goroutine
//   - Handlers run in their own goroutine under a per-task context
//   - Status transitions are stamped with a monotonic logical clock
package queue

import (
	"context"
	"errors"

	"sync"

	"github.com/roach88/playback/internal/sched"
)

// Mode controls whether tasks under one key supersede each other.
type Mode int

const (
	// ModeExclusive tasks abort any pending task sharing their key
	// before starting. The default.
	ModeExclusive Mode = iota

	// ModeShared tasks run concurrently under the same key and never
	// cancel each other. Used for operations, like play, that are safe
	// to run overlapping.
	ModeShared
)

// CancelAll is the sentinel for Request.Cancel that aborts every pending
// task in the queue as a side effect of starting.
const CancelAll = "*"

// HandlerFunc performs the task's work. ctx is cancelled on abort or
// supersession; handlers mutating a shared target must check it before
// any mutation. A handler that ignores ctx still runs to completion, but
// its result is discarded once the task has been superseded.
type HandlerFunc func(ctx context.Context, input any) (any, error)

// GuardFunc gates a task before its handler runs. The first guard
// returning false (or an error) rejects the task without invoking the
// handler.
type GuardFunc func(ctx context.Context, input any) (bool, error)

// Request describes one task invocation.
type Request struct {
	// Name identifies the task for status tracking. Required.
	Name string

	// Key is the exclusivity scope. When empty and KeyFn is nil, the
	// task name is the key.
	Key string

	// KeyFn resolves a data-dependent key from the input, enabling
	// several requests to contend for one exclusivity slot.
	KeyFn func(input any) string

	// Mode selects supersession behavior. Zero value is ModeExclusive.
	Mode Mode

	// Cancel lists additional keys aborted as a side effect of this
	// task starting. The CancelAll sentinel aborts everything.
	Cancel []string

	// Guards run in order before the handler.
	Guards []GuardFunc

	// Schedule decides when the handler starts after key resolution.
	// Nil means sched.Immediate(). Superseding a still-scheduled task
	// cancels the schedule so its handler never runs.
	Schedule sched.Scheduler

	// Handler performs the work. Required.
	Handler HandlerFunc

	// Input is passed through to KeyFn, guards, and the handler.
	Input any
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces the transition clock. Tests inject a deterministic
// clock for stable trace seq numbers.
func WithClock(c Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithIDGenerator replaces the invocation ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(q *Queue) { q.ids = g }
}

// Queue owns the map of named tasks and their in-flight invocations.
type Queue struct {
	mu sync.Mutex

	clock Clock
	ids   IDGenerator

	baseCtx    context.Context
	baseCancel context.CancelFunc

	records map[string]*record
	active  map[string][]*running

	subs      map[int]func(Task)
	nextSubID int

	destroyed bool
}

// running is one in-flight (or scheduled) invocation. Guarded by Queue.mu
// except for ctx/handle, which are safe on their own.
type running struct {
	name string
	key  string
	id   string
	mode Mode

	ctx    context.Context
	cancel context.CancelFunc

	// cancelSched prevents a scheduled-but-not-started handler from ever
	// running. Nil until the scheduler returns.
	cancelSched func()

	handle *Handle
	req    Request

	started  bool
	finished bool
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		clock:      NewClock(),
		ids:        UUIDv7Generator{},
		baseCtx:    ctx,
		baseCancel: cancel,
		records:    make(map[string]*record),
		active:     make(map[string][]*running),
		subs:       make(map[int]func(Task)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue registers a task invocation and returns its handle.
//
// Order of effects: resolve the key, abort tasks named by the Cancel
// list, supersede pending tasks under the resolved key (unless
// ModeShared), record the pending transition, then hand the start to the
// request's scheduler.
func (q *Queue) Enqueue(req Request) *Handle {
	key := resolveKey(req)

	if req.Handler == nil {
		return NewRejectedHandle(req.Name, key,
			newError(CodeHandler, req.Name, key, "request has no handler", nil))
	}

	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return NewRejectedHandle(req.Name, key,
			newError(CodeDestroyed, req.Name, key, "queue is destroyed", nil))
	}

	victims, codes := q.collectVictimsLocked(req, key)

	ctx, cancel := context.WithCancel(q.baseCtx)
	id := q.ids.Generate()
	r := &running{
		name:   req.Name,
		key:    key,
		id:     id,
		mode:   req.Mode,
		ctx:    ctx,
		cancel: cancel,
		handle: newHandle(req.Name, key, id),
		req:    req,
	}
	q.active[key] = append(q.active[key], r)
	notify := q.setStatusLocked(r.name, r.key, r.id, StatusPending, nil)
	q.mu.Unlock()

	q.settleVictims(victims, codes)
	notify()

	scheduler := req.Schedule
	if scheduler == nil {
		scheduler = sched.Immediate()
	}
	cancelSched := scheduler.Schedule(func() { q.start(r) })

	q.mu.Lock()
	if r.finished {
		// Aborted between registration and schedule; make sure a
		// deferred flush never fires.
		q.mu.Unlock()
		cancelSched()
		return r.handle
	}
	r.cancelSched = cancelSched
	q.mu.Unlock()

	return r.handle
}

// resolveKey picks the exclusivity key for an invocation.
func resolveKey(req Request) string {
	if req.KeyFn != nil {
		return req.KeyFn(req.Input)
	}
	if req.Key != "" {
		return req.Key
	}
	return req.Name
}

// collectVictimsLocked gathers the pending tasks this request aborts:
// everything under the Cancel list's keys, plus — for exclusive
// requests — everything pending under the request's own key. Victims are
// removed from the active set and their error records are written here;
// cancellation and handle settlement happen in settleVictims, outside
// the lock.
func (q *Queue) collectVictimsLocked(req Request, key string) ([]*running, []Code) {
	var victims []*running
	var codes []Code
	seen := make(map[*running]struct{})

	add := func(r *running, code Code) {
		if _, dup := seen[r]; dup {
			return
		}
		seen[r] = struct{}{}
		victims = append(victims, r)
		codes = append(codes, code)
	}

	for _, ck := range req.Cancel {
		if ck == CancelAll {
			for _, rs := range q.active {
				for _, r := range rs {
					add(r, CodeCancelled)
				}
			}
			break
		}
		for _, r := range q.active[ck] {
			add(r, CodeCancelled)
		}
	}

	if req.Mode != ModeShared {
		for _, r := range q.active[key] {
			add(r, CodeSuperseded)
		}
	}

	for _, r := range victims {
		q.finishLocked(r)
	}
	return victims, codes
}

// settleVictims cancels each victim and settles its handle. The context
// is cancelled strictly before the handle settles so in-flight handlers
// observe the abort before any waiter observes the rejection.
func (q *Queue) settleVictims(victims []*running, codes []Code) {
	for i, r := range victims {
		code := codes[i]
		if r.cancelSched != nil {
			r.cancelSched()
		}
		r.cancel()

		msg := "task aborted"
		if code == CodeSuperseded {
			msg = "superseded by a later task under the same key"
		}
		err := newError(code, r.name, r.key, msg, nil)

		q.mu.Lock()
		notify := q.setStatusLocked(r.name, r.key, r.id, StatusError, err)
		q.mu.Unlock()

		r.handle.settle(nil, err)
		notify()
	}
}

// finishLocked removes a running task from the active set.
func (q *Queue) finishLocked(r *running) {
	r.finished = true
	rs := q.active[r.key]
	for i, other := range rs {
		if other == r {
			q.active[r.key] = append(rs[:i], rs[i+1:]...)
			break
		}
	}
	if len(q.active[r.key]) == 0 {
		delete(q.active, r.key)
	}
}

// start runs when the request's scheduler fires. A task aborted while
// still scheduled never reaches here with finished unset.
func (q *Queue) start(r *running) {
	q.mu.Lock()
	if r.finished || q.destroyed {
		q.mu.Unlock()
		return
	}
	r.started = true
	q.mu.Unlock()

	go q.run(r)
}

// run executes guards then the handler, and settles the task.
func (q *Queue) run(r *running) {
	for _, guard := range r.req.Guards {
		ok, err := guard(r.ctx, r.req.Input)
		if err != nil {
			q.settle(r, nil, newError(CodeRejected, r.name, r.key, "guard failed", err))
			return
		}
		if !ok {
			q.settle(r, nil, newError(CodeRejected, r.name, r.key, "guard rejected request", nil))
			return
		}
	}

	if r.ctx.Err() != nil {
		q.settle(r, nil, newError(CodeCancelled, r.name, r.key, "task aborted", r.ctx.Err()))
		return
	}

	result, err := r.req.Handler(r.ctx, r.req.Input)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			q.settle(r, nil, newError(CodeCancelled, r.name, r.key, "task aborted", err))
			return
		}
		q.settle(r, nil, newError(CodeHandler, r.name, r.key, "", err))
		return
	}
	q.settle(r, result, nil)
}

// settle records a task's own outcome. A task already finished (aborted
// or superseded) keeps its rejection; the late result is discarded.
func (q *Queue) settle(r *running, result any, err error) {
	q.mu.Lock()
	if r.finished {
		q.mu.Unlock()
		return
	}
	q.finishLocked(r)

	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	notify := q.setStatusLocked(r.name, r.key, r.id, status, err)
	q.mu.Unlock()

	r.handle.settle(result, err)
	notify()
}

// setStatusLocked updates a task record and returns the deferred
// subscriber notification. Callers invoke it after releasing the lock.
func (q *Queue) setStatusLocked(name, key, id string, status Status, err error) func() {
	rec, ok := q.records[name]
	if !ok {
		rec = &record{name: name}
		q.records[name] = rec
	}
	rec.key = key
	rec.id = id
	rec.status = status
	rec.err = err
	rec.seq = q.clock.Next()

	if len(q.subs) == 0 {
		return func() {}
	}
	task := rec.snapshot()
	fns := make([]func(Task), 0, len(q.subs))
	for _, fn := range q.subs {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(task)
		}
	}
}

// Abort cancels all pending tasks under key.
func (q *Queue) Abort(key string) {
	q.abortWhere(func(r *running) bool { return r.key == key })
}

// AbortAll cancels every pending task.
func (q *Queue) AbortAll() {
	q.abortWhere(func(*running) bool { return true })
}

func (q *Queue) abortWhere(match func(*running) bool) {
	q.mu.Lock()
	var victims []*running
	var codes []Code
	for _, rs := range q.active {
		for _, r := range rs {
			if match(r) {
				victims = append(victims, r)
				codes = append(codes, CodeCancelled)
			}
		}
	}
	for _, r := range victims {
		q.finishLocked(r)
	}
	q.mu.Unlock()

	q.settleVictims(victims, codes)
}

// Tasks returns a read-only snapshot of the name → task record map.
func (q *Queue) Tasks() map[string]Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]Task, len(q.records))
	for name, rec := range q.records {
		out[name] = rec.snapshot()
	}
	return out
}

// Task returns the record for one name.
func (q *Queue) Task(name string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[name]
	if !ok {
		return Task{}, false
	}
	return rec.snapshot(), true
}

// Reset clears a settled task record so its status reads idle again.
// A still-pending task is left alone.
func (q *Queue) Reset(name string) {
	q.mu.Lock()
	rec, ok := q.records[name]
	if !ok || rec.status == StatusPending {
		q.mu.Unlock()
		return
	}
	notify := q.setStatusLocked(name, rec.key, "", StatusIdle, nil)
	q.mu.Unlock()
	notify()
}

// ResetAll clears every settled task record.
func (q *Queue) ResetAll() {
	q.mu.Lock()
	names := make([]string, 0, len(q.records))
	for _, rec := range q.records {
		if rec.status != StatusPending {
			names = append(names, rec.name)
		}
	}
	q.mu.Unlock()

	for _, name := range names {
		q.Reset(name)
	}
}

// Subscribe registers a callback for every task status transition.
// Returns an unsubscribe function.
func (q *Queue) Subscribe(fn func(Task)) func() {
	q.mu.Lock()
	q.nextSubID++
	id := q.nextSubID
	q.subs[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}
}

// Destroyed reports whether Destroy has been called.
func (q *Queue) Destroyed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.destroyed
}

// Destroy aborts every pending task, drops all records, and refuses
// further enqueues. Idempotent.
func (q *Queue) Destroy() {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return
	}
	q.destroyed = true
	q.mu.Unlock()

	q.AbortAll()
	q.baseCancel()

	q.mu.Lock()
	q.records = make(map[string]*record)
	q.subs = make(map[int]func(Task))
	q.mu.Unlock()
}

// Package harness runs YAML playback scenarios against a real store
// wired to a fake media element. A deterministic clock and invocation
// ID generator make every run byte-identical, so traces can be compared
// against golden files.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/playback/internal/media"
	"github.com/roach88/playback/internal/queue"
	"github.com/roach88/playback/internal/state"
	"github.com/roach88/playback/internal/store"
	"github.com/roach88/playback/internal/testutil"
	"github.com/roach88/playback/internal/trace"
)

// runTimeout bounds a whole scenario. Scenarios are in-memory; anything
// slower than this is a deadlock.
const runTimeout = 10 * time.Second

// Run executes a scenario against an in-memory trace store.
func Run(scenario *Scenario) (*Result, error) {
	return RunRecorded(scenario, ":memory:")
}

// RunRecorded executes a scenario, persisting the trace to a SQLite
// database at tracePath.
func RunRecorded(scenario *Scenario, tracePath string) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	ts, err := trace.Open(tracePath)
	if err != nil {
		return nil, err
	}
	defer ts.Close()

	clock := testutil.NewDeterministicClock()
	ids := testutil.NewFixedIDGenerator("inv")
	rec := newRecorder(ts, clock)

	el := media.NewFakeElement()
	if scenario.Media.Duration > 0 {
		el.LoadDuration = scenario.Media.Duration
	}
	if scenario.Media.Source != "" {
		if err := el.Load(ctx, scenario.Media.Source); err != nil {
			return nil, fmt.Errorf("prime source: %w", err)
		}
	}
	// Latency and failure injection apply to in-flow loads only.
	el.LoadDelay = time.Duration(scenario.Media.LoadDelayMS) * time.Millisecond
	if scenario.Media.FailLoad != "" {
		el.FailLoad = errors.New(scenario.Media.FailLoad)
	}

	result := NewResult()
	var routedMu sync.Mutex

	st := media.NewStore(store.Config[media.Element]{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewQueue: func() *queue.Queue {
			q := queue.New(queue.WithClock(clock), queue.WithIDGenerator(ids))
			rec.watchQueue(q)
			return q
		},
		NewState: func(initial map[string]any) *state.State {
			s := state.New(initial)
			rec.watchState(s)
			return s
		},
		OnError: func(ec store.ErrorContext) {
			routedMu.Lock()
			result.Routed = append(result.Routed, fmt.Sprintf("%s/%s: %v", ec.Phase, ec.Task, ec.Err))
			routedMu.Unlock()
		},
	})
	defer st.Destroy()

	if _, err := st.Attach(el); err != nil {
		return nil, fmt.Errorf("attach element: %w", err)
	}

	if err := runFlow(ctx, scenario, st, el, rec, result); err != nil {
		return nil, err
	}

	result.State = st.Snapshot()
	result.Trace = rec.Events()
	if err := rec.Err(); err != nil {
		return nil, fmt.Errorf("trace recording: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// pendingStep is an invocation left unwaited by its own step; it is
// drained after the flow so every transition lands in the trace.
type pendingStep struct {
	index  int
	handle *queue.Handle
	expect *ExpectClause
}

func runFlow(ctx context.Context, scenario *Scenario, st *store.Store[media.Element], el *media.FakeElement, rec *recorder, result *Result) error {
	var pending []pendingStep

	for i, step := range scenario.Flow {
		if step.Event != "" {
			applyEvent(el, step.Event)
			continue
		}

		h := st.Request(step.Invoke)(normalizeInput(step.With))
		if step.Wait != nil && !*step.Wait {
			pending = append(pending, pendingStep{index: i, handle: h, expect: step.Expect})
			continue
		}
		if err := settleStep(ctx, i, h, step.Expect, rec, result); err != nil {
			return err
		}
	}

	for _, p := range pending {
		if err := settleStep(ctx, p.index, p.handle, p.expect, rec, result); err != nil {
			return err
		}
	}
	return nil
}

func settleStep(ctx context.Context, index int, h *queue.Handle, expect *ExpectClause, rec *recorder, result *Result) error {
	_, err := h.Wait(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("flow[%d]: %w", index, ctxErr)
	}
	if id := h.InvocationID(); id != "" {
		if werr := rec.waitTerminal(ctx, id); werr != nil {
			return fmt.Errorf("flow[%d]: %w", index, werr)
		}
	}
	checkExpect(index, h.Name(), err, expect, result)
	return nil
}

func checkExpect(index int, task string, err error, expect *ExpectClause, result *Result) {
	if expect == nil {
		return
	}
	switch expect.Status {
	case "success":
		if err != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected success, got error: %v", index, task, err))
		}
	case "error":
		if err == nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error, got success", index, task))
			return
		}
		if expect.Code != "" && string(queue.CodeOf(err)) != expect.Code {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected code %s, got %s (%v)",
				index, task, expect.Code, queue.CodeOf(err), err))
		}
	}
}

func applyEvent(el *media.FakeElement, event string) {
	switch event {
	case "ended":
		el.FinishPlayback()
	}
}

// normalizeInput coerces YAML-parsed values for task handlers: numbers
// become float64, containers recurse.
func normalizeInput(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = normalizeInput(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[k] = normalizeInput(el)
		}
		return out
	default:
		return v
	}
}

package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/playback/internal/trace"
)

// EvaluateAssertions checks every assertion against the run result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var msg string
		switch a.Type {
		case AssertTraceContains:
			msg = assertTraceContains(result, &a)
		case AssertTraceOrder:
			msg = assertTraceOrder(result, &a)
		case AssertTraceCount:
			msg = assertTraceCount(result, &a)
		case AssertFinalState:
			msg = assertFinalState(result, &a)
		default:
			msg = fmt.Sprintf("unknown assertion type %q", a.Type)
		}
		if msg != "" {
			failures = append(failures, fmt.Sprintf("assertion[%d] %s: %s", i, a.Type, msg))
		}
	}
	return failures
}

func transitionMatches(ev trace.Event, task, status string) bool {
	if ev.Kind != trace.KindTransition || ev.Task != task {
		return false
	}
	return status == "" || ev.Status == status
}

func assertTraceContains(result *Result, a *Assertion) string {
	for _, ev := range result.Trace {
		if transitionMatches(ev, a.Task, a.Status) {
			return ""
		}
	}
	if a.Status != "" {
		return fmt.Sprintf("no %s transition for task %q", a.Status, a.Task)
	}
	return fmt.Sprintf("no transition for task %q", a.Task)
}

// assertTraceOrder checks that the named tasks reached a terminal
// status in the given relative order. Other transitions may interleave.
func assertTraceOrder(result *Result, a *Assertion) string {
	next := 0
	for _, ev := range result.Trace {
		if next >= len(a.Tasks) {
			break
		}
		if ev.Kind != trace.KindTransition || ev.Task != a.Tasks[next] {
			continue
		}
		if ev.Status == "success" || ev.Status == "error" {
			next++
		}
	}
	if next < len(a.Tasks) {
		return fmt.Sprintf("expected terminal order [%s], stuck at %q",
			strings.Join(a.Tasks, ", "), a.Tasks[next])
	}
	return ""
}

func assertTraceCount(result *Result, a *Assertion) string {
	n := 0
	for _, ev := range result.Trace {
		if transitionMatches(ev, a.Task, a.Status) {
			n++
		}
	}
	if n != a.Count {
		return fmt.Sprintf("task %q: expected %d matching transitions, found %d", a.Task, a.Count, n)
	}
	return ""
}

func assertFinalState(result *Result, a *Assertion) string {
	var missing []string
	for key, want := range a.Expect {
		got, ok := result.State[key]
		if !ok {
			missing = append(missing, fmt.Sprintf("key %q absent", key))
			continue
		}
		if !valueEqual(got, want) {
			missing = append(missing, fmt.Sprintf("key %q: want %v, got %v", key, want, got))
		}
	}
	return strings.Join(missing, "; ")
}

// valueEqual compares a state value against a YAML-parsed expectation.
// YAML integers compare equal to float state values.
func valueEqual(got, want any) bool {
	if gf, ok := asFloat(got); ok {
		if wf, ok := asFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return reflect.DeepEqual(got, want)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

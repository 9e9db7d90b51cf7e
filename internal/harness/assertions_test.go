package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playback/internal/trace"
)

func sampleResult() *Result {
	return &Result{
		Pass: true,
		Trace: []trace.Event{
			{Seq: 1, Kind: trace.KindTransition, Task: "setVolume", Status: "pending"},
			{Seq: 2, Kind: trace.KindState, Changed: []string{"volume"}},
			{Seq: 3, Kind: trace.KindTransition, Task: "setVolume", Status: "success"},
			{Seq: 4, Kind: trace.KindTransition, Task: "seek", Status: "pending"},
			{Seq: 5, Kind: trace.KindTransition, Task: "seek", Status: "error", Error: "REJECTED"},
		},
		State: map[string]any{"volume": 0.25, "muted": false, "source": ""},
	}
}

func TestAssertTraceContains(t *testing.T) {
	r := sampleResult()

	failures := EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceContains, Task: "setVolume"},
		{Type: AssertTraceContains, Task: "setVolume", Status: "success"},
		{Type: AssertTraceContains, Task: "seek", Status: "error"},
	})
	assert.Empty(t, failures)

	failures = EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceContains, Task: "pause"},
		{Type: AssertTraceContains, Task: "seek", Status: "success"},
	})
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], `no transition for task "pause"`)
	assert.Contains(t, failures[1], `no success transition for task "seek"`)
}

func TestAssertTraceOrder(t *testing.T) {
	r := sampleResult()

	failures := EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceOrder, Tasks: []string{"setVolume", "seek"}},
	})
	assert.Empty(t, failures)

	failures = EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceOrder, Tasks: []string{"seek", "setVolume"}},
	})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "stuck at")
}

func TestAssertTraceCount(t *testing.T) {
	r := sampleResult()

	failures := EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceCount, Task: "setVolume", Count: 2},
		{Type: AssertTraceCount, Task: "setVolume", Status: "success", Count: 1},
		{Type: AssertTraceCount, Task: "pause", Count: 0},
	})
	assert.Empty(t, failures)

	failures = EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceCount, Task: "seek", Count: 3},
	})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "expected 3 matching transitions, found 2")
}

func TestAssertFinalState(t *testing.T) {
	r := sampleResult()

	failures := EvaluateAssertions(r, []Assertion{
		{Type: AssertFinalState, Expect: map[string]any{"volume": 0.25, "muted": false}},
	})
	assert.Empty(t, failures)

	// YAML integers compare equal to float state values.
	failures = EvaluateAssertions(r, []Assertion{
		{Type: AssertFinalState, Expect: map[string]any{"volume": 0.25, "source": ""}},
		{Type: AssertFinalState, Expect: map[string]any{"volume": 1}},
		{Type: AssertFinalState, Expect: map[string]any{"missing": true}},
	})
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], `key "volume"`)
	assert.Contains(t, failures[1], `key "missing" absent`)
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	failures := EvaluateAssertions(sampleResult(), []Assertion{{Type: "bogus"}})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "unknown assertion type")
}

func TestValueEqual(t *testing.T) {
	assert.True(t, valueEqual(0.25, 0.25))
	assert.True(t, valueEqual(120.0, 120))
	assert.True(t, valueEqual("a", "a"))
	assert.True(t, valueEqual(true, true))
	assert.False(t, valueEqual(0.25, "0.25"))
	assert.False(t, valueEqual(0.25, 0.5))
}

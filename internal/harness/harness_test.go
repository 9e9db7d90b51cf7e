package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playback/internal/trace"
)

func runScenarioFile(t *testing.T, name string) *Result {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	return result
}

func TestRun_VolumeRoundtrip(t *testing.T) {
	result := runScenarioFile(t, "volume-roundtrip.yaml")
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 0.25, result.State["volume"])
}

func TestRun_SeekRejected(t *testing.T) {
	result := runScenarioFile(t, "seek-rejected.yaml")
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// The rejection is also routed through the store's error hook.
	assert.NotEmpty(t, result.Routed)
}

func TestRun_PlaybackLifecycle(t *testing.T) {
	result := runScenarioFile(t, "playback-lifecycle.yaml")
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, true, result.State["ended"])
	assert.Equal(t, 120.0, result.State["currentTime"])
}

func TestRun_SourceSupersede(t *testing.T) {
	result := runScenarioFile(t, "source-supersede.yaml")
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_LoadFailure(t *testing.T) {
	result := runScenarioFile(t, "load-failure.yaml")
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "", result.State["source"])
}

func TestRun_ExpectMismatchFailsResult(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong-expect
description: expecting an error from a task that succeeds
flow:
  - invoke: setVolume
    with: 0.5
    expect:
      status: error
assertions:
  - type: trace_contains
    task: setVolume
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "expected error")
}

func TestRun_TraceIsClockOrdered(t *testing.T) {
	result := runScenarioFile(t, "volume-roundtrip.yaml")

	require.NotEmpty(t, result.Trace)
	last := int64(0)
	for _, ev := range result.Trace {
		assert.Greater(t, ev.Seq, last)
		last = ev.Seq
	}
}

func TestRunRecorded_PersistsTrace(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "volume-roundtrip.yaml"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "run.db")
	result, err := RunRecorded(s, path)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	ts, err := trace.Open(path)
	require.NoError(t, err)
	defer ts.Close()

	events, err := ts.Events(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, len(result.Trace))
}

func TestNormalizeInput(t *testing.T) {
	assert.Equal(t, 3.0, normalizeInput(3))
	assert.Equal(t, "x", normalizeInput("x"))
	assert.Equal(t, []any{1.0, "a"}, normalizeInput([]any{1, "a"}))
	assert.Equal(t, map[string]any{"n": 2.0}, normalizeInput(map[string]any{"n": 2}))
	assert.Nil(t, normalizeInput(nil))
}

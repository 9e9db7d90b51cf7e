package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/playback/internal/trace"
)

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// TraceJSON renders a result's trace as canonical JSON keyed by the
// scenario name. Golden comparison, in tests and in the CLI, goes
// through this one serialization.
func TraceJSON(name string, result *Result) ([]byte, error) {
	return trace.MarshalCanonical(snapshotMap(name, result))
}

// AssertGolden compares an already-computed result's trace against the
// named golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	payload, err := TraceJSON(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, payload)
	return nil
}

// snapshotMap flattens the trace into plain maps so canonical
// serialization orders every key deterministically. Empty fields are
// dropped to keep golden files readable.
func snapshotMap(name string, result *Result) map[string]any {
	events := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"kind": string(ev.Kind),
		}
		if ev.Task != "" {
			m["task"] = ev.Task
		}
		if ev.TaskKey != "" {
			m["taskKey"] = ev.TaskKey
		}
		if ev.InvocationID != "" {
			m["invocationId"] = ev.InvocationID
		}
		if ev.Status != "" {
			m["status"] = ev.Status
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		if len(ev.Changed) > 0 {
			m["changed"] = ev.Changed
		}
		if len(ev.State) > 0 {
			m["state"] = ev.State
		}
		events[i] = m
	}
	return map[string]any{
		"scenario_name": name,
		"trace":         events,
	}
}

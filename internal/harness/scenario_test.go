package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "volume-roundtrip.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "volume-roundtrip", s.Name)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, "setVolume", s.Flow[0].Invoke)
	assert.Equal(t, 0.25, s.Flow[0].With)
	require.NotNil(t, s.Flow[0].Expect)
	assert.Equal(t, "success", s.Flow[0].Expect.Status)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "scenarios", "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: catches misspelled keys
flow:
  - invoke: play
assertion:
  - type: trace_contains
    task: play
`))
	require.Error(t, err)
}

func TestParseScenario_RequiresFlowAndAssertions(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: empty
description: no flow
assertions:
  - type: trace_contains
    task: play
`))
	require.ErrorContains(t, err, "flow")

	_, err = ParseScenario([]byte(`
name: empty
description: no assertions
flow:
  - invoke: play
`))
	require.ErrorContains(t, err, "assertions")
}

func TestParseScenario_InvokeAndEventExclusive(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: both
description: invoke and event on one step
flow:
  - invoke: play
    event: ended
assertions:
  - type: trace_contains
    task: play
`))
	require.ErrorContains(t, err, "mutually exclusive")
}

func TestParseScenario_UnsupportedEvent(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: bad-event
description: unknown event name
flow:
  - event: exploded
assertions:
  - type: trace_contains
    task: play
`))
	require.ErrorContains(t, err, "unsupported event")
}

func TestParseScenario_ExpectValidation(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: bad-status
description: invalid expect status
flow:
  - invoke: play
    expect:
      status: maybe
assertions:
  - type: trace_contains
    task: play
`))
	require.ErrorContains(t, err, "status must be success or error")

	_, err = ParseScenario([]byte(`
name: code-on-success
description: code only makes sense on errors
flow:
  - invoke: play
    expect:
      status: success
      code: REJECTED
assertions:
  - type: trace_contains
    task: play
`))
	require.ErrorContains(t, err, "code requires status error")
}

func TestParseScenario_AssertionValidation(t *testing.T) {
	cases := map[string]string{
		"unknown type": `
name: s
description: d
flow:
  - invoke: play
assertions:
  - type: bogus
`,
		"trace_contains needs task": `
name: s
description: d
flow:
  - invoke: play
assertions:
  - type: trace_contains
`,
		"trace_order needs tasks": `
name: s
description: d
flow:
  - invoke: play
assertions:
  - type: trace_order
`,
		"final_state needs expect": `
name: s
description: d
flow:
  - invoke: play
assertions:
  - type: final_state
`,
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenario([]byte(yml))
			require.Error(t, err)
		})
	}
}

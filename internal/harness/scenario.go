package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a deterministic playback test: a fake media element,
// a flow of task invocations and element events, and assertions over
// the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed
	// by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Media configures the fake element before the store attaches.
	Media MediaConfig `yaml:"media,omitempty"`

	// Flow is the ordered list of steps to execute.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and final state after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// MediaConfig primes the fake element. A non-empty Source is loaded
// before the store attaches, so the scenario starts with media ready.
type MediaConfig struct {
	Source string `yaml:"source,omitempty"`

	// Duration is the duration loads report. Zero keeps the fake's
	// default.
	Duration float64 `yaml:"duration,omitempty"`

	// LoadDelayMS simulates network latency inside loads.
	LoadDelayMS int `yaml:"load_delay_ms,omitempty"`

	// FailLoad, when non-empty, makes the first in-flow load fail with
	// this message.
	FailLoad string `yaml:"fail_load,omitempty"`
}

// FlowStep is one step: either a task invocation (Invoke) or an element
// event (Event). Exactly one of the two must be set.
type FlowStep struct {
	// Invoke names the task to request (e.g. "setVolume").
	Invoke string `yaml:"invoke,omitempty"`

	// With is the task input. YAML integers are coerced to float64
	// since playback inputs are numbers and strings.
	With any `yaml:"with,omitempty"`

	// Expect validates the settled outcome. Nil skips validation.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Wait controls whether the runner blocks until this invocation
	// settles before the next step. Defaults to true; set false to
	// overlap invocations (supersession scenarios).
	Wait *bool `yaml:"wait,omitempty"`

	// Event raises an element-side event instead of invoking a task.
	// Supported: "ended".
	Event string `yaml:"event,omitempty"`
}

// ExpectClause specifies the expected settlement of an invocation.
type ExpectClause struct {
	// Status is "success" or "error".
	Status string `yaml:"status"`

	// Code is the expected error code for error settlements
	// (e.g. "REJECTED", "SUPERSEDED"). Empty matches any error.
	Code string `yaml:"code,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Task names the task (trace_contains, trace_count).
	Task string `yaml:"task,omitempty"`

	// Status filters transitions by status. Empty matches any.
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Tasks is the expected relative order of terminal transitions
	// (trace_order).
	Tasks []string `yaml:"tasks,omitempty"`

	// Expect holds expected state values, subset match (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// SupportedEvents lists the element events a flow step may raise.
var SupportedEvents = map[string]bool{
	"ended": true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		switch {
		case step.Invoke != "" && step.Event != "":
			return fmt.Errorf("flow[%d]: invoke and event are mutually exclusive", i)
		case step.Invoke == "" && step.Event == "":
			return fmt.Errorf("flow[%d]: invoke or event is required", i)
		case step.Event != "" && !SupportedEvents[step.Event]:
			return fmt.Errorf("flow[%d]: unsupported event %q", i, step.Event)
		case step.Event != "" && step.Expect != nil:
			return fmt.Errorf("flow[%d]: expect is only valid on invoke steps", i)
		case step.Event != "" && step.Wait != nil:
			return fmt.Errorf("flow[%d]: wait is only valid on invoke steps", i)
		}
		if step.Expect != nil {
			switch step.Expect.Status {
			case "success", "error":
			default:
				return fmt.Errorf("flow[%d].expect: status must be success or error, got %q", i, step.Expect.Status)
			}
			if step.Expect.Code != "" && step.Expect.Status != "error" {
				return fmt.Errorf("flow[%d].expect: code requires status error", i)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Task == "" {
			return fmt.Errorf("assertions[%d]: task is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Tasks) == 0 {
			return fmt.Errorf("assertions[%d]: tasks list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Task == "" {
			return fmt.Errorf("assertions[%d]: task is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

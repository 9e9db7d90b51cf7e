package harness

import "github.com/roach88/playback/internal/trace"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every task transition and state round in
	// logical-clock order.
	Trace []trace.Event `json:"trace"`

	// Errors lists expect and assertion failures. Empty when Pass.
	Errors []string `json:"errors,omitempty"`

	// State is the store snapshot after the flow finished.
	State map[string]any `json:"state,omitempty"`

	// Routed lists errors delivered through the store's error hook
	// during the run. Informational: a rejection a step expected still
	// shows up here.
	Routed []string `json:"routed,omitempty"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

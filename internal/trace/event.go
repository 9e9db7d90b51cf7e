package trace

// Kind distinguishes the two event shapes a recording contains.
type Kind string

const (
	// KindTransition is a task moving between statuses.
	KindTransition Kind = "transition"
	// KindState is a batched state change round.
	KindState Kind = "state"
)

// Event is one recorded row. Transition events carry Task, TaskKey,
// InvocationID, Status and Error; state events carry Changed and State.
type Event struct {
	Seq          int64          `json:"seq"`
	Kind         Kind           `json:"kind"`
	Task         string         `json:"task,omitempty"`
	TaskKey      string         `json:"taskKey,omitempty"`
	InvocationID string         `json:"invocationId,omitempty"`
	Status       string         `json:"status,omitempty"`
	Error        string         `json:"error,omitempty"`
	Changed      []string       `json:"changed,omitempty"`
	State        map[string]any `json:"state,omitempty"`
}

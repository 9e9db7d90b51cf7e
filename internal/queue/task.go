package queue

// Status is a task's position in the idle → pending → success|error
// machine. A superseded or cancelled task settles as StatusError.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Task is a read-only record of a named task's latest invocation.
// Exposed for introspection via Tasks and transition subscriptions.
type Task struct {
	// Name is the request name the task was enqueued under.
	Name string

	// Key is the exclusivity key resolved for the latest invocation.
	Key string

	// InvocationID identifies the latest invocation (UUIDv7 in
	// production, fixed sequences in tests).
	InvocationID string

	// Status is the latest recorded status.
	Status Status

	// Seq is the logical clock value of the latest transition.
	Seq int64

	// Err holds the rejection for StatusError records, nil otherwise.
	Err error
}

// record is the mutable backing entry for a Task. Guarded by Queue.mu.
type record struct {
	name string
	key  string
	id   string

	status Status
	seq    int64
	err    error
}

func (r *record) snapshot() Task {
	return Task{
		Name:         r.name,
		Key:          r.key,
		InvocationID: r.id,
		Status:       r.status,
		Seq:          r.seq,
		Err:          r.err,
	}
}

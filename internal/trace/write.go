package trace

import (
	"context"
	"fmt"
)

// RecordTransition appends a task status transition.
func (s *Store) RecordTransition(ctx context.Context, ev Event) error {
	if ev.Kind == "" {
		ev.Kind = KindTransition
	}
	if ev.Kind != KindTransition {
		return fmt.Errorf("record transition: kind %q", ev.Kind)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (seq, kind, task, task_key, invocation_id, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Seq, string(ev.Kind), ev.Task, ev.TaskKey, ev.InvocationID, ev.Status, ev.Error,
	)
	if err != nil {
		return fmt.Errorf("record transition seq %d: %w", ev.Seq, err)
	}
	return nil
}

// RecordState appends a state change round. The snapshot is stored as
// canonical JSON so recordings compare bytewise across runs.
func (s *Store) RecordState(ctx context.Context, ev Event) error {
	if ev.Kind == "" {
		ev.Kind = KindState
	}
	if ev.Kind != KindState {
		return fmt.Errorf("record state: kind %q", ev.Kind)
	}
	payload, err := MarshalCanonical(map[string]any{
		"changed": ev.Changed,
		"state":   ev.State,
	})
	if err != nil {
		return fmt.Errorf("record state seq %d: %w", ev.Seq, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (seq, kind, payload)
		VALUES (?, ?, ?)`,
		ev.Seq, string(ev.Kind), string(payload),
	)
	if err != nil {
		return fmt.Errorf("record state seq %d: %w", ev.Seq, err)
	}
	return nil
}

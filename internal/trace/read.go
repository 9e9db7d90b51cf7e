package trace

import (
	"context"
	"encoding/json"
	"fmt"
)

// Events returns every recorded event in logical-clock order. Events
// sharing a seq keep insertion order.
func (s *Store) Events(ctx context.Context) ([]Event, error) {
	return s.query(ctx, `
		SELECT seq, kind, task, task_key, invocation_id, status, error, payload
		FROM events ORDER BY seq, id`)
}

// Transitions returns the status transitions of one task, oldest first.
func (s *Store) Transitions(ctx context.Context, task string) ([]Event, error) {
	return s.query(ctx, `
		SELECT seq, kind, task, task_key, invocation_id, status, error, payload
		FROM events WHERE kind = ? AND task = ? ORDER BY seq, id`,
		string(KindTransition), task)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind, payload string
		if err := rows.Scan(&ev.Seq, &kind, &ev.Task, &ev.TaskKey,
			&ev.InvocationID, &ev.Status, &ev.Error, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		if payload != "" {
			var body struct {
				Changed []string       `json:"changed"`
				State   map[string]any `json:"state"`
			}
			if err := json.Unmarshal([]byte(payload), &body); err != nil {
				return nil, fmt.Errorf("decode payload seq %d: %w", ev.Seq, err)
			}
			ev.Changed = body.Changed
			ev.State = body.State
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndReadBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTransition(ctx, Event{
		Seq: 1, Task: "setVolume", TaskKey: "volume",
		InvocationID: "inv-1", Status: "pending",
	}))
	require.NoError(t, s.RecordState(ctx, Event{
		Seq:     2,
		Changed: []string{"volume"},
		State:   map[string]any{"volume": 0.5, "muted": false},
	}))
	require.NoError(t, s.RecordTransition(ctx, Event{
		Seq: 3, Task: "setVolume", TaskKey: "volume",
		InvocationID: "inv-1", Status: "success",
	}))

	events, err := s.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, KindTransition, events[0].Kind)
	assert.Equal(t, "pending", events[0].Status)
	assert.Equal(t, "inv-1", events[0].InvocationID)

	assert.Equal(t, KindState, events[1].Kind)
	assert.Equal(t, []string{"volume"}, events[1].Changed)
	assert.Equal(t, 0.5, events[1].State["volume"])
	assert.Equal(t, false, events[1].State["muted"])

	assert.Equal(t, "success", events[2].Status)
}

func TestStore_EventsOrderedBySeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTransition(ctx, Event{Seq: 5, Task: "b", Status: "pending"}))
	require.NoError(t, s.RecordTransition(ctx, Event{Seq: 2, Task: "a", Status: "pending"}))

	events, err := s.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Task)
	assert.Equal(t, "b", events[1].Task)
}

func TestStore_TransitionsFiltersByTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTransition(ctx, Event{Seq: 1, Task: "play", Status: "pending"}))
	require.NoError(t, s.RecordTransition(ctx, Event{Seq: 2, Task: "seek", Status: "pending"}))
	require.NoError(t, s.RecordTransition(ctx, Event{Seq: 3, Task: "play", Status: "success"}))
	require.NoError(t, s.RecordState(ctx, Event{Seq: 4, Changed: []string{"paused"}}))

	got, err := s.Transitions(ctx, "play")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pending", got[0].Status)
	assert.Equal(t, "success", got[1].Status)
}

func TestStore_RecordTransitionRejectsWrongKind(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordTransition(context.Background(), Event{Seq: 1, Kind: KindState})
	require.Error(t, err)
}

func TestStore_Count(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.RecordTransition(ctx, Event{Seq: 1, Task: "play", Status: "pending"}))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

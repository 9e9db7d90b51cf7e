package store

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playback/internal/state"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtendConfig_FeaturesConcatenate(t *testing.T) {
	a := volumeFeature()
	b := &FuncFeature[*fakeTarget]{Initial: map[string]any{"paused": true}}

	merged := ExtendConfig(
		Config[*fakeTarget]{Features: []Feature[*fakeTarget]{a}},
		Config[*fakeTarget]{Features: []Feature[*fakeTarget]{b}},
	)

	require.Len(t, merged.Features, 2)
	assert.Same(t, a, merged.Features[0])
	assert.Same(t, b, merged.Features[1])
}

func TestExtendConfig_DedupesByIdentityKeepingLater(t *testing.T) {
	a := volumeFeature()
	b := &FuncFeature[*fakeTarget]{Initial: map[string]any{"paused": true}}

	merged := ExtendConfig(
		Config[*fakeTarget]{Features: []Feature[*fakeTarget]{a, b}},
		Config[*fakeTarget]{Features: []Feature[*fakeTarget]{a}},
	)

	require.Len(t, merged.Features, 2)
	assert.Same(t, b, merged.Features[0], "re-listed feature moves to the extension's position")
	assert.Same(t, a, merged.Features[1])
}

func TestExtendConfig_HooksComposeBaseFirst(t *testing.T) {
	var order []string
	merged := ExtendConfig(
		Config[*fakeTarget]{
			OnSetup: func(*Store[*fakeTarget]) { order = append(order, "base") },
		},
		Config[*fakeTarget]{
			OnSetup: func(*Store[*fakeTarget]) { order = append(order, "ext") },
		},
	)

	merged.OnSetup(nil)
	assert.Equal(t, []string{"base", "ext"}, order)
}

func TestExtendConfig_NilHooksPassThrough(t *testing.T) {
	base := Config[*fakeTarget]{
		OnSetup: func(*Store[*fakeTarget]) {},
	}
	merged := ExtendConfig(base, Config[*fakeTarget]{})
	assert.NotNil(t, merged.OnSetup)
	assert.Nil(t, merged.OnAttach)
}

func TestExtendConfig_OnErrorComposes(t *testing.T) {
	var order []string
	merged := ExtendConfig(
		Config[*fakeTarget]{
			OnError: func(ErrorContext) { order = append(order, "base") },
		},
		Config[*fakeTarget]{
			OnError: func(ErrorContext) { order = append(order, "ext") },
		},
	)

	merged.OnError(ErrorContext{})
	assert.Equal(t, []string{"base", "ext"}, order)
}

func TestExtendConfig_ExtensionFactoriesOverride(t *testing.T) {
	baseCalled := false
	extCalled := false

	merged := ExtendConfig(
		Config[*fakeTarget]{
			NewState: func(initial map[string]any) *state.State { baseCalled = true; return nil },
		},
		Config[*fakeTarget]{
			NewState: func(initial map[string]any) *state.State { extCalled = true; return nil },
		},
	)

	merged.NewState(nil)
	assert.False(t, baseCalled)
	assert.True(t, extCalled)
}

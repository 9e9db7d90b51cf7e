package media

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playback/internal/queue"
	"github.com/roach88/playback/internal/store"
)

func quietStore(t *testing.T) (*store.Store[Element], *FakeElement) {
	t.Helper()
	s := NewStore(store.Config[Element]{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(s.Destroy)

	el := NewFakeElement()
	_, err := s.Attach(el)
	require.NoError(t, err)
	return s, el
}

func call(t *testing.T, s *store.Store[Element], name string, input any) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Call(ctx, name, input)
}

func TestStockFeatures_AttachSnapshot(t *testing.T) {
	s := NewStore()
	defer s.Destroy()

	el := NewFakeElement()
	el.SetVolume(0.8)
	_, err := s.Attach(el)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, 0.8, snap["volume"])
	assert.Equal(t, false, snap["muted"])
	assert.Equal(t, true, snap["paused"])
	assert.Equal(t, 0.0, snap["currentTime"])
	assert.Equal(t, "", snap["source"])
}

func TestStockFeatures_SetVolume(t *testing.T) {
	s, el := quietStore(t)

	result, err := call(t, s, "setVolume", 0.3)
	require.NoError(t, err)
	assert.Equal(t, 0.3, result)
	assert.Equal(t, 0.3, el.Volume())

	v, _ := s.State().Get("volume")
	assert.Equal(t, 0.3, v, "volumechange event refreshed state")
}

func TestStockFeatures_SetVolumeClamps(t *testing.T) {
	s, el := quietStore(t)

	result, err := call(t, s, "setVolume", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result)
	assert.Equal(t, 1.0, el.Volume())
}

func TestStockFeatures_MuteUnmute(t *testing.T) {
	s, el := quietStore(t)

	_, err := call(t, s, "mute", nil)
	require.NoError(t, err)
	assert.True(t, el.Muted())

	muted, _ := s.State().Get("muted")
	assert.Equal(t, true, muted)

	_, err = call(t, s, "unmute", nil)
	require.NoError(t, err)
	assert.False(t, el.Muted())
}

func TestStockFeatures_SeekRejectedBeforeLoad(t *testing.T) {
	s, el := quietStore(t)

	_, err := call(t, s, "seek", 10.0)
	assert.Equal(t, queue.CodeRejected, queue.CodeOf(err),
		"seek on an element with no metadata must be rejected by the guard")
	assert.Equal(t, 0.0, el.CurrentTime())
}

func TestStockFeatures_ChangeSourceThenSeek(t *testing.T) {
	s, el := quietStore(t)

	result, err := call(t, s, "changeSource", "https://example.com/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/clip.mp4", result)
	assert.Equal(t, ReadyMetadata, el.ReadyState())

	src, _ := s.State().Get("source")
	assert.Equal(t, "https://example.com/clip.mp4", src)

	pos, err := call(t, s, "seek", 12.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, pos)

	cur, _ := s.State().Get("currentTime")
	assert.Equal(t, 12.5, cur)
}

func TestStockFeatures_PlayPause(t *testing.T) {
	s, el := quietStore(t)

	_, err := call(t, s, "changeSource", "clip.mp4")
	require.NoError(t, err)

	_, err = call(t, s, "play", nil)
	require.NoError(t, err)
	assert.False(t, el.Paused())

	paused, _ := s.State().Get("paused")
	assert.Equal(t, false, paused)

	_, err = call(t, s, "pause", nil)
	require.NoError(t, err)
	assert.True(t, el.Paused())
}

func TestStockFeatures_PlayWithoutSourceFails(t *testing.T) {
	s, _ := quietStore(t)

	_, err := call(t, s, "play", nil)
	assert.Equal(t, queue.CodeHandler, queue.CodeOf(err))
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestStockFeatures_EndedEventReachesState(t *testing.T) {
	s, el := quietStore(t)

	_, err := call(t, s, "changeSource", "clip.mp4")
	require.NoError(t, err)
	_, err = call(t, s, "play", nil)
	require.NoError(t, err)

	el.FinishPlayback()

	ended, _ := s.State().Get("ended")
	assert.Equal(t, true, ended)
	cur, _ := s.State().Get("currentTime")
	assert.Equal(t, 60.0, cur)
}

func TestStockFeatures_ChangeSourceCancelsInFlightWork(t *testing.T) {
	s, el := quietStore(t)
	el.LoadDelay = 50 * time.Millisecond

	first := s.Request("changeSource")("slow.mp4")

	// Wait for the first load to be in flight, then supersede it.
	require.Eventually(t, func() bool { return el.Source() == "slow.mp4" },
		time.Second, time.Millisecond)

	second := s.Request("changeSource")("fast.mp4")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := first.Wait(ctx)
	assert.True(t, queue.IsCancelled(err), "first load superseded")

	_, err = second.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fast.mp4", el.Source())
}

func TestStockFeatures_DetachRemovesAllListeners(t *testing.T) {
	s := NewStore()
	defer s.Destroy()

	el := NewFakeElement()
	detach, err := s.Attach(el)
	require.NoError(t, err)
	require.Greater(t, el.ListenerCount(), 0)

	detach()

	require.Eventually(t, func() bool { return el.ListenerCount() == 0 },
		time.Second, time.Millisecond)
}

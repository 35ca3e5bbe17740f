package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func musicJobOf(typ string) *MusicJob {
	return &MusicJob{JobMeta: JobMeta{Type: typ, GuildID: "g1"}}
}

func TestMusicHandler_PlayQueueSkipStop(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	h := NewMusicHandler(client)

	play := func(q string) *PlaybackState {
		job := musicJobOf(TypePlayMusic)
		job.Query = q
		out, err := h.Handle(ctx, job)
		require.NoError(t, err)
		return out.(*PlaybackState)
	}

	state := play("first")
	assert.Equal(t, playbackPlaying, state.Status)
	assert.Equal(t, "first", state.Current)
	assert.EqualValues(t, 0, state.Queued)

	state = play("second")
	assert.Equal(t, "first", state.Current)
	assert.EqualValues(t, 1, state.Queued)

	out, err := h.Handle(ctx, musicJobOf(TypeSkipMusic))
	require.NoError(t, err)
	state = out.(*PlaybackState)
	assert.Equal(t, "second", state.Current)
	assert.EqualValues(t, 0, state.Queued)

	play("third")
	out, err = h.Handle(ctx, musicJobOf(TypeStopMusic))
	require.NoError(t, err)
	state = out.(*PlaybackState)
	assert.Equal(t, playbackStopped, state.Status)
	assert.Empty(t, state.Current)
	assert.EqualValues(t, 0, state.Queued)
}

func TestMusicHandler_SkipEmptyQueueStops(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	h := NewMusicHandler(client)

	job := musicJobOf(TypePlayMusic)
	job.Query = "only"
	_, err := h.Handle(ctx, job)
	require.NoError(t, err)

	out, err := h.Handle(ctx, musicJobOf(TypeSkipMusic))
	require.NoError(t, err)
	assert.Equal(t, playbackStopped, out.(*PlaybackState).Status)
}

func TestMusicHandler_PauseResume(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	h := NewMusicHandler(client)

	_, err := h.Handle(ctx, musicJobOf(TypePauseMusic))
	assert.ErrorIs(t, err, ErrPlaybackState)

	job := musicJobOf(TypePlayMusic)
	job.Query = "song"
	_, err = h.Handle(ctx, job)
	require.NoError(t, err)

	out, err := h.Handle(ctx, musicJobOf(TypePauseMusic))
	require.NoError(t, err)
	assert.Equal(t, playbackPaused, out.(*PlaybackState).Status)

	_, err = h.Handle(ctx, musicJobOf(TypePauseMusic))
	assert.ErrorIs(t, err, ErrPlaybackState)

	out, err = h.Handle(ctx, musicJobOf(TypeResumeMusic))
	require.NoError(t, err)
	assert.Equal(t, playbackPlaying, out.(*PlaybackState).Status)
}

func TestMusicHandler_Volume(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	h := NewMusicHandler(client)

	state, err := h.State(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, defaultVolume, state.Volume)

	job := musicJobOf(TypeSetVolume)
	job.Volume = 150
	out, err := h.Handle(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 150, out.(*PlaybackState).Volume)
}

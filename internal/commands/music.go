package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"bubbles/internal/constants"
)

const (
	playbackPlaying = "playing"
	playbackPaused  = "paused"
	playbackStopped = "stopped"

	defaultVolume = 100
)

var ErrPlaybackState = errors.New("invalid playback state")

// MusicHandler keeps per-guild playback state in Redis: a track queue list
// and a state hash. Audio itself is streamed elsewhere.
type MusicHandler struct {
	client redis.UniversalClient
}

func NewMusicHandler(client redis.UniversalClient) *MusicHandler {
	return &MusicHandler{client: client}
}

func queueKey(guildID string) string {
	return constants.CacheKeyPrefixMusic + guildID + ":queue"
}

func stateKey(guildID string) string {
	return constants.CacheKeyPrefixMusic + guildID + ":state"
}

// PlaybackState is the stored state of one guild's player.
type PlaybackState struct {
	Status  string `json:"status"`
	Current string `json:"current,omitempty"`
	Volume  int    `json:"volume"`
	Queued  int64  `json:"queued"`
}

func (h *MusicHandler) Handle(ctx context.Context, job *MusicJob) (interface{}, error) {
	switch job.Type {
	case TypePlayMusic:
		return h.play(ctx, job)
	case TypeSkipMusic:
		return h.skip(ctx, job.GuildID)
	case TypeStopMusic:
		return h.stop(ctx, job.GuildID)
	case TypePauseMusic:
		return h.transition(ctx, job.GuildID, playbackPlaying, playbackPaused)
	case TypeResumeMusic:
		return h.transition(ctx, job.GuildID, playbackPaused, playbackPlaying)
	case TypeSetVolume:
		return h.setVolume(ctx, job.GuildID, job.Volume)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, job.Type)
}

func (h *MusicHandler) play(ctx context.Context, job *MusicJob) (interface{}, error) {
	state, err := h.State(ctx, job.GuildID)
	if err != nil {
		return nil, err
	}

	if state.Current == "" {
		fields := map[string]interface{}{"status": playbackPlaying, "current": job.Query}
		if job.ChannelID != "" {
			fields["channel"] = job.ChannelID
		}
		if err := h.client.HSet(ctx, stateKey(job.GuildID), fields).Err(); err != nil {
			return nil, fmt.Errorf("failed to start playback: %w", err)
		}
		return h.State(ctx, job.GuildID)
	}

	if err := h.client.RPush(ctx, queueKey(job.GuildID), job.Query).Err(); err != nil {
		return nil, fmt.Errorf("failed to queue track: %w", err)
	}
	return h.State(ctx, job.GuildID)
}

func (h *MusicHandler) skip(ctx context.Context, guildID string) (interface{}, error) {
	next, err := h.client.LPop(ctx, queueKey(guildID)).Result()
	if errors.Is(err, redis.Nil) {
		return h.stop(ctx, guildID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to skip track: %w", err)
	}

	if err := h.client.HSet(ctx, stateKey(guildID), "status", playbackPlaying, "current", next).Err(); err != nil {
		return nil, fmt.Errorf("failed to update playback state: %w", err)
	}
	return h.State(ctx, guildID)
}

func (h *MusicHandler) stop(ctx context.Context, guildID string) (interface{}, error) {
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, queueKey(guildID))
		pipe.HSet(ctx, stateKey(guildID), "status", playbackStopped, "current", "")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stop playback: %w", err)
	}
	return h.State(ctx, guildID)
}

func (h *MusicHandler) transition(ctx context.Context, guildID, from, to string) (interface{}, error) {
	state, err := h.State(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if state.Status != from {
		return nil, fmt.Errorf("%w: player is %s, expected %s", ErrPlaybackState, state.Status, from)
	}
	if err := h.client.HSet(ctx, stateKey(guildID), "status", to).Err(); err != nil {
		return nil, fmt.Errorf("failed to update playback state: %w", err)
	}
	state.Status = to
	return state, nil
}

func (h *MusicHandler) setVolume(ctx context.Context, guildID string, volume int) (interface{}, error) {
	if err := h.client.HSet(ctx, stateKey(guildID), "volume", volume).Err(); err != nil {
		return nil, fmt.Errorf("failed to set volume: %w", err)
	}
	return h.State(ctx, guildID)
}

// State reads the player of guildID. A guild that never played is stopped.
func (h *MusicHandler) State(ctx context.Context, guildID string) (*PlaybackState, error) {
	fields, err := h.client.HGetAll(ctx, stateKey(guildID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read playback state: %w", err)
	}
	queued, err := h.client.LLen(ctx, queueKey(guildID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}

	state := &PlaybackState{
		Status:  fields["status"],
		Current: fields["current"],
		Volume:  defaultVolume,
		Queued:  queued,
	}
	if state.Status == "" {
		state.Status = playbackStopped
	}
	if v, err := strconv.Atoi(fields["volume"]); err == nil {
		state.Volume = v
	}
	return state, nil
}

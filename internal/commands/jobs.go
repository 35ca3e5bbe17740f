package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bubbles/internal/unified"
)

const (
	TypeBanUser        = "BAN_USER"
	TypeKickUser       = "KICK_USER"
	TypeTimeoutUser    = "TIMEOUT_USER"
	TypeUnbanUser      = "UNBAN_USER"
	TypePlayMusic      = "PLAY_MUSIC"
	TypeSkipMusic      = "SKIP_MUSIC"
	TypeStopMusic      = "STOP_MUSIC"
	TypePauseMusic     = "PAUSE_MUSIC"
	TypeResumeMusic    = "RESUME_MUSIC"
	TypeSetVolume      = "SET_VOLUME"
	TypeSendMessage    = "SEND_MESSAGE"
	TypeDeleteMessage  = "DELETE_MESSAGE"
	TypeUpdateConfig   = "UPDATE_CONFIG"
	TypeEndGiveaway    = "END_GIVEAWAY"
	TypeRerollGiveaway = "REROLL_GIVEAWAY"
)

var (
	ErrUnknownType = errors.New("unknown command type")
	ErrInvalidJob  = errors.New("invalid job")
)

// JobMeta is shared by every job variant.
type JobMeta struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	GuildID   string    `json:"guildId"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
}

func (m JobMeta) Meta() JobMeta { return m }

// Job is one typed command. The concrete type is one of ModerationJob,
// MusicJob, MessageJob, ConfigJob or GiveawayJob.
type Job interface {
	Meta() JobMeta
}

type ModerationJob struct {
	JobMeta
	TargetUserID      string        `json:"targetUserId"`
	Reason            string        `json:"reason,omitempty"`
	DeleteMessageDays int           `json:"deleteMessageDays,omitempty"`
	Duration          time.Duration `json:"duration,omitempty"`
}

type MusicJob struct {
	JobMeta
	Query     string `json:"query,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Volume    int    `json:"volume,omitempty"`
}

type MessageJob struct {
	JobMeta
	ChannelID string `json:"channelId"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

type ConfigJob struct {
	JobMeta
	Settings map[string]interface{} `json:"settings"`
}

type GiveawayJob struct {
	JobMeta
	GiveawayID string `json:"giveawayId"`
	Winners    int    `json:"winners"`
}

// FromRequest converts a normalized request into its typed job.
func FromRequest(req *unified.NormalizedRequest) (Job, error) {
	meta := JobMeta{
		ID:        req.ID,
		Timestamp: req.Timestamp,
		GuildID:   req.GuildID,
		UserID:    req.UserID,
		Type:      req.Type,
	}
	data := payload(req.Data)

	switch req.Type {
	case TypeBanUser, TypeKickUser, TypeTimeoutUser, TypeUnbanUser:
		return moderationJob(meta, data)
	case TypePlayMusic, TypeSkipMusic, TypeStopMusic, TypePauseMusic, TypeResumeMusic, TypeSetVolume:
		return musicJob(meta, data)
	case TypeSendMessage, TypeDeleteMessage:
		return messageJob(meta, data)
	case TypeUpdateConfig:
		return configJob(meta, data)
	case TypeEndGiveaway, TypeRerollGiveaway:
		return giveawayJob(meta, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, req.Type)
	}
}

func moderationJob(meta JobMeta, data payload) (Job, error) {
	if meta.GuildID == "" {
		return nil, missing("guildId")
	}
	job := &ModerationJob{
		JobMeta:           meta,
		TargetUserID:      data.str("targetUserId"),
		Reason:            data.str("reason"),
		DeleteMessageDays: data.integer("deleteMessageDays"),
	}
	if job.TargetUserID == "" {
		job.TargetUserID = meta.UserID
	}
	if job.TargetUserID == "" {
		return nil, missing("targetUserId")
	}
	if job.DeleteMessageDays < 0 || job.DeleteMessageDays > 7 {
		return nil, fmt.Errorf("%w: deleteMessageDays must be between 0 and 7", ErrInvalidJob)
	}
	if meta.Type == TypeTimeoutUser {
		seconds := data.integer("durationSeconds")
		if seconds <= 0 {
			return nil, missing("durationSeconds")
		}
		job.Duration = time.Duration(seconds) * time.Second
	}
	return job, nil
}

func musicJob(meta JobMeta, data payload) (Job, error) {
	if meta.GuildID == "" {
		return nil, missing("guildId")
	}
	job := &MusicJob{
		JobMeta:   meta,
		Query:     data.str("query"),
		ChannelID: data.str("channelId"),
	}
	switch meta.Type {
	case TypePlayMusic:
		if strings.TrimSpace(job.Query) == "" {
			return nil, missing("query")
		}
	case TypeSetVolume:
		if !data.has("volume") {
			return nil, missing("volume")
		}
		job.Volume = data.integer("volume")
		if job.Volume < 0 || job.Volume > 200 {
			return nil, fmt.Errorf("%w: volume must be between 0 and 200", ErrInvalidJob)
		}
	}
	return job, nil
}

func messageJob(meta JobMeta, data payload) (Job, error) {
	job := &MessageJob{
		JobMeta:   meta,
		ChannelID: data.str("channelId"),
		Content:   data.str("content"),
		MessageID: data.str("messageId"),
	}
	if job.ChannelID == "" {
		return nil, missing("channelId")
	}
	if meta.Type == TypeSendMessage && job.Content == "" {
		return nil, missing("content")
	}
	if meta.Type == TypeDeleteMessage && job.MessageID == "" {
		return nil, missing("messageId")
	}
	return job, nil
}

func configJob(meta JobMeta, data payload) (Job, error) {
	if meta.GuildID == "" {
		return nil, missing("guildId")
	}
	settings, ok := data["settings"].(map[string]interface{})
	if !ok || len(settings) == 0 {
		return nil, missing("settings")
	}
	return &ConfigJob{JobMeta: meta, Settings: settings}, nil
}

func giveawayJob(meta JobMeta, data payload) (Job, error) {
	job := &GiveawayJob{
		JobMeta:    meta,
		GiveawayID: data.str("giveawayId"),
		Winners:    data.integer("winners"),
	}
	if job.GiveawayID == "" {
		return nil, missing("giveawayId")
	}
	if job.Winners <= 0 {
		job.Winners = 1
	}
	return job, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidJob, field)
}

// payload reads loosely typed request data. Numbers decoded from JSON
// arrive as float64.
type payload map[string]interface{}

func (p payload) has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p payload) str(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p payload) integer(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

type ModerationHandler struct {
	session Session
}

func NewModerationHandler(session Session) *ModerationHandler {
	return &ModerationHandler{session: session}
}

func (h *ModerationHandler) Handle(ctx context.Context, job *ModerationJob) (interface{}, error) {
	opt := discordgo.WithContext(ctx)

	switch job.Type {
	case TypeBanUser:
		if err := h.session.GuildBanCreateWithReason(job.GuildID, job.TargetUserID, job.Reason, job.DeleteMessageDays, opt); err != nil {
			return nil, fmt.Errorf("failed to ban user %s: %w", job.TargetUserID, err)
		}
		return map[string]interface{}{"action": "ban", "userId": job.TargetUserID, "guildId": job.GuildID}, nil

	case TypeKickUser:
		if err := h.session.GuildMemberDeleteWithReason(job.GuildID, job.TargetUserID, job.Reason, opt); err != nil {
			return nil, fmt.Errorf("failed to kick user %s: %w", job.TargetUserID, err)
		}
		return map[string]interface{}{"action": "kick", "userId": job.TargetUserID, "guildId": job.GuildID}, nil

	case TypeTimeoutUser:
		until := time.Now().Add(job.Duration)
		if err := h.session.GuildMemberTimeout(job.GuildID, job.TargetUserID, &until, opt); err != nil {
			return nil, fmt.Errorf("failed to time out user %s: %w", job.TargetUserID, err)
		}
		return map[string]interface{}{"action": "timeout", "userId": job.TargetUserID, "until": until}, nil

	case TypeUnbanUser:
		if err := h.session.GuildBanDelete(job.GuildID, job.TargetUserID, opt); err != nil {
			return nil, fmt.Errorf("failed to unban user %s: %w", job.TargetUserID, err)
		}
		return map[string]interface{}{"action": "unban", "userId": job.TargetUserID, "guildId": job.GuildID}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownType, job.Type)
}

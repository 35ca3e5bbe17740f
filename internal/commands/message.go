package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type MessageHandler struct {
	session Session
}

func NewMessageHandler(session Session) *MessageHandler {
	return &MessageHandler{session: session}
}

func (h *MessageHandler) Send(ctx context.Context, job *MessageJob) (interface{}, error) {
	msg, err := h.session.ChannelMessageSend(job.ChannelID, job.Content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to send message to %s: %w", job.ChannelID, err)
	}
	out := map[string]interface{}{"channelId": job.ChannelID}
	if msg != nil {
		out["messageId"] = msg.ID
	}
	return out, nil
}

func (h *MessageHandler) Delete(ctx context.Context, job *MessageJob) (interface{}, error) {
	if err := h.session.ChannelMessageDelete(job.ChannelID, job.MessageID, discordgo.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("failed to delete message %s: %w", job.MessageID, err)
	}
	return map[string]interface{}{"channelId": job.ChannelID, "messageId": job.MessageID, "deleted": true}, nil
}

package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"bubbles/internal/botlink"
	"bubbles/internal/commands"
	"bubbles/internal/unified"
)

// BotLink is the gateway side of the connection to the bot.
type BotLink interface {
	IsConnected() bool
	SendRequest(ctx context.Context, req *unified.NormalizedRequest) (json.RawMessage, error)
}

// WebSocket forwards requests to the bot over the bot link.
type WebSocket struct {
	link BotLink
}

func NewWebSocket(link BotLink) *WebSocket {
	return &WebSocket{link: link}
}

func (w *WebSocket) Method() unified.Method { return unified.MethodWebSocket }

func (w *WebSocket) Execute(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
	if !w.link.IsConnected() {
		return nil, botlink.ErrNotConnected
	}

	raw, err := w.link.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeResult(raw)
}

func (w *WebSocket) Probe(context.Context) error {
	if !w.link.IsConnected() {
		return botlink.ErrNotConnected
	}
	return nil
}

func decodeResult(raw json.RawMessage) (commands.Result, error) {
	var res commands.Result
	if len(raw) == 0 {
		return res, fmt.Errorf("empty command result")
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return res, fmt.Errorf("failed to decode command result: %w", err)
	}
	return res, nil
}

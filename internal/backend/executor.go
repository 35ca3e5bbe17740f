package backend

import (
	"context"
	"errors"

	"bubbles/internal/commands"
	"bubbles/internal/unified"
)

var ErrBotNotReady = errors.New("bot session is not ready")

// LocalExecutor runs a request on the bot. The bot link server and the
// queue worker both use it.
type LocalExecutor func(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error)

// NewLocalExecutor wraps commands.ExecuteRequest. While ready reports false
// requests fail with ErrBotNotReady so the queue retries them later.
func NewLocalExecutor(factory *commands.Factory, ready func() bool) LocalExecutor {
	return func(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
		if ready != nil && !ready() {
			return nil, ErrBotNotReady
		}
		return commands.ExecuteRequest(ctx, factory, req), nil
	}
}

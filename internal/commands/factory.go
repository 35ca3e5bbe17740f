package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bubbles/internal/logger"
	"bubbles/internal/unified"
	apperrors "bubbles/pkg/errors"
	"bubbles/pkg/metrics"
)

var ErrNotConfigured = errors.New("command handler is not configured")

// Dependencies are the clients handlers are built from. A nil field leaves
// the matching handler unconfigured.
type Dependencies struct {
	Session Session
	Redis   redis.UniversalClient
	Configs GuildConfigStore
}

// Factory routes typed jobs to their handler.
type Factory struct {
	moderation *ModerationHandler
	messages   *MessageHandler
	music      *MusicHandler
	configs    *ConfigHandler
	giveaways  *GiveawayHandler
	logger     logger.Logger
}

func NewFactory(deps Dependencies, log logger.Logger) *Factory {
	f := &Factory{logger: log}
	if deps.Session != nil {
		f.moderation = NewModerationHandler(deps.Session)
		f.messages = NewMessageHandler(deps.Session)
	}
	if deps.Redis != nil {
		f.music = NewMusicHandler(deps.Redis)
		f.giveaways = NewGiveawayHandler(deps.Redis, deps.Session)
	}
	if deps.Configs != nil {
		f.configs = NewConfigHandler(deps.Configs)
	}
	return f
}

// Ready reports whether the Discord-facing handlers can run.
func (f *Factory) Ready() bool {
	return f.moderation != nil && f.messages != nil
}

// Process runs job and never returns an error: failures come back as a
// Result with Success false.
func (f *Factory) Process(ctx context.Context, job Job) (res Result) {
	meta := job.Meta()
	defer func() {
		if r := recover(); r != nil {
			res = fail(apperrors.RecoverPanic(r))
		}
		status := "success"
		if !res.Success {
			status = "failure"
			f.logger.WarnwCtx(ctx, "Command failed",
				"type", meta.Type,
				"job_id", meta.ID,
				"guild_id", meta.GuildID,
				"error", res.Error,
			)
		}
		metrics.CommandsExecutedTotal.WithLabelValues(meta.Type, status).Inc()
	}()

	data, err := f.dispatch(ctx, job)
	if err != nil {
		return fail(err)
	}
	return ok(data)
}

func (f *Factory) dispatch(ctx context.Context, job Job) (interface{}, error) {
	switch j := job.(type) {
	case *ModerationJob:
		if f.moderation == nil {
			return nil, notConfigured("moderation")
		}
		return f.moderation.Handle(ctx, j)
	case *MessageJob:
		if f.messages == nil {
			return nil, notConfigured("message")
		}
		if j.Type == TypeDeleteMessage {
			return f.messages.Delete(ctx, j)
		}
		return f.messages.Send(ctx, j)
	case *MusicJob:
		if f.music == nil {
			return nil, notConfigured("music")
		}
		return f.music.Handle(ctx, j)
	case *ConfigJob:
		if f.configs == nil {
			return nil, notConfigured("config")
		}
		return f.configs.Handle(ctx, j)
	case *GiveawayJob:
		if f.giveaways == nil {
			return nil, notConfigured("giveaway")
		}
		return f.giveaways.Handle(ctx, j)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownType, job)
}

func notConfigured(handler string) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, handler)
}

// ExecuteRequest is the single command entry point for the direct strategy,
// the bot link server and the queue worker.
func ExecuteRequest(ctx context.Context, f *Factory, req *unified.NormalizedRequest) Result {
	job, err := FromRequest(req)
	if errors.Is(err, ErrUnknownType) {
		return fail(fmt.Errorf("unknown command type: %s", req.Type))
	}
	if err != nil {
		return fail(err)
	}

	// Deletes skip the factory bookkeeping and go straight to the session.
	if msg, isMsg := job.(*MessageJob); isMsg && msg.Type == TypeDeleteMessage {
		if f.messages == nil {
			return fail(notConfigured("message"))
		}
		data, err := f.messages.Delete(ctx, msg)
		if err != nil {
			return fail(err)
		}
		return ok(data)
	}

	return f.Process(ctx, job)
}

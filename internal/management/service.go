package management

import (
	"context"

	"bubbles/internal/config"
	"bubbles/internal/logger"
	"bubbles/pkg/cel"
	apperrors "bubbles/pkg/errors"
	"bubbles/pkg/models"
)

// RuleStore holds the active hint rule set of this instance.
type RuleStore interface {
	Replace(rules []config.HintRuleConfig) error
	Rules() []config.HintRuleConfig
}

type Service struct {
	store     RuleStore
	evaluator *cel.Evaluator
	events    *ConfigEventProducer
	logger    logger.Logger
}

// NewService creates the rule service. A nil events producer keeps changes
// local to this instance.
func NewService(store RuleStore, evaluator *cel.Evaluator, events *ConfigEventProducer, log logger.Logger) *Service {
	return &Service{
		store:     store,
		evaluator: evaluator,
		events:    events,
		logger:    log,
	}
}

func (s *Service) ListHintRules(context.Context) []config.HintRuleConfig {
	return s.store.Rules()
}

// ReplaceHintRules validates and activates rules locally, then broadcasts
// them. A failed broadcast leaves the local change in place.
func (s *Service) ReplaceHintRules(ctx context.Context, rules []config.HintRuleConfig, changedBy string) ([]config.HintRuleConfig, error) {
	if err := ValidateHintRules(s.evaluator, rules); err != nil {
		return nil, apperrors.ErrValidation.WithCause(err).WithDetail("message", err.Error())
	}

	if err := s.store.Replace(rules); err != nil {
		return nil, apperrors.ErrValidation.WithCause(err).WithDetail("message", err.Error())
	}

	s.logger.InfowCtx(ctx, "Hint rules replaced",
		"count", len(rules),
		"changed_by", changedBy,
	)

	if err := s.events.PublishHintRulesEvent(ctx, models.ActionUpdate, changedBy, rules); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish hint rules event", "error", err)
		return nil, apperrors.Wrap(err, apperrors.ErrServiceUnavailable).
			WithDetail("message", "rules applied on this instance but not propagated")
	}

	return s.store.Rules(), nil
}

// ReloadHintRules rebroadcasts the current set, e.g. after a new instance
// joined with stale configuration.
func (s *Service) ReloadHintRules(ctx context.Context, changedBy string) error {
	if err := s.events.PublishHintRulesEvent(ctx, models.ActionReload, changedBy, s.store.Rules()); err != nil {
		return apperrors.Wrap(err, apperrors.ErrServiceUnavailable)
	}
	return nil
}

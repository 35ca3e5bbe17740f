package config_handler

import (
	"context"
	"encoding/json"
	"fmt"

	"bubbles/internal/config"
	"bubbles/internal/logger"
	"bubbles/pkg/models"
	"bubbles/pkg/retry"
)

// RuleReplacer swaps the active hint rule set.
type RuleReplacer interface {
	Replace(rules []config.HintRuleConfig) error
}

// Handler applies hint rule updates published on the config update topic.
type Handler struct {
	replacer RuleReplacer
	logger   logger.Logger
}

func NewHandler(replacer RuleReplacer, log logger.Logger) *Handler {
	return &Handler{replacer: replacer, logger: log}
}

func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, envelope models.MessageEnvelope) error {
	eventType, _ := envelope.Payload["event_type"].(string)
	if eventType == "" {
		h.logger.WarnwCtx(ctx, "Config event missing event_type", "id", envelope.ID)
		return nil
	}
	if eventType != models.EventTypeHintRulesUpdated {
		return nil
	}

	serviceType, _ := envelope.Payload["service_type"].(string)
	if serviceType != models.ServiceTypeRouting {
		return nil
	}

	raw, err := json.Marshal(envelope.Payload)
	if err != nil {
		return retry.Fatal(fmt.Errorf("failed to marshal event payload: %w", err))
	}

	var event models.ConfigUpdateEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to unmarshal config event", "error", err, "id", envelope.ID)
		return retry.Fatal(err)
	}

	var rules []config.HintRuleConfig
	if len(event.Rules) > 0 {
		if err := json.Unmarshal(event.Rules, &rules); err != nil {
			h.logger.ErrorwCtx(ctx, "Failed to decode hint rules", "error", err, "id", envelope.ID)
			return retry.Fatal(err)
		}
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"rules", len(rules),
		"changed_by", event.ChangedBy,
	)

	// A rule set that does not compile is rejected as a whole and the
	// current rules stay active.
	if err := h.replacer.Replace(rules); err != nil {
		h.logger.ErrorwCtx(ctx, "Rejected hint rule update", "error", err)
		return retry.Fatal(err)
	}

	h.logger.InfowCtx(ctx, "Hint rules reloaded", "count", len(rules))
	return nil
}

package management

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bubbles/internal/broker"
	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/pkg/models"
)

// ConfigEventProducer announces rule changes so every gateway instance
// reloads the same set.
type ConfigEventProducer struct {
	producer broker.Producer
	topic    string
}

func NewConfigEventProducer(producer broker.Producer, topic string) *ConfigEventProducer {
	return &ConfigEventProducer{
		producer: producer,
		topic:    topic,
	}
}

func (p *ConfigEventProducer) PublishHintRulesEvent(ctx context.Context, action, changedBy string, rules []config.HintRuleConfig) error {
	if rules == nil {
		rules = []config.HintRuleConfig{}
	}
	encoded, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to marshal hint rules: %w", err)
	}

	event := models.ConfigUpdateEvent{
		EventType:   models.EventTypeHintRulesUpdated,
		ServiceType: models.ServiceTypeRouting,
		Action:      action,
		Timestamp:   time.Now(),
		ChangedBy:   changedBy,
		Rules:       encoded,
	}
	return p.publishEvent(ctx, event)
}

func (p *ConfigEventProducer) publishEvent(ctx context.Context, event models.ConfigUpdateEvent) error {
	if p == nil || p.producer == nil || p.topic == "" {
		return nil
	}

	payload, err := models.PayloadFrom(event)
	if err != nil {
		return fmt.Errorf("failed to encode config event: %w", err)
	}

	envelope := models.NewMessageEnvelopeBuilder().
		WithID(uuid.NewString()).
		WithSource(constants.ServiceGateway).
		WithTimestamp(event.Timestamp).
		WithPayload(payload).
		Build()

	if err := p.producer.Publish(ctx, p.topic, *envelope); err != nil {
		return fmt.Errorf("failed to publish config event: %w", err)
	}
	return nil
}

package broker

import (
	"context"

	"bubbles/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc processes one envelope. Returned errors are retried and the
// envelope goes to the DLQ once retries run out.
type HandlerFunc func(ctx context.Context, msg models.MessageEnvelope) error

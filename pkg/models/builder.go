package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type MessageEnvelopeBuilder struct {
	envelope MessageEnvelope
}

func NewMessageEnvelopeBuilder() *MessageEnvelopeBuilder {
	return &MessageEnvelopeBuilder{
		envelope: MessageEnvelope{Payload: make(map[string]interface{})},
	}
}

func (b *MessageEnvelopeBuilder) WithID(id string) *MessageEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *MessageEnvelopeBuilder) WithSource(source string) *MessageEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *MessageEnvelopeBuilder) WithTimestamp(timestamp time.Time) *MessageEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *MessageEnvelopeBuilder) WithPayload(payload map[string]interface{}) *MessageEnvelopeBuilder {
	b.envelope.Payload = payload
	return b
}

func (b *MessageEnvelopeBuilder) WithTraceID(traceID string) *MessageEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

// WithRequestID correlates a response envelope with the request it answers.
func (b *MessageEnvelopeBuilder) WithRequestID(requestID string) *MessageEnvelopeBuilder {
	b.envelope.Metadata.RequestID = requestID
	return b
}

func (b *MessageEnvelopeBuilder) WithReplyTo(topic string) *MessageEnvelopeBuilder {
	b.envelope.Metadata.ReplyTo = topic
	return b
}

// InReplyTo carries the trace and request correlation of req over.
func (b *MessageEnvelopeBuilder) InReplyTo(req MessageEnvelope) *MessageEnvelopeBuilder {
	b.envelope.Metadata.TraceID = req.Metadata.TraceID
	b.envelope.Metadata.RequestID = req.Metadata.RequestID
	if b.envelope.Metadata.RequestID == "" {
		b.envelope.Metadata.RequestID = req.ID
	}
	return b
}

func (b *MessageEnvelopeBuilder) Build() *MessageEnvelope {
	env := b.envelope
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	return &env
}

// PayloadFrom converts v into the generic payload map through its JSON form,
// so consumers decode it with the same tags it was produced with.
func PayloadFrom(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	payload := make(map[string]interface{})
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return payload, nil
}

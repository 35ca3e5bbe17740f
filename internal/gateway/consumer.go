package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"bubbles/internal/broker"
	"bubbles/internal/constants"
	"bubbles/internal/logger"
	"bubbles/internal/unified"
	apperrors "bubbles/pkg/errors"
	"bubbles/pkg/models"
	"bubbles/pkg/retry"
)

// CommandConsumer turns command envelopes from the request topic into
// processor calls and publishes each response to the reply topic.
type CommandConsumer struct {
	processor   Processor
	producer    broker.Producer
	outputTopic string
	logger      logger.Logger
}

func NewCommandConsumer(processor Processor, producer broker.Producer, outputTopic string, log logger.Logger) *CommandConsumer {
	if outputTopic == "" {
		outputTopic = constants.DefaultOutputTopic
	}
	return &CommandConsumer{
		processor:   processor,
		producer:    producer,
		outputTopic: outputTopic,
		logger:      log,
	}
}

// HandleMessage is a broker.HandlerFunc. Undecodable envelopes are fatal so
// the consumer moves them to the DLQ without retrying; a failed publish is
// retried.
func (h *CommandConsumer) HandleMessage(ctx context.Context, msg models.MessageEnvelope) error {
	if err := models.ValidateCommandEnvelope(&msg); err != nil {
		return retry.Fatal(err)
	}

	raw, err := decodeRaw(msg)
	if err != nil {
		return retry.Fatal(fmt.Errorf("failed to decode command envelope %s: %w", msg.ID, err))
	}

	resp := process(ctx, h.processor, raw)
	if resp.ErrorCode == apperrors.ErrServiceUnavailable.Code && !h.processor.IsReady() {
		// Left for redelivery instead of answering on behalf of a stopped gateway.
		return apperrors.ErrServiceUnavailable.WithMessage("command processor is not accepting requests")
	}

	replyTo := msg.Metadata.ReplyTo
	if replyTo == "" {
		replyTo = h.outputTopic
	}
	out, err := responseEnvelope(resp, msg)
	if err != nil {
		return retry.Fatal(err)
	}
	if err := h.producer.Publish(ctx, replyTo, *out); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to publish command response",
			"error", err,
			"topic", replyTo,
			"requestId", resp.RequestID,
		)
		return err
	}

	h.logger.DebugwCtx(ctx, "Command response published",
		"topic", replyTo,
		"requestId", resp.RequestID,
		"success", resp.Success,
		"method", resp.Method,
	)
	return nil
}

// decodeRaw reads the payload as a RawRequest. The request id falls back to
// the envelope's correlation id so a redelivered envelope keeps its id.
func decodeRaw(msg models.MessageEnvelope) (unified.RawRequest, error) {
	var raw unified.RawRequest
	b, err := json.Marshal(msg.Payload)
	if err != nil {
		return raw, err
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return raw, err
	}

	raw.Source = unified.SourceQueue
	if raw.ID == "" {
		raw.ID = msg.Metadata.RequestID
	}
	if raw.ID == "" {
		raw.ID = msg.ID
	}
	return raw, nil
}

func responseEnvelope(resp *unified.UnifiedResponse, req models.MessageEnvelope) (*models.MessageEnvelope, error) {
	payload, err := models.PayloadFrom(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}

	return models.NewMessageEnvelopeBuilder().
		WithID(resp.RequestID).
		WithSource(constants.ServiceGateway).
		WithPayload(payload).
		InReplyTo(req).
		WithRequestID(resp.RequestID).
		Build(), nil
}

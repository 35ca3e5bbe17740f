package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bubbles/internal/config"
	"bubbles/internal/logger"
	"bubbles/pkg/models"
)

type fakeProducer struct {
	mu        sync.Mutex
	published []models.MessageEnvelope
	topics    []string
}

func (p *fakeProducer) Publish(_ context.Context, topic string, msg models.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.published = append(p.published, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func newTestConsumer(dlq Producer) *KafkaConsumer {
	c := NewKafkaConsumer(config.KafkaConfig{
		DLQTopic: "command_requests_dlq",
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}, logger.NopLogger())
	c.dlqProducer = dlq
	c.SetServiceName("gateway")
	return c
}

func envelope() models.MessageEnvelope {
	return *models.NewMessageEnvelopeBuilder().
		WithID("m1").
		WithPayload(map[string]interface{}{"type": "BAN_USER"}).
		Build()
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	dlq := &fakeProducer{}
	c := newTestConsumer(dlq)

	var calls atomic.Int32
	c.process(context.Background(), envelope(), func(ctx context.Context, msg models.MessageEnvelope) error {
		if calls.Add(1) < 2 {
			return errors.New("transient")
		}
		return nil
	}, "command_requests")

	assert.EqualValues(t, 2, calls.Load())
	assert.Empty(t, dlq.published)
}

func TestConsumer_DeadLettersAfterRetries(t *testing.T) {
	dlq := &fakeProducer{}
	c := newTestConsumer(dlq)

	var calls atomic.Int32
	c.process(context.Background(), envelope(), func(ctx context.Context, msg models.MessageEnvelope) error {
		calls.Add(1)
		return errors.New("downstream unavailable")
	}, "command_requests")

	assert.EqualValues(t, 3, calls.Load())
	require.Len(t, dlq.published, 1)
	assert.Equal(t, "command_requests_dlq", dlq.topics[0])

	dead := dlq.published[0].Metadata.DeadLetter
	require.NotNil(t, dead)
	assert.Equal(t, "command_requests", dead.SourceTopic)
	assert.Contains(t, dead.Reason, "downstream unavailable")
}

// A recovered panic is a handler bug, so the message is not retried.
func TestConsumer_PanicDeadLettersWithoutRetry(t *testing.T) {
	dlq := &fakeProducer{}
	c := newTestConsumer(dlq)

	var calls atomic.Int32
	c.process(context.Background(), envelope(), func(ctx context.Context, msg models.MessageEnvelope) error {
		calls.Add(1)
		panic("handler bug")
	}, "command_requests")

	assert.EqualValues(t, 1, calls.Load())
	require.Len(t, dlq.published, 1)
	assert.Contains(t, dlq.published[0].Metadata.DeadLetter.Reason, "handler bug")
}

func TestConsumer_ShutdownSkipsDLQ(t *testing.T) {
	dlq := &fakeProducer{}
	c := newTestConsumer(dlq)

	ctx, cancel := context.WithCancel(context.Background())
	c.process(ctx, envelope(), func(context.Context, models.MessageEnvelope) error {
		cancel()
		return errors.New("processor stopped")
	}, "command_requests")

	assert.Empty(t, dlq.published)
}

func TestConsumer_HandleMessageSkipsGarbage(t *testing.T) {
	dlq := &fakeProducer{}
	c := newTestConsumer(dlq)

	called := false
	c.handleMessage(context.Background(), kafka.Message{Value: []byte("{not json")}, func(context.Context, models.MessageEnvelope) error {
		called = true
		return nil
	}, "command_requests")

	assert.False(t, called)
	assert.Empty(t, dlq.published)
}

func TestNew(t *testing.T) {
	producer, consumer, err := New(config.BrokerConfig{
		Type:  TypeKafka,
		Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "bubbles"},
	}, "bubbles-gateway", logger.NopLogger())
	require.NoError(t, err)
	assert.Equal(t, "bubbles-gateway", consumer.(*KafkaConsumer).serviceName)
	assert.Equal(t, "bubbles-gateway", producer.(*KafkaProducer).serviceName)
	require.NoError(t, consumer.Close())
	require.NoError(t, producer.Close())

	_, _, err = New(config.BrokerConfig{Type: "nats"}, "", logger.NopLogger())
	assert.ErrorContains(t, err, "unknown broker type")
}

//go:build integration

package broker

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"

	"bubbles/internal/config"
	"bubbles/internal/logger"
	"bubbles/pkg/models"
)

func setupKafka(t *testing.T, topics ...string) []string {
	t.Helper()
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("bubbles-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		t.Fatalf("failed to dial kafka: %v", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		t.Fatalf("failed to find kafka controller: %v", err)
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		t.Fatalf("failed to dial kafka controller: %v", err)
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := controllerConn.CreateTopics(configs...); err != nil {
		t.Fatalf("failed to create topics: %v", err)
	}
	return brokers
}

func TestKafka_PublishConsume(t *testing.T) {
	brokers := setupKafka(t, "command_requests", "command_requests_dlq")
	cfg := config.KafkaConfig{
		Brokers:  brokers,
		GroupID:  "bubbles-test",
		DLQTopic: "command_requests_dlq",
	}

	producer := NewKafkaProducer(cfg, logger.NopLogger())
	t.Cleanup(func() { producer.Close() })
	consumer := NewKafkaConsumer(cfg, logger.NopLogger())
	t.Cleanup(func() { consumer.Close() })

	received := make(chan models.MessageEnvelope, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, consumer.Consume(ctx, "command_requests", func(_ context.Context, msg models.MessageEnvelope) error {
		received <- msg
		return nil
	}))

	msg := models.NewMessageEnvelopeBuilder().
		WithID("env-1").
		WithSource("test").
		WithRequestID("req-1").
		WithPayload(map[string]interface{}{"type": "SEND_MESSAGE"}).
		Build()
	require.NoError(t, producer.Publish(context.Background(), "command_requests", *msg))

	select {
	case got := <-received:
		assert.Equal(t, "env-1", got.ID)
		assert.Equal(t, "req-1", got.Metadata.RequestID)
		assert.Equal(t, "SEND_MESSAGE", got.Payload["type"])
	case <-time.After(60 * time.Second):
		t.Fatal("message was not consumed")
	}
}

package broker

import (
	"fmt"

	"bubbles/internal/config"
	"bubbles/internal/logger"
)

const TypeKafka = "kafka"

// New builds the producer and consumer for cfg.Type. Both report under
// serviceName in logs and metrics.
func New(cfg config.BrokerConfig, serviceName string, log logger.Logger) (Producer, Consumer, error) {
	switch cfg.Type {
	case TypeKafka:
		producer := NewKafkaProducer(cfg.Kafka, log)
		consumer := NewKafkaConsumer(cfg.Kafka, log)
		if serviceName != "" {
			producer.SetServiceName(serviceName)
			consumer.SetServiceName(serviceName)
		}
		return producer, consumer, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker type: %q", cfg.Type)
	}
}

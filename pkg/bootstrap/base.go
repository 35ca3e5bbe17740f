package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"bubbles/internal/broker"
	"bubbles/internal/config"
	"bubbles/internal/logger"
)

// Base is what every bubbles process shares: its config, its logger and the
// optional broker clients.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitBroker(serviceName string) error {
	producer, consumer, err := broker.New(b.Config.Broker, serviceName, b.Logger.Named("broker"))
	if err != nil {
		return fmt.Errorf("failed to create broker clients: %w", err)
	}
	b.Producer = producer
	b.Consumer = consumer

	b.Logger.Infow("Broker initialized",
		"type", b.Config.Broker.Type,
		"brokers", b.Config.Broker.Kafka.Brokers,
	)
	return nil
}

// closeBroker stops consuming before the producer goes away, so in-flight
// handlers can still publish their replies.
func (b *Base) closeBroker() error {
	var errs []error
	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}
	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown runs the process specific teardown, then closes the broker.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}
	errs = append(errs, b.closeBroker())

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}

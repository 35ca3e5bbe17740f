package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"bubbles/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return validateDatabase(c.Database) },
		validateDedup,
		func(c *Config) error { return validateHealth(c.Health) },
		func(c *Config) error { return validateRouting(c.Routing) },
		func(c *Config) error { return validateQueue(c.Queue) },
	}

	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 || len(cfg.Redis.Addrs) > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" && !strings.HasPrefix(cfg.MongoDB.URI, "mongodb://") && !strings.HasPrefix(cfg.MongoDB.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if len(cfg.Addrs) > 0 {
		for i, addr := range cfg.Addrs {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return &ValidationError{
					Field:   fmt.Sprintf("database.redis.addrs[%d]", i),
					Message: fmt.Sprintf("invalid address %q: %v", addr, err),
				}
			}
		}
		return nil
	}

	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateDedup(cfg *Config) error {
	d := cfg.Dedup

	switch d.Store {
	case constants.StoreMemory:
	case constants.StoreRedis:
		if cfg.Database.Redis.Host == "" && len(cfg.Database.Redis.Addrs) == 0 {
			return &ValidationError{
				Field:   "dedup.store",
				Message: "redis store requires database.redis.host or database.redis.addrs",
			}
		}
	default:
		return &ValidationError{
			Field:   "dedup.store",
			Message: fmt.Sprintf("invalid store: %s (valid: memory, redis)", d.Store),
		}
	}

	if d.RetentionWindow <= 0 {
		return &ValidationError{
			Field:   "dedup.retention_window",
			Message: "retention window must be positive",
		}
	}

	if d.SweepInterval <= 0 {
		return &ValidationError{
			Field:   "dedup.sweep_interval",
			Message: "sweep interval must be positive",
		}
	}

	if d.OnStoreError != constants.FallbackAllow && d.OnStoreError != constants.FallbackDeny {
		return &ValidationError{
			Field:   "dedup.on_store_error",
			Message: fmt.Sprintf("invalid on_store_error value: %s (valid: allow, deny)", d.OnStoreError),
		}
	}

	return nil
}

func validateHealth(cfg HealthConfig) error {
	if cfg.Interval <= 0 {
		return &ValidationError{
			Field:   "health.interval",
			Message: "health interval must be positive",
		}
	}

	if cfg.WindowSize < 1 {
		return &ValidationError{
			Field:   "health.window_size",
			Message: "window size must be at least 1",
		}
	}

	return nil
}

func validateRouting(cfg RoutingConfig) error {
	validPriorities := map[string]bool{"": true, "critical": true, "high": true, "normal": true, "low": true}

	for i, rule := range cfg.HintRules {
		if strings.TrimSpace(rule.Expression) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("routing.hint_rules[%d].expression", i),
				Message: "expression is required",
			}
		}
		if !validPriorities[rule.Priority] {
			return &ValidationError{
				Field:   fmt.Sprintf("routing.hint_rules[%d].priority", i),
				Message: fmt.Sprintf("invalid priority: %s", rule.Priority),
			}
		}
	}

	return nil
}

func validateQueue(cfg QueueConfig) error {
	if cfg.Name == "" {
		return &ValidationError{
			Field:   "queue.name",
			Message: "queue name is required",
		}
	}

	if cfg.Attempts < 1 {
		return &ValidationError{
			Field:   "queue.attempts",
			Message: "attempts must be at least 1",
		}
	}

	return nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"bubbles/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("dedup.store", constants.StoreMemory)
	v.SetDefault("dedup.retention_window", constants.DefaultRetentionWindow)
	v.SetDefault("dedup.sweep_interval", constants.DefaultSweepInterval)
	v.SetDefault("dedup.wait_poll_interval", constants.DefaultWaitPollInterval)
	v.SetDefault("dedup.on_store_error", constants.FallbackAllow)

	v.SetDefault("health.interval", constants.DefaultHealthInterval)
	v.SetDefault("health.probe_timeout", constants.DefaultProbeTimeout)
	v.SetDefault("health.window_size", constants.DefaultHealthWindow)

	v.SetDefault("processor.default_timeout", constants.DefaultRequestTimeout)
	v.SetDefault("processor.metrics_log_interval", constants.DefaultMetricsLogPeriod)

	v.SetDefault("botlink.listen_path", "/bot/ws")
	v.SetDefault("botlink.handshake_timeout", constants.DefaultBotLinkHandshake)
	v.SetDefault("botlink.reconnect_initial", constants.DefaultReconnectInitial)
	v.SetDefault("botlink.reconnect_max", constants.DefaultReconnectMax)
	v.SetDefault("botlink.max_concurrent", 32)

	v.SetDefault("queue.name", constants.DefaultQueueName)
	v.SetDefault("queue.attempts", constants.DefaultQueueAttempts)
	v.SetDefault("queue.initial_backoff", constants.DefaultQueueBackoff)
	v.SetDefault("queue.heartbeat_interval", constants.DefaultQueueHeartbeat)
	v.SetDefault("queue.result_ttl", constants.DefaultJobResultTTL)
	v.SetDefault("queue.worker_concurrency", 4)

	v.SetDefault("broker.kafka.input_topic", constants.DefaultInputTopic)
	v.SetDefault("broker.kafka.output_topic", constants.DefaultOutputTopic)
	v.SetDefault("broker.kafka.retry.max_attempts", 3)
	v.SetDefault("broker.kafka.retry.initial_interval", "1s")
	v.SetDefault("broker.kafka.retry.max_interval", "30s")
	v.SetDefault("broker.kafka.retry.multiplier", 2.0)
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	v.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	v.BindEnv("broker.kafka.input_topic", "BROKER_KAFKA_INPUT_TOPIC")
	v.BindEnv("broker.kafka.output_topic", "BROKER_KAFKA_OUTPUT_TOPIC")

	v.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	v.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	v.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	v.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	v.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")

	v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	v.BindEnv("database.redis.addrs", "DATABASE_REDIS_ADDRS")

	v.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")

	v.BindEnv("discord.token", "DISCORD_TOKEN")
	v.BindEnv("botlink.url", "BOTLINK_URL")
	v.BindEnv("botlink.token", "BOTLINK_TOKEN")

	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
}

func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokers := splitList(v.GetString("BROKER_KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Broker.Kafka.Brokers = brokers
	}
	if addrs := splitList(v.GetString("DATABASE_REDIS_ADDRS")); len(addrs) > 0 {
		cfg.Database.Redis.Addrs = addrs
	}
}

// splitList parses a comma separated env value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

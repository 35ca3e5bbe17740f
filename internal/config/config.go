package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Dedup          DedupConfig          `mapstructure:"dedup"`
	Health         HealthConfig         `mapstructure:"health"`
	Processor      ProcessorConfig      `mapstructure:"processor"`
	Routing        RoutingConfig        `mapstructure:"routing"`
	BotLink        BotLinkConfig        `mapstructure:"botlink"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Discord        DiscordConfig        `mapstructure:"discord"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig addresses a single node by Host/Port, or a cluster or
// sentinel group by Addrs (with MasterName for sentinel).
type RedisConfig struct {
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Addrs      []string `mapstructure:"addrs"`
	MasterName string   `mapstructure:"master_name"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// BrokerConfig configures the inbound queue transport. An empty Type
// disables it.
type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers           []string    `mapstructure:"brokers"`
	GroupID           string      `mapstructure:"group_id"`
	InputTopic        string      `mapstructure:"input_topic"`
	OutputTopic       string      `mapstructure:"output_topic"`
	ConfigUpdateTopic string      `mapstructure:"config_update_topic"`
	DLQTopic          string      `mapstructure:"dlq_topic"`
	Retry             RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// DedupConfig controls the cross-protocol deduplicator.
type DedupConfig struct {
	Store            string        `mapstructure:"store"` // "memory" or "redis"
	RetentionWindow  time.Duration `mapstructure:"retention_window"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	WaitPollInterval time.Duration `mapstructure:"wait_poll_interval"`
	OnStoreError     string        `mapstructure:"on_store_error"` // "allow" or "deny"
}

type HealthConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	WindowSize   int           `mapstructure:"window_size"`
}

type ProcessorConfig struct {
	DefaultTimeout     time.Duration `mapstructure:"default_timeout"`
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval"`
	DirectEnabled      bool          `mapstructure:"direct_enabled"`
}

type RoutingConfig struct {
	HintRules []HintRuleConfig `mapstructure:"hint_rules"`
}

type HintRuleConfig struct {
	Name                string `mapstructure:"name" json:"name"`
	Expression          string `mapstructure:"expression" json:"expression"`
	RequiresRealTime    bool   `mapstructure:"requires_real_time" json:"requires_real_time"`
	RequiresReliability bool   `mapstructure:"requires_reliability" json:"requires_reliability"`
	Priority            string `mapstructure:"priority" json:"priority,omitempty"`
}

type BotLinkConfig struct {
	URL              string        `mapstructure:"url"`
	Token            string        `mapstructure:"token"`
	ListenPath       string        `mapstructure:"listen_path"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReconnectInitial time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
}

type QueueConfig struct {
	Name              string        `mapstructure:"name"`
	Attempts          int           `mapstructure:"attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ResultTTL         time.Duration `mapstructure:"result_ttl"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
}

type DiscordConfig struct {
	Token string `mapstructure:"token"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}

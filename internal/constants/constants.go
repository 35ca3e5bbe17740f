package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout    = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	ShutdownTimeout       = 5 * time.Second
)

const (
	CacheKeyPrefixDedup    = "dedup:op:"
	CacheKeyPrefixQueue    = "queue:"
	CacheKeyPrefixJob      = "jobs:"
	CacheKeyPrefixMusic    = "music:"
	CacheKeyPrefixGiveaway = "giveaway:"
)

const (
	DefaultQueueName      = "bot-commands"
	DefaultInputTopic     = "command_requests"
	DefaultOutputTopic    = "command_responses"
	DefaultMongoDBName    = "bubbles"
	GuildConfigCollection = "guild_configs"
)

const (
	DefaultRetentionWindow  = 5 * time.Minute
	DefaultSweepInterval    = time.Minute
	DefaultWaitPollInterval = 100 * time.Millisecond
	DefaultResolveTimeout   = 5 * time.Second
	InFlightResolveGrace    = 250 * time.Millisecond
	DefaultHealthInterval   = 30 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultHealthWindow     = 5
	DefaultMetricsLogPeriod = 5 * time.Minute
	DefaultQueueAttempts    = 3
	DefaultQueueBackoff     = 2 * time.Second
	DefaultQueueHeartbeat   = 5 * time.Second
	DefaultJobResultTTL     = 10 * time.Minute
	DefaultBotLinkHandshake = 10 * time.Second
	DefaultReconnectInitial = time.Second
	DefaultReconnectMax     = 30 * time.Second
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

const (
	ServiceGateway = "gateway"
	ServiceBot     = "bot"
)

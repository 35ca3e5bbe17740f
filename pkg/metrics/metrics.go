package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	UnifiedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unified_requests_total",
			Help: "Total number of requests received by the unified processor (count)",
		},
		[]string{"source"},
	)

	UnifiedResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unified_responses_total",
			Help: "Total number of responses produced by the unified processor (count)",
		},
		[]string{"method", "status"},
	)

	UnifiedExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unified_execution_duration_ms",
			Help:    "Execution time per backend in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"method"},
	)

	UnifiedProtocolFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unified_protocol_failures_total",
			Help: "Total number of failed backend attempts (count)",
		},
		[]string{"method"},
	)

	UnifiedFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unified_fallbacks_total",
			Help: "Total number of requests served by the fallback backend (count)",
		},
		[]string{"from", "to"},
	)

	UnifiedDuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unified_duplicates_total",
			Help: "Total number of requests answered from the deduplicator (count)",
		},
		[]string{"kind"},
	)

	UnifiedCrossProtocolDelay = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unified_cross_protocol_delay_ms",
			Help: "Last measured execution time for requests crossing transports in milliseconds",
		},
		[]string{"path"},
	)

	DedupActiveOperations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_active_operations",
			Help: "Number of pending operation records (count)",
		},
	)

	DedupEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_evicted_total",
			Help: "Total number of operation records evicted by the retention sweep (count)",
		},
	)

	ProtocolHealthStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "protocol_health_status",
			Help: "Backend health (0=unhealthy, 1=degraded, 2=healthy) (state code)",
		},
		[]string{"backend"},
	)

	ProtocolProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "protocol_probe_duration_ms",
			Help:    "Backend health probe duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"backend"},
	)

	QueueJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_total",
			Help: "Total number of job queue events (count)",
		},
		[]string{"queue", "status"},
	)

	QueueJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_ms",
			Help:    "Job processing duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"queue"},
	)

	BotLinkConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "botlink_connected",
			Help: "Whether the gateway holds an authenticated bot link (0 or 1)",
		},
	)

	BotLinkRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botlink_requests_total",
			Help: "Total number of requests sent over the bot link (count)",
		},
		[]string{"side", "status"},
	)

	CommandsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_executed_total",
			Help: "Total number of bot commands executed (count)",
		},
		[]string{"type", "status"},
	)

	AuditEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries by outcome (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)
)

var (
	gatewayOnce sync.Once
	sharedOnce  sync.Once
)

func registerShared() {
	sharedOnce.Do(func() {
		prometheus.MustRegister(
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RetryAttemptsTotal,
			FallbackUsageTotal,
			CommandsExecutedTotal,
			QueueJobsTotal,
			QueueJobDuration,
			BotLinkRequestsTotal,
		)
	})
}

// RegisterGatewayMetrics registers the collectors used by the gateway process.
func RegisterGatewayMetrics() {
	registerShared()
	gatewayOnce.Do(func() {
		prometheus.MustRegister(
			UnifiedRequestsTotal,
			UnifiedResponsesTotal,
			UnifiedExecutionDuration,
			UnifiedProtocolFailuresTotal,
			UnifiedFallbacksTotal,
			UnifiedDuplicatesTotal,
			UnifiedCrossProtocolDelay,
			DedupActiveOperations,
			DedupEvictedTotal,
			ProtocolHealthStatus,
			ProtocolProbeDuration,
			BotLinkConnected,
			AuditEntriesTotal,
			DLQMessagesTotal,
			KafkaMessagesReadTotal,
			KafkaMessagesWrittenTotal,
			RateLimitRequestsTotal,
		)
	})
}

// RegisterBotMetrics registers the collectors used by the bot process.
func RegisterBotMetrics() {
	registerShared()
}

func ObserveExecution(method string, duration time.Duration) {
	UnifiedExecutionDuration.WithLabelValues(method).Observe(float64(duration.Milliseconds()))
}

func ObserveProbe(backend string, duration time.Duration) {
	ProtocolProbeDuration.WithLabelValues(backend).Observe(float64(duration.Milliseconds()))
}

func ObserveQueueJob(queue string, duration time.Duration) {
	QueueJobDuration.WithLabelValues(queue).Observe(float64(duration.Milliseconds()))
}

func SetCrossProtocolDelay(path string, ms int64) {
	UnifiedCrossProtocolDelay.WithLabelValues(path).Set(float64(ms))
}

func SetProtocolHealth(backend string, code int) {
	ProtocolHealthStatus.WithLabelValues(backend).Set(float64(code))
}

func SetBotLinkConnected(connected bool) {
	if connected {
		BotLinkConnected.Set(1)
		return
	}
	BotLinkConnected.Set(0)
}

func SetDedupActive(count int) {
	DedupActiveOperations.Set(float64(count))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

package unified

import (
	"context"
	"sync/atomic"
	"time"

	"bubbles/internal/logger"
	"bubbles/pkg/metrics"
)

// Metrics is a snapshot of the processor counters merged with the
// deduplicator's own.
type Metrics struct {
	TotalRequests            int64              `json:"totalRequests"`
	RequestsBySource         map[Source]int64   `json:"requestsBySource"`
	TotalProtocolFailures    int64              `json:"totalProtocolFailures"`
	DuplicateOperations      int64              `json:"duplicateOperations"`
	WebSocketFallbackToQueue int64              `json:"websocketFallbackToQueue"`
	QueueFallbackToWebSocket int64              `json:"queueFallbackToWebSocket"`
	DirectFallbacks          int64              `json:"directFallbacks"`
	FailedRequests           int64              `json:"failedRequests"`
	ValidationFailures       int64              `json:"validationFailures"`
	RestToWebSocketDelay     int64              `json:"restToWebSocketDelay"`
	QueueToWebSocketDelay    int64              `json:"queueToWebSocketDelay"`
	AverageExecutionTime     map[Method]float64 `json:"averageExecutionTime"`
	Dedup                    DedupMetrics       `json:"deduplication"`
}

type execSamples struct {
	count   atomic.Int64
	totalMs atomic.Int64
}

type counters struct {
	totalRequests         atomic.Int64
	bySource              map[Source]*atomic.Int64
	protocolFailures      atomic.Int64
	duplicates            atomic.Int64
	wsFallbackToQueue     atomic.Int64
	queueFallbackToWS     atomic.Int64
	directFallbacks       atomic.Int64
	failedRequests        atomic.Int64
	validationFailures    atomic.Int64
	restToWebSocketDelay  atomic.Int64
	queueToWebSocketDelay atomic.Int64
	exec                  map[Method]*execSamples
}

func newCounters() *counters {
	c := &counters{
		bySource: make(map[Source]*atomic.Int64),
		exec:     make(map[Method]*execSamples),
	}
	for _, s := range []Source{SourceREST, SourceWebSocket, SourceQueue, SourceInternal} {
		c.bySource[s] = new(atomic.Int64)
	}
	for _, m := range []Method{MethodDirect, MethodWebSocket, MethodQueue} {
		c.exec[m] = new(execSamples)
	}
	return c
}

func (c *counters) request(source Source) {
	c.totalRequests.Add(1)
	if n, ok := c.bySource[source]; ok {
		n.Add(1)
	}
	metrics.UnifiedRequestsTotal.WithLabelValues(string(source)).Inc()
}

func (c *counters) execution(method Method, d time.Duration) {
	if s, ok := c.exec[method]; ok {
		s.count.Add(1)
		s.totalMs.Add(d.Milliseconds())
	}
	metrics.ObserveExecution(string(method), d)
}

func (c *counters) fallback(from, to Method) {
	switch {
	case from == MethodWebSocket && to == MethodQueue:
		c.wsFallbackToQueue.Add(1)
	case from == MethodQueue && to == MethodWebSocket:
		c.queueFallbackToWS.Add(1)
	default:
		c.directFallbacks.Add(1)
	}
	metrics.UnifiedFallbacksTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (c *counters) snapshot() Metrics {
	m := Metrics{
		TotalRequests:            c.totalRequests.Load(),
		RequestsBySource:         make(map[Source]int64, len(c.bySource)),
		TotalProtocolFailures:    c.protocolFailures.Load(),
		DuplicateOperations:      c.duplicates.Load(),
		WebSocketFallbackToQueue: c.wsFallbackToQueue.Load(),
		QueueFallbackToWebSocket: c.queueFallbackToWS.Load(),
		DirectFallbacks:          c.directFallbacks.Load(),
		FailedRequests:           c.failedRequests.Load(),
		ValidationFailures:       c.validationFailures.Load(),
		RestToWebSocketDelay:     c.restToWebSocketDelay.Load(),
		QueueToWebSocketDelay:    c.queueToWebSocketDelay.Load(),
		AverageExecutionTime:     make(map[Method]float64, len(c.exec)),
	}
	for s, n := range c.bySource {
		m.RequestsBySource[s] = n.Load()
	}
	for method, s := range c.exec {
		count := s.count.Load()
		if count == 0 {
			m.AverageExecutionTime[method] = 0
			continue
		}
		m.AverageExecutionTime[method] = float64(s.totalMs.Load()) / float64(count)
	}
	return m
}

// logMetrics writes a snapshot every interval until ctx ends.
func logMetrics(ctx context.Context, interval time.Duration, log logger.Logger, snapshot func() Metrics, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := snapshot()
			log.Infow("Cross-protocol metrics",
				"total_requests", m.TotalRequests,
				"requests_by_source", m.RequestsBySource,
				"protocol_failures", m.TotalProtocolFailures,
				"duplicates", m.DuplicateOperations,
				"ws_fallback_to_queue", m.WebSocketFallbackToQueue,
				"queue_fallback_to_ws", m.QueueFallbackToWebSocket,
				"direct_fallbacks", m.DirectFallbacks,
				"failed_requests", m.FailedRequests,
				"dedup_active", m.Dedup.ActiveOperations,
				"dedup_completed", m.Dedup.TotalCompleted,
				"dedup_failed", m.Dedup.TotalFailed,
			)
		}
	}
}

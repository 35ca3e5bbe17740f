package unified

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"bubbles/internal/constants"
	"bubbles/internal/logger"
	apperrors "bubbles/pkg/errors"
	"bubbles/pkg/logging"
	"bubbles/pkg/metrics"
	"bubbles/pkg/tracing"
)

const tracerName = "unified-processor"

type Option func(*Processor)

func WithStrategy(s Strategy) Option {
	return func(p *Processor) {
		p.strategies[s.Method()] = s
	}
}

func WithHintEvaluator(h HintEvaluator) Option {
	return func(p *Processor) {
		p.hints = h
	}
}

func WithRecorder(r Recorder) Option {
	return func(p *Processor) {
		p.recorder = r
	}
}

// WithDefaultTimeout replaces the timeout given to requests that set none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.defaultTimeout = d
		}
	}
}

func WithMetricsLogInterval(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.metricsInterval = d
		}
	}
}

// Processor routes every request through validation, deduplication and the
// health-selected backend pair.
type Processor struct {
	dedup      Deduplicator
	health     HealthMonitor
	strategies map[Method]Strategy
	hints      HintEvaluator
	recorder   Recorder
	logger     logger.Logger
	counters   *counters

	metricsInterval time.Duration
	defaultTimeout  time.Duration

	initMu      sync.Mutex
	ready       atomic.Bool
	stopMetrics context.CancelFunc
	metricsDone chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

func NewProcessor(dedup Deduplicator, health HealthMonitor, log logger.Logger, opts ...Option) *Processor {
	p := &Processor{
		dedup:           dedup,
		health:          health,
		strategies:      make(map[Method]Strategy),
		logger:          log,
		counters:        newCounters(),
		metricsInterval: constants.DefaultMetricsLogPeriod,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize waits for the first health sweep and starts the periodic
// metrics logger. Calling it again only logs a warning.
func (p *Processor) Initialize(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	if p.ready.Load() {
		p.logger.Warnw("Unified processor already initialized")
		return nil
	}

	if err := p.health.Start(ctx); err != nil {
		return fmt.Errorf("failed to start protocol health monitor: %w", err)
	}

	metricsCtx, cancel := context.WithCancel(context.Background())
	p.stopMetrics = cancel
	p.metricsDone = make(chan struct{})
	go logMetrics(metricsCtx, p.metricsInterval, p.logger, p.GetMetrics, p.metricsDone)

	p.ready.Store(true)
	p.logger.Infow("Unified processor initialized",
		"strategies", len(p.strategies),
	)
	return nil
}

func (p *Processor) IsReady() bool {
	return p.ready.Load()
}

// ProcessRequest runs one request to completion. Operational failures are
// reported in the response; only use before Initialize panics.
func (p *Processor) ProcessRequest(ctx context.Context, raw RawRequest) *UnifiedResponse {
	if !p.ready.Load() {
		panic(ErrNotInitialized)
	}

	start := time.Now()
	req := Normalize(raw)
	if p.defaultTimeout > 0 && (raw.Timeout == nil || *raw.Timeout <= 0) {
		req.Timeout = p.defaultTimeout
	}

	ctx = logging.WithRequestID(ctx, req.ID)
	ctx = logging.WithOperationKey(ctx, req.OperationKey)
	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "unified.process_request")
	span.SetAttributes(tracing.RequestAttributes(req.ID, req.Type, string(req.Source), req.OperationKey)...)
	defer span.End()

	if err := Validate(req); err != nil {
		p.counters.validationFailures.Add(1)
		metrics.UnifiedResponsesTotal.WithLabelValues(string(MethodDirect), "invalid").Inc()
		return p.failure(req, start, err)
	}

	p.counters.request(req.Source)

	if p.hints != nil {
		p.hints.Apply(ctx, req, raw.Explicit())
	}

	check, err := p.dedup.Check(ctx, req)
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Deduplication check failed", "error", err)
		return p.reject(req, start, err)
	}
	if check.IsDuplicate {
		if check.InFlight || check.Existing == nil {
			return p.awaitInFlight(ctx, req, start)
		}
		return p.replay(ctx, req, check.Existing)
	}

	created, err := p.dedup.CreateOperationContext(ctx, req)
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Failed to create operation context", "error", err)
		return p.reject(req, start, err)
	}
	if !created {
		return p.awaitInFlight(ctx, req, start)
	}

	decision := p.health.GetOptimalProtocolPath(req)
	span.SetAttributes(
		attribute.String("path.primary", string(decision.Primary)),
		attribute.String("path.fallback", string(decision.Fallback)),
	)
	p.logger.DebugwCtx(ctx, "Protocol path selected",
		"primary", decision.Primary,
		"fallback", decision.Fallback,
		"reason", decision.Reason,
	)

	// One deadline from request start covers the primary and the fallback.
	execCtx, cancel := context.WithDeadline(ctx, start.Add(req.Timeout))
	resp, execErr := p.execute(execCtx, req, decision, start)
	cancel()

	// The record must leave pending even when the caller has gone away.
	resolveCtx, cancelResolve := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultResolveTimeout)
	defer cancelResolve()

	if execErr != nil {
		p.counters.failedRequests.Add(1)
		span.RecordError(execErr)
		resp = p.failure(req, start, execErr)
		if err := p.dedup.FailOperation(resolveCtx, req.OperationKey, resp, execErr); err != nil {
			p.logger.WarnwCtx(ctx, "Failed to mark operation failed", "error", err)
		}
		metrics.UnifiedResponsesTotal.WithLabelValues(string(resp.Method), "failed").Inc()
		p.record(req, resp)
		return resp
	}

	if err := p.dedup.CompleteOperation(resolveCtx, req.OperationKey, resp); err != nil {
		p.logger.WarnwCtx(ctx, "Failed to mark operation completed", "error", err)
	}
	p.crossProtocolTiming(req, resp.Method)
	metrics.UnifiedResponsesTotal.WithLabelValues(string(resp.Method), "success").Inc()
	p.record(req, resp)
	return resp
}

// execute tries the primary backend and, only after it has failed, the
// fallback.
func (p *Processor) execute(ctx context.Context, req *NormalizedRequest, decision PathDecision, start time.Time) (*UnifiedResponse, error) {
	data, err := p.attempt(ctx, req, decision.Primary)
	if err == nil {
		return p.success(req, decision.Primary, data, start), nil
	}

	p.counters.protocolFailures.Add(1)
	metrics.UnifiedProtocolFailuresTotal.WithLabelValues(string(decision.Primary)).Inc()
	p.logger.WarnwCtx(ctx, "Primary protocol failed, trying fallback",
		"primary", decision.Primary,
		"fallback", decision.Fallback,
		"error", err,
	)

	attempts := []Attempt{{Method: decision.Primary, Err: err}}
	if decision.Fallback == "" || decision.Fallback == decision.Primary {
		return nil, &AllStrategiesFailedError{Attempts: attempts}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.logger.InfowCtx(ctx, "Request abandoned before fallback",
			"fallback", decision.Fallback,
			"error", ctxErr,
		)
		return nil, &AllStrategiesFailedError{Attempts: attempts}
	}

	data, fbErr := p.attempt(ctx, req, decision.Fallback)
	if fbErr == nil {
		p.counters.fallback(decision.Primary, decision.Fallback)
		p.logger.InfowCtx(ctx, "Fallback protocol succeeded",
			"primary", decision.Primary,
			"fallback", decision.Fallback,
		)
		return p.success(req, decision.Fallback, data, start), nil
	}

	p.counters.protocolFailures.Add(1)
	metrics.UnifiedProtocolFailuresTotal.WithLabelValues(string(decision.Fallback)).Inc()
	attempts = append(attempts, Attempt{Method: decision.Fallback, Err: fbErr})
	return nil, &AllStrategiesFailedError{Attempts: attempts}
}

func (p *Processor) attempt(ctx context.Context, req *NormalizedRequest, method Method) (data interface{}, err error) {
	strategy, ok := p.strategies[method]
	if !ok {
		return nil, fmt.Errorf("%w for method %s", ErrNoStrategy, method)
	}

	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "unified.attempt."+string(method))
	attemptStart := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
			p.logger.ErrorwCtx(ctx, "Strategy panicked", "method", method, "error", err)
		}
		p.counters.execution(method, time.Since(attemptStart))
		tracing.EndSpan(span, err)
	}()

	return strategy.Execute(ctx, req)
}

// awaitInFlight blocks until the pending operation for req's key resolves
// or req's own timeout passes. The short grace lets an original that ran
// to the same deadline record its outcome first.
func (p *Processor) awaitInFlight(ctx context.Context, req *NormalizedRequest, start time.Time) *UnifiedResponse {
	p.counters.duplicates.Add(1)
	metrics.UnifiedDuplicatesTotal.WithLabelValues("in_flight").Inc()
	p.logger.InfowCtx(ctx, "Duplicate operation in flight, waiting for result")

	waitCtx, cancel := context.WithDeadline(ctx, start.Add(req.Timeout+constants.InFlightResolveGrace))
	defer cancel()

	existing, err := p.dedup.Wait(waitCtx, req.OperationKey)
	if err != nil {
		resp := p.failure(req, start, fmt.Errorf("duplicate operation %s still in flight: %w", req.OperationKey, err))
		resp.Duplicate = true
		return resp
	}
	return duplicateOf(existing)
}

func (p *Processor) replay(ctx context.Context, req *NormalizedRequest, existing *UnifiedResponse) *UnifiedResponse {
	p.counters.duplicates.Add(1)
	metrics.UnifiedDuplicatesTotal.WithLabelValues("completed").Inc()
	p.logger.InfowCtx(ctx, "Duplicate operation, returning stored result",
		"original_request_id", existing.RequestID,
	)
	return duplicateOf(existing)
}

func duplicateOf(existing *UnifiedResponse) *UnifiedResponse {
	resp := *existing
	resp.Duplicate = true
	return &resp
}

// reject answers a request the deduplicator refused to admit.
func (p *Processor) reject(req *NormalizedRequest, start time.Time, err error) *UnifiedResponse {
	p.counters.failedRequests.Add(1)
	metrics.UnifiedResponsesTotal.WithLabelValues(string(MethodDirect), "rejected").Inc()
	return p.failure(req, start, err)
}

func (p *Processor) success(req *NormalizedRequest, method Method, data interface{}, start time.Time) *UnifiedResponse {
	return &UnifiedResponse{
		Success:       true,
		RequestID:     req.ID,
		Data:          data,
		ExecutionTime: time.Since(start).Milliseconds(),
		Method:        method,
		Timestamp:     time.Now(),
	}
}

func (p *Processor) failure(req *NormalizedRequest, start time.Time, err error) *UnifiedResponse {
	return &UnifiedResponse{
		Success:       false,
		RequestID:     req.ID,
		Error:         err.Error(),
		ErrorCode:     Classify(err).Code,
		ExecutionTime: time.Since(start).Milliseconds(),
		Method:        MethodDirect,
		Timestamp:     time.Now(),
	}
}

func (p *Processor) crossProtocolTiming(req *NormalizedRequest, method Method) {
	if method != MethodWebSocket {
		return
	}
	delay := time.Since(req.Timestamp).Milliseconds()
	if delay < 0 {
		delay = 0
	}
	switch req.Source {
	case SourceREST:
		p.counters.restToWebSocketDelay.Store(delay)
		metrics.SetCrossProtocolDelay("rest_to_websocket", delay)
	case SourceQueue:
		p.counters.queueToWebSocketDelay.Store(delay)
		metrics.SetCrossProtocolDelay("queue_to_websocket", delay)
	}
}

func (p *Processor) record(req *NormalizedRequest, resp *UnifiedResponse) {
	if p.recorder != nil {
		p.recorder.Record(req, resp)
	}
}

func (p *Processor) GetMetrics() Metrics {
	m := p.counters.snapshot()
	m.Dedup = p.dedup.GetMetrics()
	return m
}

func (p *Processor) GetSystemHealth() SystemHealth {
	return p.health.GetSystemHealth()
}

// Shutdown stops the metrics logger and both collaborators. Concurrent and
// repeated calls share the first call's result.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.ready.Store(false)

		p.initMu.Lock()
		stop, done := p.stopMetrics, p.metricsDone
		p.initMu.Unlock()

		if stop != nil {
			stop()
			select {
			case <-done:
			case <-ctx.Done():
				p.shutdownErr = fmt.Errorf("metrics logger did not stop: %w", ctx.Err())
			}
		}

		p.health.Shutdown()
		p.dedup.Shutdown()
		p.logger.Infow("Unified processor shut down")
	})
	return p.shutdownErr
}

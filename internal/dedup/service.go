package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/internal/logger"
	"bubbles/internal/unified"
	apperrors "bubbles/pkg/errors"
	"bubbles/pkg/metrics"
	"bubbles/pkg/tracing"
)

// ErrUntracked is returned by Wait when the key has no record left to wait on.
var ErrUntracked = errors.New("operation is not tracked")

// Service guarantees at most one concurrent execution per operation key.
type Service struct {
	store  Store
	cfg    config.DedupConfig
	logger logger.Logger

	notifyMu sync.Mutex
	notify   chan struct{}

	active       atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
	deduplicated atomic.Int64
	evicted      atomic.Int64

	cancelSweep  context.CancelFunc
	sweepDone    chan struct{}
	shutdownOnce sync.Once
}

var _ unified.Deduplicator = (*Service)(nil)

// NewService creates the deduplicator and starts its eviction sweep.
func NewService(store Store, cfg config.DedupConfig, log logger.Logger) *Service {
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = constants.DefaultRetentionWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = constants.DefaultSweepInterval
	}
	if cfg.WaitPollInterval <= 0 {
		cfg.WaitPollInterval = constants.DefaultWaitPollInterval
	}
	if cfg.OnStoreError == "" {
		cfg.OnStoreError = constants.FallbackAllow
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:       store,
		cfg:         cfg,
		logger:      log,
		notify:      make(chan struct{}),
		cancelSweep: cancel,
		sweepDone:   make(chan struct{}),
	}

	go s.sweep(ctx)

	return s
}

func (s *Service) Check(ctx context.Context, req *unified.NormalizedRequest) (unified.CheckResult, error) {
	ctx, span := tracing.GetTracer("dedup-service").Start(ctx, "dedup.check")
	defer span.End()

	rec, err := s.store.Get(ctx, req.OperationKey)
	if err != nil {
		if s.allowOnError(ctx, err, "check") {
			return unified.CheckResult{}, nil
		}
		return unified.CheckResult{}, apperrors.Wrap(err, apperrors.ErrServiceUnavailable).
			WithDetail("message", "deduplication store unavailable")
	}

	if rec == nil || rec.Expired(time.Now(), s.cfg.RetentionWindow) {
		return unified.CheckResult{}, nil
	}

	s.deduplicated.Add(1)
	if rec.Status == StatusPending {
		return unified.CheckResult{IsDuplicate: true, InFlight: true}, nil
	}
	return unified.CheckResult{IsDuplicate: true, Existing: rec.result()}, nil
}

// CreateOperationContext inserts a pending record for req. Only the first
// caller for a key gets true.
func (s *Service) CreateOperationContext(ctx context.Context, req *unified.NormalizedRequest) (bool, error) {
	created, err := s.store.PutIfAbsent(ctx, &Record{
		Key:       req.OperationKey,
		RequestID: req.ID,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	})
	if err != nil {
		if s.allowOnError(ctx, err, "create") {
			return true, nil
		}
		return false, apperrors.Wrap(err, apperrors.ErrServiceUnavailable).
			WithDetail("message", "deduplication store unavailable")
	}

	if created {
		metrics.SetDedupActive(int(s.active.Add(1)))
	}
	return created, nil
}

// Wait blocks until the record for key reaches a terminal state and returns
// its stored response.
func (s *Service) Wait(ctx context.Context, key string) (*unified.UnifiedResponse, error) {
	ticker := time.NewTicker(s.cfg.WaitPollInterval)
	defer ticker.Stop()

	for {
		notify := s.notifyChan()

		rec, err := s.store.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.DebugwCtx(ctx, "Store error while waiting for operation", "key", key, "error", err)
		case rec == nil:
			return nil, fmt.Errorf("%w: %s", ErrUntracked, key)
		case rec.Terminal():
			return rec.result(), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		case <-ticker.C:
		}
	}
}

func (s *Service) CompleteOperation(ctx context.Context, key string, resp *unified.UnifiedResponse) error {
	err := s.resolve(ctx, &Record{
		Key:        key,
		RequestID:  resp.RequestID,
		Status:     StatusCompleted,
		Response:   resp,
		ResolvedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	s.completed.Add(1)
	return nil
}

func (s *Service) FailOperation(ctx context.Context, key string, resp *unified.UnifiedResponse, cause error) error {
	rec := &Record{
		Key:        key,
		Status:     StatusFailed,
		Response:   resp,
		ResolvedAt: time.Now(),
	}
	if resp != nil {
		rec.RequestID = resp.RequestID
	}
	if cause != nil {
		rec.Error = cause.Error()
	}

	if err := s.resolve(ctx, rec); err != nil {
		return err
	}
	s.failed.Add(1)
	return nil
}

func (s *Service) resolve(ctx context.Context, rec *Record) error {
	// Release waiters even when the store write fails.
	defer s.broadcast()

	if err := s.store.Resolve(ctx, rec); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to resolve operation record",
			"key", rec.Key,
			"status", rec.Status,
			"error", err,
		)
		return fmt.Errorf("failed to resolve operation %s: %w", rec.Key, err)
	}

	if n := s.active.Add(-1); n >= 0 {
		metrics.SetDedupActive(int(n))
	} else {
		s.active.Store(0)
	}
	return nil
}

func (s *Service) GetMetrics() unified.DedupMetrics {
	return unified.DedupMetrics{
		ActiveOperations:  s.active.Load(),
		TotalCompleted:    s.completed.Load(),
		TotalFailed:       s.failed.Load(),
		TotalDeduplicated: s.deduplicated.Load(),
		TotalEvicted:      s.evicted.Load(),
	}
}

// Shutdown stops the eviction sweep. It is safe to call more than once.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancelSweep()
		<-s.sweepDone
	})
}

func (s *Service) notifyChan() <-chan struct{} {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return s.notify
}

func (s *Service) broadcast() {
	s.notifyMu.Lock()
	close(s.notify)
	s.notify = make(chan struct{})
	s.notifyMu.Unlock()
}

func (s *Service) allowOnError(ctx context.Context, err error, op string) bool {
	if s.cfg.OnStoreError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error", op).Inc()
		s.logger.WarnwCtx(ctx, "Dedup store error, treating request as unique (fallback: allow)",
			"op", op,
			"error", err,
		)
		return true
	}

	metrics.FallbackUsageTotal.WithLabelValues("deduplication", "deny_on_error", op).Inc()
	s.logger.ErrorwCtx(ctx, "Dedup store error, rejecting request (fallback: deny)",
		"op", op,
		"error", err,
	)
	return false
}

func (s *Service) sweep(ctx context.Context) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	n, err := s.store.Evict(ctx, time.Now())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warnw("Failed to evict expired operation records", "error", err)
		}
		return
	}
	if n > 0 {
		s.evicted.Add(int64(n))
		metrics.DedupEvictedTotal.Add(float64(n))
		s.logger.Debugw("Evicted expired operation records", "count", n)
	}

	pending, err := s.store.Count(ctx)
	if err != nil {
		return
	}
	s.active.Store(int64(pending))
	metrics.SetDedupActive(pending)
}

package dedup

import (
	"context"
	"fmt"
	"time"

	"bubbles/internal/config"
	"bubbles/pkg/circuitbreaker"
)

// CircuitBreakerStore fails fast while the wrapped store keeps erroring.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Breaker
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) Store {
	if !cfg.Enabled {
		return store
	}
	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.New(circuitbreaker.SettingsFromConfig("dedup-store", cfg)),
	}
}

func (s *CircuitBreakerStore) call(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := s.cb.Execute(ctx, fn)
	if err != nil {
		return nil, fmt.Errorf("dedup store (breaker %s): %w", s.cb.State(), err)
	}
	return result, nil
}

func (s *CircuitBreakerStore) Get(ctx context.Context, key string) (*Record, error) {
	result, err := s.call(ctx, func(ctx context.Context) (interface{}, error) {
		return s.store.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	rec, _ := result.(*Record)
	return rec, nil
}

func (s *CircuitBreakerStore) PutIfAbsent(ctx context.Context, rec *Record) (bool, error) {
	result, err := s.call(ctx, func(ctx context.Context) (interface{}, error) {
		return s.store.PutIfAbsent(ctx, rec)
	})
	if err != nil {
		return false, err
	}
	ok, _ := result.(bool)
	return ok, nil
}

func (s *CircuitBreakerStore) Resolve(ctx context.Context, rec *Record) error {
	_, err := s.call(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, s.store.Resolve(ctx, rec)
	})
	return err
}

func (s *CircuitBreakerStore) Evict(ctx context.Context, now time.Time) (int, error) {
	result, err := s.call(ctx, func(ctx context.Context) (interface{}, error) {
		return s.store.Evict(ctx, now)
	})
	if err != nil {
		return 0, err
	}
	n, _ := result.(int)
	return n, nil
}

func (s *CircuitBreakerStore) Count(ctx context.Context) (int, error) {
	result, err := s.call(ctx, func(ctx context.Context) (interface{}, error) {
		return s.store.Count(ctx)
	})
	if err != nil {
		return 0, err
	}
	n, _ := result.(int)
	return n, nil
}

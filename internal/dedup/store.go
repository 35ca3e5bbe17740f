package dedup

import (
	"context"
	"sync"
	"time"
)

// Store owns the operation record table.
type Store interface {
	// Get returns nil without error when key is unknown.
	Get(ctx context.Context, key string) (*Record, error)
	// PutIfAbsent inserts rec unless a live record holds the key. An expired
	// terminal record counts as absent and is replaced.
	PutIfAbsent(ctx context.Context, rec *Record) (bool, error)
	// Resolve stores a terminal record, keeping the original CreatedAt.
	Resolve(ctx context.Context, rec *Record) error
	// Evict drops terminal records that expired before now.
	Evict(ctx context.Context, now time.Time) (int, error)
	// Count returns the number of pending records.
	Count(ctx context.Context) (int, error)
}

type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*Record
	retention time.Duration
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		retention: retention,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, rec *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Key]; ok && !existing.Expired(time.Now(), s.retention) {
		return false, nil
	}
	cp := *rec
	s.records[rec.Key] = &cp
	return true, nil
}

func (s *MemoryStore) Resolve(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if existing, ok := s.records[rec.Key]; ok && !existing.CreatedAt.IsZero() {
		cp.CreatedAt = existing.CreatedAt
	}
	s.records[rec.Key] = &cp
	return nil
}

func (s *MemoryStore) Evict(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, rec := range s.records {
		if rec.Expired(now, s.retention) {
			delete(s.records, key)
			evicted++
		}
	}
	return evicted, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, rec := range s.records {
		if rec.Status == StatusPending {
			pending++
		}
	}
	return pending, nil
}

package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bubbles/internal/constants"
)

// RedisStore keeps records under dedup:op:<operation key>. Pending records
// carry no TTL; terminal records expire after the retention window, so
// Redis does the eviction.
type RedisStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

func NewRedisStore(client redis.UniversalClient, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

func redisKey(key string) string {
	return constants.CacheKeyPrefixDedup + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode operation record %s: %w", key, err)
	}
	return &rec, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, rec *Record) (bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to encode operation record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKey(rec.Key), payload, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Resolve(ctx context.Context, rec *Record) error {
	cp := *rec
	if existing, err := s.Get(ctx, rec.Key); err == nil && existing != nil && !existing.CreatedAt.IsZero() {
		cp.CreatedAt = existing.CreatedAt
	}

	payload, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to encode operation record: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(rec.Key), payload, s.retention).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

// Evict is a no-op: terminal keys expire on their own.
func (s *RedisStore) Evict(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	iter := s.client.Scan(ctx, 0, constants.CacheKeyPrefixDedup+"*", 100).Iterator()
	pending := 0
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var rec Record
		if json.Unmarshal(raw, &rec) == nil && rec.Status == StatusPending {
			pending++
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	return pending, nil
}

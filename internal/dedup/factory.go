package dedup

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"bubbles/internal/config"
	"bubbles/internal/constants"
)

// NewStoreFromConfig builds the store selected by dedup.store. The Redis
// store is wrapped in a circuit breaker when one is configured.
func NewStoreFromConfig(cfg *config.Config, client redis.UniversalClient) (Store, error) {
	retention := cfg.Dedup.RetentionWindow
	if retention <= 0 {
		retention = constants.DefaultRetentionWindow
	}

	switch cfg.Dedup.Store {
	case "", constants.StoreMemory:
		return NewMemoryStore(retention), nil
	case constants.StoreRedis:
		if client == nil {
			return nil, fmt.Errorf("dedup store %q requires a redis client", cfg.Dedup.Store)
		}
		return NewCircuitBreakerStore(NewRedisStore(client, retention), cfg.CircuitBreaker), nil
	default:
		return nil, fmt.Errorf("unknown dedup store %q", cfg.Dedup.Store)
	}
}

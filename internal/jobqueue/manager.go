package jobqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/internal/logger"
)

// Manager owns the Redis connection shared by queues and tracks whether
// it is usable.
type Manager struct {
	client redis.UniversalClient
	cfg    config.QueueConfig
	logger logger.Logger

	healthy atomic.Bool

	mu     sync.Mutex
	queues map[string]*Queue

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func NewManager(client redis.UniversalClient, cfg config.QueueConfig, log logger.Logger) *Manager {
	if cfg.Name == "" {
		cfg.Name = constants.DefaultQueueName
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = constants.DefaultQueueHeartbeat
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = constants.DefaultJobResultTTL
	}
	return &Manager{
		client: client,
		cfg:    cfg,
		logger: log,
		queues: make(map[string]*Queue),
	}
}

// Start pings Redis once and then on every heartbeat.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.heartbeat(ctx)

		hbCtx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.done = make(chan struct{})
		go m.run(hbCtx)
	})
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.heartbeat(ctx)
		}
	}
}

func (m *Manager) heartbeat(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.HeartbeatInterval)
	defer cancel()

	err := m.client.Ping(pingCtx).Err()
	was := m.healthy.Swap(err == nil)
	switch {
	case err != nil && was:
		m.logger.Warnw("Job queue connection lost", "error", err)
	case err == nil && !was:
		m.logger.Infow("Job queue connection healthy")
	}
}

func (m *Manager) IsConnectionHealthy() bool {
	return m.healthy.Load()
}

// GetQueue returns the queue called name, creating the handle on first use.
func (m *Manager) GetQueue(name string) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[name]
	if !ok {
		q = &Queue{name: name, client: m.client, resultTTL: m.cfg.ResultTTL, logger: m.logger}
		m.queues[name] = q
	}
	return q
}

// DefaultQueue is the queue named in configuration.
func (m *Manager) DefaultQueue() *Queue {
	return m.GetQueue(m.cfg.Name)
}

// Close stops the heartbeat. The Redis client belongs to the caller.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
		m.healthy.Store(false)
	})
}

package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/internal/jobqueue"
	"bubbles/internal/unified"
	"bubbles/pkg/retry"
)

var ErrQueueUnhealthy = errors.New("job queue connection is unhealthy")

type QueueManager interface {
	IsConnectionHealthy() bool
	GetQueue(name string) *jobqueue.Queue
}

// Queue submits requests as durable jobs and waits for the bot's result.
type Queue struct {
	manager QueueManager
	name    string
	retry   jobqueue.RetryPolicy
	pinger  redis.UniversalClient
}

func NewQueue(manager QueueManager, cfg config.QueueConfig, pinger redis.UniversalClient) *Queue {
	policy := jobqueue.DefaultRetryPolicy()
	if cfg.Attempts > 0 {
		policy.Attempts = cfg.Attempts
	}
	if cfg.InitialBackoff > 0 {
		policy.InitialDelay = cfg.InitialBackoff
	}
	name := cfg.Name
	if name == "" {
		name = constants.DefaultQueueName
	}
	return &Queue{manager: manager, name: name, retry: policy, pinger: pinger}
}

func (q *Queue) Method() unified.Method { return unified.MethodQueue }

func (q *Queue) Execute(ctx context.Context, req *unified.NormalizedRequest) (interface{}, error) {
	if !q.manager.IsConnectionHealthy() {
		return nil, ErrQueueUnhealthy
	}

	job, err := q.manager.GetQueue(q.name).Add(ctx, req.Type, req, jobqueue.JobOptions{
		Priority: req.Priority.QueueLevel(),
		Retry:    q.retry,
		Timeout:  req.Timeout,
	})
	if err != nil {
		return nil, err
	}

	raw, err := job.Finished(ctx)
	if err != nil {
		return nil, err
	}
	return decodeResult(raw)
}

// Probe checks the manager's heartbeat and, when a client is available, the
// connection itself.
func (q *Queue) Probe(ctx context.Context) error {
	if !q.manager.IsConnectionHealthy() {
		return ErrQueueUnhealthy
	}
	if q.pinger != nil {
		if err := q.pinger.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrQueueUnhealthy, err)
		}
	}
	return nil
}

// JobHandler decodes queued requests and runs them through exec. A payload
// that cannot be decoded is not retried.
func JobHandler(exec LocalExecutor) jobqueue.Handler {
	return func(ctx context.Context, job *jobqueue.Record) (interface{}, error) {
		var req unified.NormalizedRequest
		if err := job.Decode(&req); err != nil {
			return nil, retry.Fatal(fmt.Errorf("failed to decode queued request %s: %w", job.ID, err))
		}
		return exec(ctx, &req)
	}
}

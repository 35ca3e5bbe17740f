package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bubbles/internal/constants"
	"bubbles/pkg/retry"
)

var (
	ErrJobFailed  = errors.New("job failed")
	ErrJobTimeout = errors.New("timed out waiting for job result")
	ErrJobExpired = errors.New("job expired before a worker picked it up")
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const resultPollInterval = 50 * time.Millisecond

const (
	PriorityCritical = 1
	PriorityLowest   = 4
)

// RetryPolicy is how a worker retries a failing job.
type RetryPolicy struct {
	Attempts     int           `json:"attempts"`
	Backoff      retry.Kind    `json:"backoff"`
	InitialDelay time.Duration `json:"initialDelay"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     constants.DefaultQueueAttempts,
		Backoff:      retry.KindExponential,
		InitialDelay: constants.DefaultQueueBackoff,
	}
}

func (p RetryPolicy) Policy() retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = p.Attempts
	if p.Backoff != "" {
		policy.Kind = p.Backoff
	}
	if p.InitialDelay > 0 {
		policy.InitialInterval = p.InitialDelay
	}
	return policy
}

type JobOptions struct {
	// Priority runs from 1 (first) to 4.
	Priority int           `json:"priority"`
	Retry    RetryPolicy   `json:"retry"`
	Timeout  time.Duration `json:"timeout"`
}

// Record is the stored form of a job.
type Record struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Options   JobOptions      `json:"options"`
	Status    Status          `json:"status"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Expired reports whether the job outlived its timeout while waiting.
func (r *Record) Expired(now time.Time) bool {
	return r.Options.Timeout > 0 && now.After(r.CreatedAt.Add(r.Options.Timeout))
}

// Decode unmarshals the job payload into v.
func (r *Record) Decode(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}

// Result is what a worker publishes when a job is done for good.
type Result struct {
	JobID    string          `json:"jobId"`
	Status   Status          `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Attempts int             `json:"attempts"`
}

// Job is a handle on an enqueued job.
type Job struct {
	ID       string
	queue    *Queue
	priority int
	timeout  time.Duration
}

// Finished blocks until the job's result is published or the job timeout
// (bounded by ctx) elapses. A failed job returns ErrJobFailed. When it gives
// up on a job no worker has claimed yet, the job is cancelled so it never
// runs after its caller has moved on.
func (j *Job) Finished(ctx context.Context) (json.RawMessage, error) {
	wait := j.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); wait <= 0 || until < wait {
			wait = until
		}
	}

	raw, err := j.awaitResult(ctx, wait)
	if err != nil {
		j.abandon(ctx)
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w %s after %s", ErrJobTimeout, j.ID, wait)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to wait for job %s: %w", j.ID, err)
	}

	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("failed to decode result of job %s: %w", j.ID, err)
	}
	if res.Status == StatusFailed {
		return nil, fmt.Errorf("%w: %s after %d attempts: %s", ErrJobFailed, j.ID, res.Attempts, res.Error)
	}
	return res.Data, nil
}

// awaitResult pops the job result within wait. BLPOP only blocks in whole
// seconds, so the sub-second remainder is polled. redis.Nil means no result
// arrived in time.
func (j *Job) awaitResult(ctx context.Context, wait time.Duration) (string, error) {
	key := j.queue.resultKey(j.ID)
	deadline := time.Now().Add(wait)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", redis.Nil
		}

		if remaining >= time.Second {
			// BLPOP replies with [key, value].
			vals, err := j.queue.client.BLPop(ctx, remaining.Truncate(time.Second), key).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return "", err
			}
			return vals[1], nil
		}

		val, err := j.queue.client.LPop(ctx, key).Result()
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, redis.Nil) {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(min(resultPollInterval, remaining)):
		}
	}
}

func (j *Job) abandon(ctx context.Context) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if _, err := j.queue.cancel(cancelCtx, j.ID, j.priority, "abandoned by caller"); err != nil {
		j.queue.logger.Warnw("Failed to cancel abandoned job", "job_id", j.ID, "error", err)
	}
}

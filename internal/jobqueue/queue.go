package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bubbles/internal/constants"
	"bubbles/internal/logger"
)

const transitionAttempts = 3

// Queue is a named priority queue. Job bodies live under jobs:<queue>:<id>;
// ids wait in one list per priority.
type Queue struct {
	name      string
	client    redis.UniversalClient
	resultTTL time.Duration
	logger    logger.Logger
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) jobKey(id string) string {
	return constants.CacheKeyPrefixJob + q.name + ":" + id
}

func (q *Queue) priorityKey(priority int) string {
	return fmt.Sprintf("%s%s:p%d", constants.CacheKeyPrefixQueue, q.name, priority)
}

func (q *Queue) resultKey(id string) string {
	return constants.CacheKeyPrefixQueue + q.name + ":result:" + id
}

// priorityKeys lists the wait lists from highest to lowest priority.
func (q *Queue) priorityKeys() []string {
	keys := make([]string, 0, PriorityLowest)
	for p := PriorityCritical; p <= PriorityLowest; p++ {
		keys = append(keys, q.priorityKey(p))
	}
	return keys
}

// Add stores the job and makes it visible to workers.
func (q *Queue) Add(ctx context.Context, name string, data interface{}, opts JobOptions) (*Job, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job data: %w", err)
	}

	if opts.Priority < PriorityCritical || opts.Priority > PriorityLowest {
		opts.Priority = 3
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultRequestTimeout
	}

	now := time.Now()
	rec := &Record{
		ID:        uuid.New().String(),
		Queue:     q.name,
		Name:      name,
		Data:      payload,
		Options:   opts,
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.jobKey(rec.ID), body, 0)
		pipe.LPush(ctx, q.priorityKey(opts.Priority), rec.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", name, err)
	}

	return &Job{ID: rec.ID, queue: q, priority: opts.Priority, timeout: opts.Timeout}, nil
}

// Get loads a stored job; nil when it does not exist.
func (q *Queue) Get(ctx context.Context, id string) (*Record, error) {
	body, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &rec, nil
}

// transition applies fn to the stored job under WATCH so a worker claiming
// the job and a caller cancelling it cannot both win. fn reports whether it
// changed rec; nil is returned when the job does not exist.
func (q *Queue) transition(ctx context.Context, id string, ttl time.Duration, fn func(rec *Record) bool) (*Record, bool, error) {
	key := q.jobKey(id)
	var (
		rec     *Record
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		changed = false
		body, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			rec = nil
			return nil
		}
		if err != nil {
			return err
		}
		rec = &Record{}
		if err := json.Unmarshal(body, rec); err != nil {
			return fmt.Errorf("failed to decode job %s: %w", id, err)
		}
		if changed = fn(rec); !changed {
			return nil
		}

		rec.UpdatedAt = time.Now()
		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, ttl)
			return nil
		})
		return err
	}

	var err error
	for range transitionAttempts {
		if err = q.client.Watch(ctx, txf, key); !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return rec, changed, nil
}

// claim moves a waiting job to active for a worker. A job that outlived its
// timeout while waiting is failed instead. The returned record is nil when
// the job is gone or no longer waiting.
func (q *Queue) claim(ctx context.Context, id string) (*Record, error) {
	now := time.Now()
	rec, changed, err := q.transition(ctx, id, 0, func(rec *Record) bool {
		if rec.Status != StatusWaiting {
			return false
		}
		if rec.Expired(now) {
			rec.Status = StatusFailed
			rec.Error = ErrJobExpired.Error()
			return true
		}
		rec.Status = StatusActive
		return true
	})
	if err != nil || !changed {
		return nil, err
	}
	return rec, nil
}

// cancel withdraws a job that no worker has claimed yet. It reports false
// when the job already left the waiting state.
func (q *Queue) cancel(ctx context.Context, id string, priority int, reason string) (bool, error) {
	if err := q.client.LRem(ctx, q.priorityKey(priority), 0, id).Err(); err != nil {
		return false, fmt.Errorf("failed to remove job %s from queue: %w", id, err)
	}
	_, changed, err := q.transition(ctx, id, q.resultTTL, func(rec *Record) bool {
		if rec.Status != StatusWaiting {
			return false
		}
		rec.Status = StatusCancelled
		rec.Error = reason
		return true
	})
	return changed, err
}

// publish finishes rec and pushes its result for Finished. Both expire
// after the result TTL.
func (q *Queue) publish(ctx context.Context, rec *Record, data interface{}) error {
	res := Result{JobID: rec.ID, Status: rec.Status, Error: rec.Error, Attempts: rec.Attempts}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode job result: %w", err)
		}
		res.Data = raw
	}
	body, err := json.Marshal(res)
	if err != nil {
		return err
	}
	recBody, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.jobKey(rec.ID), recBody, q.resultTTL)
		pipe.RPush(ctx, q.resultKey(rec.ID), body)
		pipe.Expire(ctx, q.resultKey(rec.ID), q.resultTTL)
		return nil
	})
	return err
}

// Waiting counts the ids waiting across all priorities.
func (q *Queue) Waiting(ctx context.Context) (int64, error) {
	var total int64
	for _, key := range q.priorityKeys() {
		n, err := q.client.LLen(ctx, key).Result()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

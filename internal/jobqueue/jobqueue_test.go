package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bubbles/internal/config"
	"bubbles/internal/logger"
	"bubbles/pkg/retry"
)

func newManager(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := NewManager(client, config.QueueConfig{
		Name:              "test",
		HeartbeatInterval: 20 * time.Millisecond,
		ResultTTL:         time.Minute,
	}, logger.NopLogger())
	t.Cleanup(m.Close)
	return mr, m
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Backoff: retry.KindFixed, InitialDelay: 5 * time.Millisecond}
}

func runWorker(t *testing.T, q *Queue, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewWorker(q, h, 1, logger.NopLogger()).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestQueue_AddStoresJob(t *testing.T) {
	ctx := context.Background()
	mr, m := newManager(t)
	q := m.GetQueue("test")
	assert.Same(t, q, m.DefaultQueue())

	job, err := q.Add(ctx, "BAN_USER", map[string]string{"userId": "u1"}, JobOptions{Priority: 2})
	require.NoError(t, err)

	rec, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusWaiting, rec.Status)
	assert.Equal(t, "BAN_USER", rec.Name)
	assert.Equal(t, DefaultRetryPolicy(), rec.Options.Retry)

	var data map[string]string
	require.NoError(t, rec.Decode(&data))
	assert.Equal(t, "u1", data["userId"])

	ids, err := mr.List("queue:test:p2")
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, ids)

	waiting, err := q.Waiting(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, waiting)
}

func TestWorker_CompletesJob(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	runWorker(t, q, func(ctx context.Context, job *Record) (interface{}, error) {
		var in map[string]int
		if err := job.Decode(&in); err != nil {
			return nil, retry.Fatal(err)
		}
		return map[string]int{"doubled": in["n"] * 2}, nil
	})

	job, err := q.Add(ctx, "double", map[string]int{"n": 21}, JobOptions{Priority: 1, Timeout: 5 * time.Second})
	require.NoError(t, err)

	raw, err := job.Finished(ctx)
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 42, out["doubled"])

	rec, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	var calls atomic.Int32
	runWorker(t, q, func(ctx context.Context, job *Record) (interface{}, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("bot not ready")
		}
		return "ok", nil
	})

	job, err := q.Add(ctx, "flaky", nil, JobOptions{Priority: 3, Retry: fastRetry(3), Timeout: 5 * time.Second})
	require.NoError(t, err)

	raw, err := job.Finished(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(raw))
	assert.EqualValues(t, 3, calls.Load())
}

func TestWorker_FailsAfterAttempts(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	var calls atomic.Int32
	runWorker(t, q, func(ctx context.Context, job *Record) (interface{}, error) {
		calls.Add(1)
		return nil, errors.New("discord down")
	})

	job, err := q.Add(ctx, "doomed", nil, JobOptions{Priority: 3, Retry: fastRetry(2), Timeout: 5 * time.Second})
	require.NoError(t, err)

	_, err = job.Finished(ctx)
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "discord down")
	assert.EqualValues(t, 2, calls.Load())
}

func TestWorker_FatalErrorStopsRetries(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	var calls atomic.Int32
	runWorker(t, q, func(ctx context.Context, job *Record) (interface{}, error) {
		calls.Add(1)
		return nil, retry.Fatal(errors.New("bad payload"))
	})

	job, err := q.Add(ctx, "fatal", nil, JobOptions{Priority: 3, Retry: fastRetry(5), Timeout: 5 * time.Second})
	require.NoError(t, err)

	_, err = job.Finished(ctx)
	require.ErrorIs(t, err, ErrJobFailed)
	assert.EqualValues(t, 1, calls.Load())
}

func TestWorker_PanicIsAttemptFailure(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	runWorker(t, q, func(ctx context.Context, job *Record) (interface{}, error) {
		panic("handler exploded")
	})

	job, err := q.Add(ctx, "panic", nil, JobOptions{Priority: 3, Retry: fastRetry(1), Timeout: 5 * time.Second})
	require.NoError(t, err)

	_, err = job.Finished(ctx)
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "handler exploded")
}

func TestWorker_HonorsPriority(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	low, err := q.Add(ctx, "low", nil, JobOptions{Priority: 4, Timeout: 5 * time.Second})
	require.NoError(t, err)
	high, err := q.Add(ctx, "high", nil, JobOptions{Priority: 1, Timeout: 5 * time.Second})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	runWorker(t, q, func(ctx context.Context, job *Record) (interface{}, error) {
		mu.Lock()
		order = append(order, job.Name)
		mu.Unlock()
		return nil, nil
	})

	_, err = low.Finished(ctx)
	require.NoError(t, err)
	_, err = high.Finished(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestJob_FinishedTimesOut(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	job, err := q.Add(ctx, "nobody-listens", nil, JobOptions{Priority: 3, Timeout: time.Second})
	require.NoError(t, err)

	_, err = job.Finished(ctx)
	assert.ErrorIs(t, err, ErrJobTimeout)
}

func TestManager_Heartbeat(t *testing.T) {
	mr, m := newManager(t)
	assert.False(t, m.IsConnectionHealthy())

	m.Start(context.Background())
	assert.True(t, m.IsConnectionHealthy())

	mr.Close()
	assert.Eventually(t, func() bool { return !m.IsConnectionHealthy() }, 2*time.Second, 10*time.Millisecond)

	m.Close()
	m.Close()
	assert.False(t, m.IsConnectionHealthy())
}

func TestJob_AbandonedJobNeverRuns(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	job, err := q.Add(ctx, "BAN_USER", map[string]string{"userId": "u1"}, JobOptions{Priority: 2, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = job.Finished(ctx)
	require.ErrorIs(t, err, ErrJobTimeout)

	rec, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rec.Status)

	waiting, err := q.Waiting(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), waiting)

	var executions atomic.Int32
	runWorker(t, q, func(context.Context, *Record) (interface{}, error) {
		executions.Add(1)
		return nil, nil
	})
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), executions.Load())
}

func TestWorker_SkipsExpiredJob(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	job, err := q.Add(ctx, "KICK_USER", nil, JobOptions{Priority: 1, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	var executions atomic.Int32
	runWorker(t, q, func(context.Context, *Record) (interface{}, error) {
		executions.Add(1)
		return nil, nil
	})

	require.Eventually(t, func() bool {
		rec, err := q.Get(ctx, job.ID)
		return err == nil && rec != nil && rec.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), executions.Load())

	rec, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ErrJobExpired.Error(), rec.Error)
}

func TestJob_FinishedHonorsSubSecondTimeout(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	job, err := q.Add(ctx, "nobody-listens", nil, JobOptions{Priority: 3, Timeout: 150 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = job.Finished(ctx)
	assert.ErrorIs(t, err, ErrJobTimeout)
	assert.Less(t, time.Since(start), 600*time.Millisecond)
}

func TestJob_FinishedPicksUpSubSecondResult(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t)
	q := m.GetQueue("test")

	runWorker(t, q, func(context.Context, *Record) (interface{}, error) {
		return "done", nil
	})

	job, err := q.Add(ctx, "quick", nil, JobOptions{Priority: 1, Timeout: 800 * time.Millisecond})
	require.NoError(t, err)

	raw, err := job.Finished(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"done"`, string(raw))
}

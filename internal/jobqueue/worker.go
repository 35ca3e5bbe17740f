package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"bubbles/internal/logger"
	apperrors "bubbles/pkg/errors"
	"bubbles/pkg/metrics"
	"bubbles/pkg/retry"
)

const pollTimeout = time.Second

// Handler processes one job. A returned error is retried according to the
// job's retry policy unless it is marked with retry.Fatal.
type Handler func(ctx context.Context, job *Record) (interface{}, error)

type Worker struct {
	queue       *Queue
	handler     Handler
	concurrency int
	logger      logger.Logger
}

func NewWorker(queue *Queue, handler Handler, concurrency int, log logger.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		handler:     handler,
		concurrency: concurrency,
		logger:      log,
	}
}

// Run consumes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infow("Job queue worker started",
		"queue", w.queue.name,
		"concurrency", w.concurrency,
	)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.loop(gCtx)
			return nil
		})
	}
	err := g.Wait()

	w.logger.Infow("Job queue worker stopped", "queue", w.queue.name)
	return err
}

func (w *Worker) loop(ctx context.Context) {
	keys := w.queue.priorityKeys()
	for ctx.Err() == nil {
		vals, err := w.queue.client.BRPop(ctx, pollTimeout, keys...).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warnw("Failed to poll job queue", "queue", w.queue.name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollTimeout):
			}
			continue
		}

		w.process(ctx, vals[1])
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	rec, err := w.queue.claim(ctx, id)
	if err != nil {
		w.logger.Errorw("Failed to claim job", "queue", w.queue.name, "job_id", id, "error", err)
		return
	}
	if rec == nil {
		w.logger.Debugw("Skipping job that is no longer waiting", "queue", w.queue.name, "job_id", id)
		metrics.QueueJobsTotal.WithLabelValues(w.queue.name, "skipped").Inc()
		return
	}

	if rec.Status == StatusFailed {
		w.logger.Warnw("Job expired before execution",
			"job_id", rec.ID,
			"name", rec.Name,
			"created_at", rec.CreatedAt,
			"timeout", rec.Options.Timeout,
		)
		if err := w.queue.publish(context.WithoutCancel(ctx), rec, nil); err != nil {
			w.logger.Errorw("Failed to publish job result", "job_id", rec.ID, "error", err)
		}
		metrics.QueueJobsTotal.WithLabelValues(w.queue.name, "expired").Inc()
		return
	}

	start := time.Now()
	var out interface{}
	runErr := retry.DoWithCallback(ctx, rec.Options.Retry.Policy(), func() error {
		rec.Attempts++
		data, err := w.run(ctx, rec)
		if err != nil {
			return err
		}
		out = data
		return nil
	}, func(attempt int, err error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues("jobqueue", w.queue.name).Inc()
		w.logger.Warnw("Job attempt failed, retrying",
			"job_id", rec.ID,
			"name", rec.Name,
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})

	status := "completed"
	rec.Status = StatusCompleted
	if runErr != nil {
		status = "failed"
		rec.Status = StatusFailed
		rec.Error = runErr.Error()
		out = nil
		w.logger.Errorw("Job failed",
			"job_id", rec.ID,
			"name", rec.Name,
			"attempts", rec.Attempts,
			"error", runErr,
		)
	}

	if err := w.queue.publish(context.WithoutCancel(ctx), rec, out); err != nil {
		w.logger.Errorw("Failed to publish job result", "job_id", rec.ID, "error", err)
	}

	metrics.QueueJobsTotal.WithLabelValues(w.queue.name, status).Inc()
	metrics.ObserveQueueJob(w.queue.name, time.Since(start))
}

func (w *Worker) run(ctx context.Context, rec *Record) (out interface{}, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, rec.Options.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s: %w", rec.ID, apperrors.RecoverPanic(r))
		}
	}()
	return w.handler(attemptCtx, rec)
}

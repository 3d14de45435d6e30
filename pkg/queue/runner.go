package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
)

// RunnerParams wires a Runner.
type RunnerParams struct {
	Broker       Broker
	Workers      []Worker
	Logger       *logger.Logger
	Metrics      *metrics.SyncMetrics
	PollTimeout  time.Duration
	RetryBackoff time.Duration
}

// Runner drives every registered worker with its configured concurrency
// until the context is cancelled.
type Runner struct {
	broker       Broker
	workers      []Worker
	logg         *logger.Logger
	metrics      *metrics.SyncMetrics
	pollTimeout  time.Duration
	retryBackoff time.Duration
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Broker == nil {
		return nil, errors.New("queue broker is required")
	}
	if len(params.Workers) == 0 {
		return nil, errors.New("at least one worker is required")
	}
	seen := map[string]struct{}{}
	for _, w := range params.Workers {
		if w == nil || w.Queue() == "" {
			return nil, errors.New("worker queue name is required")
		}
		if _, dup := seen[w.Queue()]; dup {
			return nil, fmt.Errorf("duplicate worker for queue %s", w.Queue())
		}
		seen[w.Queue()] = struct{}{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	poll := params.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}
	backoff := params.RetryBackoff
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	return &Runner{
		broker:       params.Broker,
		workers:      params.Workers,
		logg:         logg,
		metrics:      params.Metrics,
		pollTimeout:  poll,
		retryBackoff: backoff,
	}, nil
}

// Run blocks until ctx is cancelled and every consumer has returned. Jobs a
// previous process left active are requeued first.
func (r *Runner) Run(ctx context.Context) error {
	for _, w := range r.workers {
		reclaimed, err := r.broker.Reclaim(ctx, w.Queue())
		if err != nil {
			r.logg.Error(r.logg.WithField(ctx, "queue", w.Queue()), "reclaim active jobs failed", err)
			continue
		}
		if reclaimed > 0 {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
				"queue":     w.Queue(),
				"reclaimed": reclaimed,
			}), "requeued jobs left active by a previous worker")
		}
	}

	var wg sync.WaitGroup
	for _, w := range r.workers {
		for i := 0; i < w.Concurrency(); i++ {
			wg.Add(1)
			go func(w Worker) {
				defer wg.Done()
				r.consume(ctx, w)
			}(w)
		}
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"queue":       w.Queue(),
			"concurrency": w.Concurrency(),
		}), "queue consumer started")
	}
	wg.Wait()
	return nil
}

func (r *Runner) consume(ctx context.Context, w Worker) {
	for ctx.Err() == nil {
		if _, err := r.broker.PromoteDue(ctx, w.Queue(), time.Now()); err != nil && ctx.Err() == nil {
			r.logg.Error(ctx, "promote delayed jobs failed", err)
		}
		job, err := r.broker.Dequeue(ctx, w.Queue(), r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logg.Error(ctx, "dequeue failed", err)
			sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			continue
		}
		r.Process(ctx, w, job)
	}
}

// Process runs one job and settles it: ack on success, fail at once on a
// non-retryable error or an exhausted budget, otherwise retry with backoff.
// A job cut short by ctx is released untouched. Settling ignores ctx
// cancellation so shutdown never strands a job on the active list.
func (r *Runner) Process(ctx context.Context, w Worker, job *Job) {
	jobCtx := r.logg.WithJob(ctx, job.Queue, job.ID)
	started := time.Now()
	err := safeHandle(jobCtx, w, *job)

	jobCtx = r.logg.WithFields(jobCtx, map[string]any{
		"attempt":     job.Attempts + 1,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	settleCtx := context.WithoutCancel(ctx)
	var settleErr error
	switch {
	case err == nil:
		settleErr = r.broker.Ack(settleCtx, job)
		r.metrics.IncJob(job.Queue, "completed")
		r.logg.Info(jobCtx, "job completed")
	case ctx.Err() != nil:
		settleErr = r.broker.Release(settleCtx, job)
		r.metrics.IncJob(job.Queue, "released")
		r.logg.Warn(r.logg.WithField(jobCtx, "error", err.Error()), "job interrupted by shutdown, released")
	case !pkgerrors.Retryable(err) || job.Attempts+1 >= job.MaxAttempts:
		settleErr = r.broker.Fail(settleCtx, job, err)
		r.metrics.IncJob(job.Queue, "failed")
		r.logg.Error(jobCtx, "job failed", err)
	default:
		delay := r.retryBackoff * time.Duration(1<<job.Attempts)
		settleErr = r.broker.Retry(settleCtx, job, delay, err)
		r.metrics.IncJob(job.Queue, "retried")
		r.logg.Warn(r.logg.WithFields(jobCtx, map[string]any{
			"error":    err.Error(),
			"retry_in": delay.String(),
		}), "job scheduled for retry")
	}
	if settleErr != nil {
		r.logg.Error(jobCtx, "settle job failed", settleErr)
	}
}

func safeHandle(ctx context.Context, w Worker, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.Newf(pkgerrors.CodeInternal, "job handler panic: %v", rec)
		}
	}()
	return w.Handle(ctx, job)
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

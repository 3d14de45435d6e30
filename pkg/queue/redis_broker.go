package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodsync-backend/pkg/redis"
)

const (
	facetWaiting   = "waiting"
	facetActive    = "active"
	facetDelayed   = "delayed"
	facetCompleted = "completed"
	facetFailed    = "failed"

	failedHistory = 1000
	promoteBatch  = 100
)

type listStore interface {
	LPush(ctx context.Context, key string, values ...any) error
	BLMove(ctx context.Context, source, destination string, timeout time.Duration) (string, error)
	LRem(ctx context.Context, key string, value any) (int64, error)
	LLen(ctx context.Context, key string) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScoreMax(ctx context.Context, key string, max float64, limit int64) ([]string, error)
	ZRem(ctx context.Context, key string, member string) (bool, error)
	ZCard(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (string, error)
	QueueKey(queue, facet string) string
}

// RedisBroker keeps each queue in Redis: a waiting list consumed with BLMOVE
// into an active list, a delayed sorted set scored by due time, a failed list
// and a completed counter. Jobs orphaned on the active list by a worker that
// died mid-job are moved back by Reclaim when a runner starts.
type RedisBroker struct {
	store       listStore
	maxAttempts int
	now         func() time.Time
}

// NewRedisBroker wires a broker over the shared redis client.
func NewRedisBroker(store listStore, maxAttempts int) (*RedisBroker, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &RedisBroker{store: store, maxAttempts: maxAttempts, now: time.Now}, nil
}

func (b *RedisBroker) key(queue, facet string) string {
	return b.store.QueueKey(queue, facet)
}

func (b *RedisBroker) Enqueue(ctx context.Context, queue string, payload any) (string, error) {
	if queue == "" {
		return "", errors.New("queue name is required")
	}
	data, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	job := &Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		Payload:     data,
		MaxAttempts: b.maxAttempts,
		EnqueuedAt:  b.now().UTC(),
	}
	raw, err := encodeJob(job)
	if err != nil {
		return "", err
	}
	if err := b.store.LPush(ctx, b.key(queue, facetWaiting), raw); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return job.ID, nil
}

func (b *RedisBroker) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	raw, err := b.store.BLMove(ctx, b.key(queue, facetWaiting), b.key(queue, facetActive), timeout)
	if err != nil {
		return nil, fmt.Errorf("dequeue %s: %w", queue, err)
	}
	if raw == "" {
		return nil, nil
	}
	job, err := decodeJob(raw)
	if err != nil {
		// Unreadable entries would block the active list forever.
		_, _ = b.store.LRem(ctx, b.key(queue, facetActive), raw)
		return nil, err
	}
	return job, nil
}

func (b *RedisBroker) Ack(ctx context.Context, job *Job) error {
	if _, err := b.store.LRem(ctx, b.key(job.Queue, facetActive), job.raw); err != nil {
		return fmt.Errorf("ack %s: %w", job.ID, err)
	}
	_, err := b.store.Incr(ctx, b.key(job.Queue, facetCompleted))
	return err
}

func (b *RedisBroker) Retry(ctx context.Context, job *Job, delay time.Duration, cause error) error {
	if _, err := b.store.LRem(ctx, b.key(job.Queue, facetActive), job.raw); err != nil {
		return fmt.Errorf("retry %s: %w", job.ID, err)
	}
	job.Attempts++
	job.LastError = errorText(cause)
	raw, err := encodeJob(job)
	if err != nil {
		return err
	}
	due := b.now().Add(delay).UnixMilli()
	return b.store.ZAdd(ctx, b.key(job.Queue, facetDelayed), float64(due), raw)
}

func (b *RedisBroker) Fail(ctx context.Context, job *Job, cause error) error {
	if _, err := b.store.LRem(ctx, b.key(job.Queue, facetActive), job.raw); err != nil {
		return fmt.Errorf("fail %s: %w", job.ID, err)
	}
	job.Attempts++
	job.LastError = errorText(cause)
	raw, err := encodeJob(job)
	if err != nil {
		return err
	}
	failedKey := b.key(job.Queue, facetFailed)
	if err := b.store.LPush(ctx, failedKey, raw); err != nil {
		return err
	}
	return b.store.LTrim(ctx, failedKey, 0, failedHistory-1)
}

// Release pushes the job back before removing it from active, so a failed
// removal can only duplicate it.
func (b *RedisBroker) Release(ctx context.Context, job *Job) error {
	if err := b.store.LPush(ctx, b.key(job.Queue, facetWaiting), job.raw); err != nil {
		return fmt.Errorf("release %s: %w", job.ID, err)
	}
	if _, err := b.store.LRem(ctx, b.key(job.Queue, facetActive), job.raw); err != nil {
		return fmt.Errorf("release %s: %w", job.ID, err)
	}
	return nil
}

// Reclaim drains the active list into waiting. It moves at most the entries
// present when it starts.
func (b *RedisBroker) Reclaim(ctx context.Context, queue string) (int, error) {
	activeKey := b.key(queue, facetActive)
	pending, err := b.store.LLen(ctx, activeKey)
	if err != nil {
		return 0, fmt.Errorf("reclaim %s: %w", queue, err)
	}
	moved := 0
	for i := int64(0); i < pending; i++ {
		raw, err := b.store.BLMove(ctx, activeKey, b.key(queue, facetWaiting), time.Millisecond)
		if err != nil {
			return moved, fmt.Errorf("reclaim %s: %w", queue, err)
		}
		if raw == "" {
			break
		}
		moved++
	}
	return moved, nil
}

// PromoteDue moves delayed jobs whose due time passed back to waiting. ZREM
// decides ownership when several workers promote at once.
func (b *RedisBroker) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	delayedKey := b.key(queue, facetDelayed)
	due, err := b.store.ZRangeByScoreMax(ctx, delayedKey, float64(now.UnixMilli()), promoteBatch)
	if err != nil {
		return 0, fmt.Errorf("scan delayed %s: %w", queue, err)
	}
	moved := 0
	for _, raw := range due {
		owned, err := b.store.ZRem(ctx, delayedKey, raw)
		if err != nil {
			return moved, err
		}
		if !owned {
			continue
		}
		if err := b.store.LPush(ctx, b.key(queue, facetWaiting), raw); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// RetryFailed re-enqueues every failed job of queue with a fresh attempt budget.
func (b *RedisBroker) RetryFailed(ctx context.Context, queue string) (int, error) {
	failedKey := b.key(queue, facetFailed)
	moved := 0
	for {
		raw, err := b.store.BLMove(ctx, failedKey, b.key(queue, facetActive), time.Millisecond)
		if err != nil {
			return moved, err
		}
		if raw == "" {
			return moved, nil
		}
		job, err := decodeJob(raw)
		if err != nil {
			_, _ = b.store.LRem(ctx, b.key(queue, facetActive), raw)
			continue
		}
		if _, err := b.store.LRem(ctx, b.key(queue, facetActive), raw); err != nil {
			return moved, err
		}
		job.Attempts = 0
		job.LastError = ""
		fresh, err := encodeJob(job)
		if err != nil {
			return moved, err
		}
		if err := b.store.LPush(ctx, b.key(queue, facetWaiting), fresh); err != nil {
			return moved, err
		}
		moved++
	}
}

func (b *RedisBroker) Stats(ctx context.Context, queue string) (Stats, error) {
	stats := Stats{Queue: queue}
	var err error
	if stats.Waiting, err = b.store.LLen(ctx, b.key(queue, facetWaiting)); err != nil {
		return stats, err
	}
	if stats.Active, err = b.store.LLen(ctx, b.key(queue, facetActive)); err != nil {
		return stats, err
	}
	if stats.Failed, err = b.store.LLen(ctx, b.key(queue, facetFailed)); err != nil {
		return stats, err
	}
	if stats.Delayed, err = b.store.ZCard(ctx, b.key(queue, facetDelayed)); err != nil {
		return stats, err
	}
	completed, err := b.store.Get(ctx, b.key(queue, facetCompleted))
	switch {
	case errors.Is(err, redis.ErrNil):
	case err != nil:
		return stats, err
	default:
		stats.Completed, _ = strconv.ParseInt(completed, 10, 64)
	}
	return stats, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

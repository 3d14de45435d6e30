package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type delayedJob struct {
	due time.Time
	job *Job
}

type memoryQueue struct {
	waiting   []*Job
	active    map[string]*Job
	delayed   []delayedJob
	failed    []*Job
	completed int64
}

// MemoryBroker implements Broker in process memory for tests and local runs.
type MemoryBroker struct {
	mu          sync.Mutex
	queues      map[string]*memoryQueue
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewMemoryBroker(maxAttempts int) *MemoryBroker {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &MemoryBroker{
		queues:      map[string]*memoryQueue{},
		maxAttempts: maxAttempts,
		poll:        5 * time.Millisecond,
		now:         time.Now,
	}
}

func (b *MemoryBroker) queue(name string) *memoryQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{active: map[string]*Job{}}
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) Enqueue(ctx context.Context, queue string, payload any) (string, error) {
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
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	q.waiting = append(q.waiting, job)
	return job.ID, nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		if job := b.tryDequeue(queue); job != nil {
			return job, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.poll):
		}
	}
}

func (b *MemoryBroker) tryDequeue(queue string) *Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	if len(q.waiting) == 0 {
		return nil
	}
	job := q.waiting[0]
	q.waiting = q.waiting[1:]
	q.active[job.ID] = job
	copied := *job
	return &copied
}

func (b *MemoryBroker) Ack(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	delete(q.active, job.ID)
	q.completed++
	return nil
}

func (b *MemoryBroker) Retry(ctx context.Context, job *Job, delay time.Duration, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	delete(q.active, job.ID)
	job.Attempts++
	job.LastError = errorText(cause)
	copied := *job
	q.delayed = append(q.delayed, delayedJob{due: b.now().Add(delay), job: &copied})
	return nil
}

func (b *MemoryBroker) Fail(ctx context.Context, job *Job, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	delete(q.active, job.ID)
	job.Attempts++
	job.LastError = errorText(cause)
	copied := *job
	q.failed = append([]*Job{&copied}, q.failed...)
	return nil
}

func (b *MemoryBroker) Release(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	held, ok := q.active[job.ID]
	if !ok {
		return nil
	}
	delete(q.active, job.ID)
	q.waiting = append([]*Job{held}, q.waiting...)
	return nil
}

func (b *MemoryBroker) Reclaim(ctx context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	ids := make([]string, 0, len(q.active))
	for id := range q.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		q.waiting = append(q.waiting, q.active[id])
		delete(q.active, id)
	}
	return len(ids), nil
}

func (b *MemoryBroker) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	sort.SliceStable(q.delayed, func(i, j int) bool { return q.delayed[i].due.Before(q.delayed[j].due) })
	moved := 0
	remaining := q.delayed[:0]
	for _, entry := range q.delayed {
		if entry.due.After(now) {
			remaining = append(remaining, entry)
			continue
		}
		q.waiting = append(q.waiting, entry.job)
		moved++
	}
	q.delayed = remaining
	return moved, nil
}

func (b *MemoryBroker) RetryFailed(ctx context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	moved := len(q.failed)
	for i := len(q.failed) - 1; i >= 0; i-- {
		job := q.failed[i]
		job.Attempts = 0
		job.LastError = ""
		q.waiting = append(q.waiting, job)
	}
	q.failed = nil
	return moved, nil
}

func (b *MemoryBroker) Stats(ctx context.Context, queue string) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	return Stats{
		Queue:     queue,
		Waiting:   int64(len(q.waiting)),
		Active:    int64(len(q.active)),
		Completed: q.completed,
		Failed:    int64(len(q.failed)),
		Delayed:   int64(len(q.delayed)),
	}, nil
}

// Pending returns a snapshot of waiting jobs, oldest first.
func (b *MemoryBroker) Pending(queue string) []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	out := make([]Job, 0, len(q.waiting))
	for _, job := range q.waiting {
		out = append(out, *job)
	}
	return out
}

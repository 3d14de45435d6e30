package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Job is one unit of queued work. raw keeps the exact encoding stored in the
// active list so the broker can remove it on ack.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`

	raw string
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Queue, err)
	}
	return nil
}

// Stats are per-queue counters exposed on the admin surface.
type Stats struct {
	Queue     string `json:"queue"`
	Waiting   int64  `json:"waiting"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Delayed   int64  `json:"delayed"`
}

// Scheduler enqueues jobs by queue name.
type Scheduler interface {
	Enqueue(ctx context.Context, queue string, payload any) (string, error)
}

// Worker consumes one queue with a fixed concurrency.
type Worker interface {
	Queue() string
	Concurrency() int
	Handle(ctx context.Context, job Job) error
}

// Broker is the storage contract behind Scheduler and Runner.
type Broker interface {
	Scheduler
	// Dequeue blocks up to timeout; it returns nil, nil when nothing arrived.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	Retry(ctx context.Context, job *Job, delay time.Duration, cause error) error
	Fail(ctx context.Context, job *Job, cause error) error
	// Release puts an interrupted job back on waiting without spending an
	// attempt.
	Release(ctx context.Context, job *Job) error
	// Reclaim moves every job left on the active list back to waiting.
	Reclaim(ctx context.Context, queue string) (int, error)
	PromoteDue(ctx context.Context, queue string, now time.Time) (int, error)
	RetryFailed(ctx context.Context, queue string) (int, error)
	Stats(ctx context.Context, queue string) (Stats, error)
}

// FuncWorker adapts a handler function to Worker.
type FuncWorker struct {
	Name    string
	Workers int
	Fn      func(ctx context.Context, job Job) error
}

func (w FuncWorker) Queue() string { return w.Name }

func (w FuncWorker) Concurrency() int {
	if w.Workers <= 0 {
		return 1
	}
	return w.Workers
}

func (w FuncWorker) Handle(ctx context.Context, job Job) error {
	return w.Fn(ctx, job)
}

// Typed decodes the payload into T before calling fn.
func Typed[T any](fn func(ctx context.Context, payload T) error) func(ctx context.Context, job Job) error {
	return func(ctx context.Context, job Job) error {
		var payload T
		if err := job.Decode(&payload); err != nil {
			return err
		}
		return fn(ctx, payload)
	}
}

func encodeJob(job *Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	return string(data), nil
}

func decodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	job.raw = raw
	return &job, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

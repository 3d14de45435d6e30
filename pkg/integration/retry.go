package integration

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
)

// DefaultRateLimitCeiling caps the extra wait taken after an HTTP 429.
const DefaultRateLimitCeiling = 6 * time.Second

// RetryOptions configures WithRetry.
type RetryOptions struct {
	Retries          int
	BaseDelay        time.Duration
	RateLimitCeiling time.Duration
	// Sleep is swapped in tests; it must honor ctx.
	Sleep   func(ctx context.Context, d time.Duration) error
	OnRetry func(attempt int, err error)
}

// WithRetry runs fn, retrying retryable failures up to opts.Retries times.
// The delay before retry n (zero based) is BaseDelay * 2^n. An HTTP 429 adds
// a wait of min(Retry-After or that delay, RateLimitCeiling).
func WithRetry[T any](ctx context.Context, opts RetryOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	ceiling := opts.RateLimitCeiling
	if ceiling <= 0 {
		ceiling = DefaultRateLimitCeiling
	}

	var zero T
	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if attempt >= opts.Retries || !pkgerrors.Retryable(err) {
			return zero, err
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err)
		}

		delay := opts.BaseDelay * time.Duration(1<<attempt)
		if limited, ok := IsRateLimited(err); ok {
			wait := delay
			if limited.RetryAfter > 0 {
				wait = limited.RetryAfter
			}
			if wait > ceiling {
				wait = ceiling
			}
			if err := sleep(ctx, wait); err != nil {
				return zero, err
			}
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// Retry is WithRetry for calls without a result.
func Retry(ctx context.Context, opts RetryOptions, fn func(ctx context.Context) error) error {
	_, err := WithRetry(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

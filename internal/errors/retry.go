package errors

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig configures caller-level retry of idempotent operations.
// The retrieval core never retries on its own.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// Jitter is the maximum random duration added to each delay.
	Jitter time.Duration
}

// DefaultRetryConfig returns the retry policy used by the CLI.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     4 * time.Second,
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	b := retry.NewExponential(c.InitialDelay)
	if c.MaxDelay > 0 {
		b = retry.WithCappedDuration(c.MaxDelay, b)
	}
	if c.Jitter > 0 {
		b = retry.WithJitter(c.Jitter, b)
	}
	return retry.WithMaxRetries(c.MaxRetries, b)
}

// RetryWithResult runs fn until it succeeds, returns a non-retryable error
// (see IsRetryable), or the retry budget is spent.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		result   T
		attempts int
	)
	err := retry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		attempts++
		var err error
		result, err = fn(ctx)
		if err != nil && IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		var zero T
		if attempts > 1 {
			return zero, fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}
		return zero, err
	}
	return result, nil
}

// Retry is RetryWithResult for functions without a result.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

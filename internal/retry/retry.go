// Package retry provides predicate-gated retries with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialDelay is the sleep before the first retry. Each subsequent
	// retry doubles the delay up to MaxDelay.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Retriable reports whether an error is worth retrying. A nil predicate
	// retries every error.
	Retriable func(error) bool

	// Sleep waits for the backoff period, honoring ctx. Overridable in
	// tests; nil uses a timer-backed wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// MaxRetriesError reports that every attempt failed. It wraps the last error.
type MaxRetriesError struct {
	Attempts int
	Last     error
}

func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *MaxRetriesError) Unwrap() error { return e.Last }

// Delay returns the backoff before retry number attempt, counting from zero.
func (c Config) Delay(attempt int) time.Duration {
	d := c.InitialDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

func (c Config) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
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

// Do runs fn until it succeeds, the error is classified non-retriable, the
// attempt budget is spent, or ctx ends. Non-retriable errors are returned
// as-is; an exhausted budget returns *MaxRetriesError wrapping the last error.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := cfg.sleep(ctx, cfg.Delay(attempt-1)); err != nil {
				return zero, err
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if cfg.Retriable != nil && !cfg.Retriable(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, &MaxRetriesError{Attempts: cfg.MaxAttempts, Last: lastErr}
}

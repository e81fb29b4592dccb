package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestDoSucceedsFirstAttempt(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Sleep: noSleep}

	calls := 0
	got, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Sleep: noSleep}

	calls := 0
	got, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Sleep: noSleep}

	last := errors.New("still failing")
	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, last
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}

	var maxErr *MaxRetriesError
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected MaxRetriesError, got %T: %v", err, err)
	}
	if maxErr.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", maxErr.Attempts)
	}
	if !errors.Is(err, last) {
		t.Errorf("error chain must include the last failure")
	}
}

func TestDoNonRetriableStopsImmediately(t *testing.T) {
	fatal := errors.New("bad request")
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Retriable:    func(err error) bool { return !errors.Is(err, fatal) },
		Sleep:        noSleep,
	}

	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("expected the original error, got %v", err)
	}
	var maxErr *MaxRetriesError
	if errors.As(err, &maxErr) {
		t.Errorf("non-retriable failure must not be wrapped as exhaustion")
	}
}

func TestDoContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	_, err := Do(ctx, cfg, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDelaySchedule(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

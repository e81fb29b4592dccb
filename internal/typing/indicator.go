// Package typing keeps a chat's typing indicator alive while a batch is
// being processed.
package typing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the refresh period between typing actions.
const DefaultInterval = 4 * time.Second

// DefaultMaxDuration bounds how long a single indicator run may last.
const DefaultMaxDuration = 2 * time.Minute

// Sender issues one typing action to the transport.
type Sender interface {
	SendTyping(ctx context.Context, chatID string) error
}

// Indicator periodically signals "typing" for one chat until stopped or the
// maximum duration elapses. Send failures are logged and swallowed; the
// heartbeat never aborts processing.
type Indicator struct {
	sender      Sender
	logger      *slog.Logger
	interval    time.Duration
	maxDuration time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an Indicator.
type Option func(*Indicator)

// WithInterval overrides the refresh period.
func WithInterval(d time.Duration) Option {
	return func(i *Indicator) {
		if d > 0 {
			i.interval = d
		}
	}
}

// WithMaxDuration overrides the maximum run length.
func WithMaxDuration(d time.Duration) Option {
	return func(i *Indicator) {
		if d > 0 {
			i.maxDuration = d
		}
	}
}

// NewIndicator creates an indicator that sends typing actions via sender.
func NewIndicator(sender Sender, logger *slog.Logger, opts ...Option) *Indicator {
	ind := &Indicator{
		sender:      sender,
		logger:      logger,
		interval:    DefaultInterval,
		maxDuration: DefaultMaxDuration,
	}
	for _, opt := range opts {
		opt(ind)
	}
	return ind
}

// Start begins the heartbeat for a chat. An already-running heartbeat is
// stopped first so at most one loop runs per Indicator.
func (i *Indicator) Start(ctx context.Context, chatID string) {
	i.Stop()

	runCtx, cancel := context.WithTimeout(ctx, i.maxDuration)
	done := make(chan struct{})

	i.mu.Lock()
	i.cancel = cancel
	i.done = done
	i.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		i.send(runCtx, chatID)
		ticker := time.NewTicker(i.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				i.send(runCtx, chatID)
			}
		}
	}()
}

// Stop ends the heartbeat and waits for the loop to exit. Safe to call on
// every processing exit path, running or not.
func (i *Indicator) Stop() {
	i.mu.Lock()
	cancel, done := i.cancel, i.done
	i.cancel, i.done = nil, nil
	i.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (i *Indicator) send(ctx context.Context, chatID string) {
	if err := i.sender.SendTyping(ctx, chatID); err != nil && ctx.Err() == nil {
		i.logger.Debug("typing action failed", "chat_id", chatID, "error", err)
	}
}

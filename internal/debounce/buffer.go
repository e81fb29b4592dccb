// Package debounce implements a trailing-edge message buffer. Events
// accumulate while the sender is still typing; a drain completes only after a
// quiet window with no new arrivals, so rapid bursts collapse into one batch.
package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

// DefaultWindow is the quiet period that must elapse after the last arrival
// before a batch is released.
const DefaultWindow = 5 * time.Second

// Buffer collects events for a single chat and releases them in batches.
// All methods are safe for concurrent use; WaitAndDrain assumes a single
// concurrent waiter, which the per-chat task guarantees.
type Buffer struct {
	mu     sync.Mutex
	events []models.Event
	signal chan struct{}
	window time.Duration
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithWindow overrides the quiet window.
func WithWindow(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.window = d
		}
	}
}

// NewBuffer creates an empty buffer with the default quiet window.
func NewBuffer(opts ...Option) *Buffer {
	b := &Buffer{
		signal: make(chan struct{}, 1),
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add appends an event and signals any pending drain.
func (b *Buffer) Add(event models.Event) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	b.notify()
}

// Append re-queues a failed batch. The events land behind anything buffered
// since, and the next drain returns the combined list.
func (b *Buffer) Append(events []models.Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, events...)
	b.mu.Unlock()
	b.notify()
}

// IsEmpty reports whether the buffer currently holds no events.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events) == 0
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// WaitAndDrain blocks until at least one event is buffered, then waits for a
// full quiet window with no new arrivals. Once the window elapses in silence
// it atomically takes and returns every buffered event, in insertion order.
// It returns ctx.Err if the context ends first.
func (b *Buffer) WaitAndDrain(ctx context.Context) ([]models.Event, error) {
	for b.IsEmpty() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.signal:
		}
	}

	// Trailing-edge debounce: each signal restarts the window.
	for {
		b.clearSignal()
		timer := time.NewTimer(b.window)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-b.signal:
			timer.Stop()
		case <-timer.C:
			b.mu.Lock()
			drained := b.events
			b.events = nil
			b.mu.Unlock()
			return drained, nil
		}
	}
}

func (b *Buffer) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *Buffer) clearSignal() {
	select {
	case <-b.signal:
	default:
	}
}

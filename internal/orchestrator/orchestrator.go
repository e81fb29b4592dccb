// Package orchestrator serializes processing per chat. Each chat gets a
// debounce buffer and at most one worker; drained batches flow through
// history load, prompt assembly, the model backend, and durable persistence
// before the response leaves. Failures re-queue the batch with a saved
// fallback context, and three consecutive failures end the worker with an
// apology.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/concierge/internal/debounce"
	"github.com/haasonsaas/concierge/internal/llm"
	"github.com/haasonsaas/concierge/internal/prompt"
	"github.com/haasonsaas/concierge/internal/storage"
	"github.com/haasonsaas/concierge/internal/tools"
	"github.com/haasonsaas/concierge/internal/typing"
	"github.com/haasonsaas/concierge/pkg/models"
)

const apologyMessage = "I'm having trouble right now, please try again later."

// Transport delivers responses and typing signals back to the chat channel.
type Transport interface {
	Send(ctx context.Context, chatID, text string) error
	SendTyping(ctx context.Context, chatID string) error
}

// Config holds orchestrator tuning. Zero values get defaults.
type Config struct {
	// HistoryTurns is how many recent turns feed each prompt
	HistoryTurns int

	// HistoryMaxChars caps each history text field, in runes
	HistoryMaxChars int

	// DebounceWindow is the quiet period before a batch is released
	DebounceWindow time.Duration

	// FallbackMaxChars caps the saved fallback context, in runes
	FallbackMaxChars int

	// MaxFailures is how many consecutive failures end a chat worker
	MaxFailures int

	// RetryDelay is the pause before a re-queued batch is retried
	RetryDelay time.Duration

	// Timezone renders the clock in the system prompt
	Timezone *time.Location
}

func (c *Config) applyDefaults() {
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 20
	}
	if c.HistoryMaxChars <= 0 {
		c.HistoryMaxChars = 500
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = debounce.DefaultWindow
	}
	if c.FallbackMaxChars <= 0 {
		c.FallbackMaxChars = 4000
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.Timezone == nil {
		c.Timezone = time.UTC
	}
}

// chatState is the per-chat serialization unit.
type chatState struct {
	buffer    *debounce.Buffer
	indicator *typing.Indicator
	running   bool
	failures  int
}

// Orchestrator routes events to per-chat workers.
type Orchestrator struct {
	cfg       Config
	backend   llm.Backend
	history   *storage.HistoryStore
	transport Transport
	logger    *slog.Logger

	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	typingOpts []typing.Option

	mu    sync.Mutex
	chats map[string]*chatState
	wg    sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleep overrides the retry pause, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithClock overrides the wall clock, for tests.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// WithTypingOptions passes options through to each chat's typing indicator.
func WithTypingOptions(opts ...typing.Option) Option {
	return func(o *Orchestrator) { o.typingOpts = opts }
}

// New creates an orchestrator. Workers run until Shutdown.
func New(cfg Config, backend llm.Backend, history *storage.HistoryStore, transport Transport, logger *slog.Logger, opts ...Option) *Orchestrator {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		cfg:       cfg,
		backend:   backend,
		history:   history,
		transport: transport,
		logger:    logger,
		sleep:     sleepCtx,
		now:       time.Now,
		chats:     make(map[string]*chatState),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnEvent buffers one inbound event and ensures a worker is running for its
// chat. Safe for concurrent use across chats.
func (o *Orchestrator) OnEvent(ctx context.Context, event models.Event) {
	o.mu.Lock()
	st := o.chats[event.ChatID]
	if st == nil {
		st = &chatState{
			buffer: debounce.NewBuffer(debounce.WithWindow(o.cfg.DebounceWindow)),
			indicator: typing.NewIndicator(o.transport,
				o.logger.With("chat_id", event.ChatID), o.typingOpts...),
		}
		o.chats[event.ChatID] = st
	}
	st.buffer.Add(event)
	start := !st.running
	if start {
		st.running = true
		o.wg.Add(1)
	}
	o.mu.Unlock()

	if start {
		go o.runChat(event.ChatID, st)
	}
}

// Shutdown stops accepting new batches and waits for in-flight processing to
// finish, up to ctx's deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runChat is the per-chat worker loop. It exits when the buffer drains
// empty, after a final apology, or on shutdown.
func (o *Orchestrator) runChat(chatID string, st *chatState) {
	defer o.wg.Done()
	logger := o.logger.With("chat_id", chatID)

	for {
		events, err := st.buffer.WaitAndDrain(o.baseCtx)
		if err != nil {
			o.stopWorker(st)
			return
		}

		// In-flight batches finish even during shutdown.
		procCtx := context.WithoutCancel(o.baseCtx)

		if err := o.process(procCtx, chatID, st, events, logger); err != nil {
			st.failures++
			logger.Error("batch processing failed",
				"failures", st.failures,
				"batch_size", len(events),
				"error", err)

			if saveErr := o.history.SaveFallback(procCtx, chatID,
				fallbackText(events, o.cfg.FallbackMaxChars)); saveErr != nil {
				logger.Error("fallback save failed", "error", saveErr)
			}

			if st.failures >= o.cfg.MaxFailures {
				logger.Error("failure limit reached, dropping batch")
				if sendErr := o.transport.Send(procCtx, chatID, apologyMessage); sendErr != nil {
					logger.Error("apology send failed", "error", sendErr)
				}
				o.stopWorker(st)
				return
			}

			st.buffer.Append(events)
			if err := o.sleep(o.baseCtx, o.cfg.RetryDelay); err != nil {
				o.stopWorker(st)
				return
			}
			continue
		}

		st.failures = 0

		o.mu.Lock()
		if st.buffer.IsEmpty() {
			st.running = false
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()
	}
}

// process runs one drained batch end to end. The turn is persisted before
// the response is sent, so a delivery failure never loses the exchange.
func (o *Orchestrator) process(ctx context.Context, chatID string, st *chatState, events []models.Event, logger *slog.Logger) error {
	start := o.now()
	st.indicator.Start(ctx, chatID)
	defer st.indicator.Stop()

	history, err := o.history.RecentTurns(ctx, chatID, o.cfg.HistoryTurns, o.cfg.HistoryMaxChars)
	if err != nil {
		return err
	}

	fallback, err := o.history.GetFallback(ctx, chatID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	req := llm.Request{
		System: prompt.System(o.now(), chatID, o.cfg.Timezone),
		User:   prompt.User(history, events, fallback),
	}

	response, err := o.backend.Respond(tools.WithChatID(ctx, chatID), req)
	if err != nil {
		return err
	}

	elapsed := o.now().Sub(start).Milliseconds()
	if err := o.history.SaveTurn(ctx, chatID, joinEventTexts(events), response, elapsed); err != nil {
		return err
	}
	if err := o.history.ClearFallback(ctx, chatID); err != nil {
		logger.Warn("fallback clear failed", "error", err)
	}

	st.indicator.Stop()
	if err := o.transport.Send(ctx, chatID, response); err != nil {
		logger.Error("response send failed", "error", err)
	}

	logger.Info("batch processed",
		"batch_size", len(events),
		"duration_ms", elapsed)
	return nil
}

func (o *Orchestrator) stopWorker(st *chatState) {
	st.indicator.Stop()
	o.mu.Lock()
	st.running = false
	st.failures = 0
	o.mu.Unlock()
}

func joinEventTexts(events []models.Event) string {
	texts := make([]string, 0, len(events))
	for _, e := range events {
		texts = append(texts, e.Text)
	}
	return strings.Join(texts, "\n")
}

// fallbackText records what was being processed when a batch failed, for the
// next attempt's prompt.
func fallbackText(events []models.Event, maxChars int) string {
	texts := make([]string, 0, len(events))
	for _, e := range events {
		texts = append(texts, e.Text)
	}
	encoded, _ := json.Marshal(texts)
	text := "Processing failed for messages: " + string(encoded)
	runes := []rune(text)
	if maxChars > 0 && len(runes) > maxChars {
		text = string(runes[:maxChars])
	}
	return text
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package telegram is the chat ingress and egress. Inbound updates are
// authenticated against an allow-list, normalized into events, and handed to
// the orchestrator; outbound responses are chunked to fit Telegram's message
// size limit.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/concierge/internal/channels"
	"github.com/haasonsaas/concierge/pkg/models"
)

// Mode represents the update delivery mode.
type Mode string

const (
	// ModeLongPolling uses long polling to receive updates
	ModeLongPolling Mode = "long_polling"

	// ModeWebhook uses webhooks to receive updates
	ModeWebhook Mode = "webhook"
)

const (
	reactionEyes            = "👀"
	defaultMaxVoiceDuration = 60
)

// Replies for voice notes that cannot become events.
const (
	replyVoiceTooLong     = "Voice message too long, max %d seconds."
	replyTranscribeFailed = "Could not transcribe voice message."
	replySpeechNotFound   = "Could not recognize speech."
)

// Config holds configuration for the Telegram adapter.
type Config struct {
	// Token is the bot token from @BotFather (required)
	Token string

	// Mode determines whether to use long polling or webhooks
	Mode Mode

	// WebhookURL is the HTTPS URL for webhook mode (required if Mode is ModeWebhook)
	WebhookURL string

	// ListenAddr is the address for the webhook server, e.g., ":8443"
	ListenAddr string

	// AllowedChatIDs is the chat allow-list. Updates from any other chat are
	// dropped without a reply.
	AllowedChatIDs []int64

	// MaxVoiceDuration caps accepted voice notes, in seconds
	MaxVoiceDuration int

	// Logger is an optional slog.Logger instance
	Logger *slog.Logger
}

// Validate checks if the configuration is valid and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("telegram: token is required")
	}
	if c.Mode == "" {
		c.Mode = ModeLongPolling
	}
	if c.Mode == ModeWebhook && c.WebhookURL == "" {
		return errors.New("telegram: webhook_url is required for webhook mode")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8443"
	}
	if len(c.AllowedChatIDs) == 0 {
		return errors.New("telegram: allowed_chat_ids is required")
	}
	if c.MaxVoiceDuration <= 0 {
		c.MaxVoiceDuration = defaultMaxVoiceDuration
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// EventHandler receives one normalized inbound event.
type EventHandler func(ctx context.Context, event models.Event)

// Recognizer transcribes an OGG voice note to text.
type Recognizer interface {
	Recognize(ctx context.Context, ogg []byte) (string, error)
}

// Adapter connects one Telegram bot to the orchestrator.
type Adapter struct {
	config     Config
	client     BotClient
	handler    EventHandler
	recognizer Recognizer
	httpClient *http.Client
	logger     *slog.Logger
	allowed    map[int64]struct{}

	bot    *bot.Bot
	server *http.Server
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAdapter creates a Telegram adapter. The recognizer may be nil; voice
// notes are then answered with a transcription failure reply.
func NewAdapter(config Config, handler EventHandler, recognizer Recognizer) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("telegram: event handler is required")
	}

	allowed := make(map[int64]struct{}, len(config.AllowedChatIDs))
	for _, id := range config.AllowedChatIDs {
		allowed[id] = struct{}{}
	}

	return &Adapter{
		config:     config,
		handler:    handler,
		recognizer: recognizer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     config.Logger.With("adapter", "telegram"),
		allowed:    allowed,
	}, nil
}

// Start connects the bot and begins receiving updates. It returns once the
// receive loop is running; Stop shuts it down.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.logger.Info("starting telegram adapter",
		"mode", a.config.Mode,
		"allowed_chats", len(a.config.AllowedChatIDs))

	b, err := bot.New(a.config.Token, bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
		a.handleUpdate(ctx, update)
	}))
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	a.bot = b
	a.client = newRealBotClient(b)

	if a.config.Mode == ModeWebhook {
		return a.startWebhook(ctx)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.bot.Start(ctx)
	}()
	a.logger.Info("telegram adapter started")
	return nil
}

func (a *Adapter) startWebhook(ctx context.Context) error {
	if _, err := a.client.SetWebhook(ctx, &bot.SetWebhookParams{URL: a.config.WebhookURL}); err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}

	a.server = &http.Server{
		Addr:    a.config.ListenAddr,
		Handler: a.bot.WebhookHandler(),
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.bot.StartWebhook(ctx)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("webhook server failed", "error", err)
		}
	}()

	a.logger.Info("telegram adapter started", "webhook_url", a.config.WebhookURL, "listen", a.config.ListenAddr)
	return nil
}

// Stop shuts the adapter down and waits for the receive loop to exit.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("stopping telegram adapter")

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("webhook server shutdown", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("telegram adapter stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram: stop timeout: %w", ctx.Err())
	}
}

// handleUpdate authenticates and normalizes one inbound update. Accepted
// messages get an eyes reaction and are forwarded to the event handler.
func (a *Adapter) handleUpdate(ctx context.Context, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	if msg.From == nil || msg.From.IsBot {
		return
	}

	chatID := msg.Chat.ID
	if _, ok := a.allowed[chatID]; !ok {
		a.logger.Debug("dropping message from unauthorized chat", "chat_id", chatID)
		return
	}

	event, ok := a.extractEvent(ctx, msg)
	if !ok {
		return
	}

	a.reactEyes(ctx, chatID, msg.ID)

	a.logger.Debug("received message",
		"chat_id", chatID,
		"message_id", msg.ID,
		"source", event.Source)
	a.handler(ctx, event)
}

// extractEvent turns a Telegram message into an event. Voice notes that are
// too long or fail transcription get a reply and produce no event, as do
// messages with no usable text.
func (a *Adapter) extractEvent(ctx context.Context, msg *tgmodels.Message) (models.Event, bool) {
	event := models.Event{
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: msg.ID,
		From:      senderName(msg.From),
		Timestamp: time.Unix(int64(msg.Date), 0).UTC(),
		Source:    models.SourceText,
	}

	if msg.Voice != nil {
		text, ok := a.transcribeVoice(ctx, msg.Chat.ID, msg.Voice)
		if !ok {
			return models.Event{}, false
		}
		event.Text = text
		event.Source = models.SourceVoice
		event.VoiceDuration = msg.Voice.Duration
		return event, true
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return models.Event{}, false
	}
	event.Text = text
	return event, true
}

func (a *Adapter) transcribeVoice(ctx context.Context, chatID int64, voice *tgmodels.Voice) (string, bool) {
	if voice.Duration > a.config.MaxVoiceDuration {
		a.reply(ctx, chatID, fmt.Sprintf(replyVoiceTooLong, a.config.MaxVoiceDuration))
		return "", false
	}
	if a.recognizer == nil {
		a.reply(ctx, chatID, replyTranscribeFailed)
		return "", false
	}

	data, err := a.downloadFile(ctx, voice.FileID)
	if err != nil {
		a.logger.Error("voice download failed", "chat_id", chatID, "error", err)
		a.reply(ctx, chatID, replyTranscribeFailed)
		return "", false
	}

	text, err := a.recognizer.Recognize(ctx, data)
	if err != nil {
		a.logger.Error("voice transcription failed", "chat_id", chatID, "error", err)
		a.reply(ctx, chatID, replyTranscribeFailed)
		return "", false
	}
	if text == "" {
		a.reply(ctx, chatID, replySpeechNotFound)
		return "", false
	}
	return text, true
}

func (a *Adapter) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	f, err := a.client.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.FileDownloadLink(f), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// reactEyes acknowledges receipt with an eyes reaction. Failures are
// logged and never block the event.
func (a *Adapter) reactEyes(ctx context.Context, chatID int64, messageID int) {
	_, err := a.client.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    chatID,
		MessageID: messageID,
		Reaction: []tgmodels.ReactionType{{
			Type: tgmodels.ReactionTypeTypeEmoji,
			ReactionTypeEmoji: &tgmodels.ReactionTypeEmoji{
				Type:  "emoji",
				Emoji: reactionEyes,
			},
		}},
	})
	if err != nil {
		a.logger.Debug("reaction failed", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (a *Adapter) reply(ctx context.Context, chatID int64, text string) {
	_, err := a.client.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		a.logger.Error("reply failed", "chat_id", chatID, "error", err)
	}
}

// Send delivers a response, split into chunks that fit Telegram's message
// size limit. A failed chunk is logged and the rest are still attempted.
func (a *Adapter) Send(ctx context.Context, chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", chatID, err)
	}

	for _, chunk := range channels.SplitMessage(text, channels.MaxMessageLength) {
		if _, err := a.client.SendMessage(ctx, &bot.SendMessageParams{ChatID: id, Text: chunk}); err != nil {
			a.logger.Error("send chunk failed",
				"chat_id", chatID,
				"chunk_length", len(chunk),
				"error", err)
		}
	}
	return nil
}

// SendTyping signals the typing chat action once.
func (a *Adapter) SendTyping(ctx context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", chatID, err)
	}
	_, err = a.client.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: id,
		Action: tgmodels.ChatActionTyping,
	})
	return err
}

func senderName(u *tgmodels.User) string {
	if u == nil {
		return ""
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

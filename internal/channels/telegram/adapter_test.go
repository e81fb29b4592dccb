package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/concierge/pkg/models"
)

type fakeBotClient struct {
	sent         []*bot.SendMessageParams
	sendErr      error
	actions      []*bot.SendChatActionParams
	reactions    []*bot.SetMessageReactionParams
	file         *tgmodels.File
	downloadLink string
}

func (f *fakeBotClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.sent = append(f.sent, params)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &tgmodels.Message{ID: len(f.sent)}, nil
}

func (f *fakeBotClient) SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error) {
	f.actions = append(f.actions, params)
	return true, nil
}

func (f *fakeBotClient) SetMessageReaction(ctx context.Context, params *bot.SetMessageReactionParams) (bool, error) {
	f.reactions = append(f.reactions, params)
	return true, nil
}

func (f *fakeBotClient) GetFile(ctx context.Context, params *bot.GetFileParams) (*tgmodels.File, error) {
	if f.file == nil {
		return nil, errors.New("no file")
	}
	return f.file, nil
}

func (f *fakeBotClient) FileDownloadLink(file *tgmodels.File) string {
	return f.downloadLink
}

func (f *fakeBotClient) GetMe(ctx context.Context) (*tgmodels.User, error) {
	return &tgmodels.User{ID: 1}, nil
}

func (f *fakeBotClient) SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error) {
	return true, nil
}

type recognizerFunc func(ctx context.Context, ogg []byte) (string, error)

func (fn recognizerFunc) Recognize(ctx context.Context, ogg []byte) (string, error) {
	return fn(ctx, ogg)
}

func newTestAdapter(t *testing.T, client BotClient, recognizer Recognizer) (*Adapter, *[]models.Event) {
	t.Helper()
	events := &[]models.Event{}
	a, err := NewAdapter(Config{
		Token:          "test-token",
		AllowedChatIDs: []int64{100},
		Logger:         slog.New(slog.DiscardHandler),
	}, func(ctx context.Context, event models.Event) {
		*events = append(*events, event)
	}, recognizer)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	a.client = client
	return a, events
}

func textUpdate(chatID int64, messageID int, text string) *tgmodels.Update {
	return &tgmodels.Update{
		Message: &tgmodels.Message{
			ID:   messageID,
			Date: 1700000000,
			Chat: tgmodels.Chat{ID: chatID},
			From: &tgmodels.User{ID: 7, FirstName: "Alice"},
			Text: text,
		},
	}
}

func TestHandleUpdateText(t *testing.T) {
	client := &fakeBotClient{}
	a, events := newTestAdapter(t, client, nil)

	a.handleUpdate(context.Background(), textUpdate(100, 42, "hello"))

	if len(*events) != 1 {
		t.Fatalf("got %d events", len(*events))
	}
	event := (*events)[0]
	if event.ChatID != "100" || event.MessageID != 42 || event.Text != "hello" {
		t.Errorf("event = %+v", event)
	}
	if event.From != "Alice" {
		t.Errorf("from = %q", event.From)
	}
	if event.Source != models.SourceText {
		t.Errorf("source = %q", event.Source)
	}
	if len(client.reactions) != 1 {
		t.Fatalf("got %d reactions", len(client.reactions))
	}
	reaction := client.reactions[0].Reaction[0]
	if reaction.ReactionTypeEmoji == nil || reaction.ReactionTypeEmoji.Emoji != "👀" {
		t.Errorf("reaction = %+v", reaction)
	}
}

func TestHandleUpdateUnauthorized(t *testing.T) {
	client := &fakeBotClient{}
	a, events := newTestAdapter(t, client, nil)

	a.handleUpdate(context.Background(), textUpdate(999, 1, "hi"))

	if len(*events) != 0 {
		t.Errorf("unauthorized chat produced events: %+v", *events)
	}
	if len(client.reactions) != 0 || len(client.sent) != 0 {
		t.Error("unauthorized chat triggered bot calls")
	}
}

func TestHandleUpdateDrops(t *testing.T) {
	client := &fakeBotClient{}
	a, events := newTestAdapter(t, client, nil)
	ctx := context.Background()

	a.handleUpdate(ctx, &tgmodels.Update{})

	botMsg := textUpdate(100, 2, "hi")
	botMsg.Message.From.IsBot = true
	a.handleUpdate(ctx, botMsg)

	a.handleUpdate(ctx, textUpdate(100, 3, ""))

	if len(*events) != 0 {
		t.Errorf("got events: %+v", *events)
	}
}

func TestHandleUpdateCaption(t *testing.T) {
	client := &fakeBotClient{}
	a, events := newTestAdapter(t, client, nil)

	update := textUpdate(100, 5, "")
	update.Message.Caption = "photo caption"
	a.handleUpdate(context.Background(), update)

	if len(*events) != 1 || (*events)[0].Text != "photo caption" {
		t.Errorf("events = %+v", *events)
	}
}

func voiceUpdate(duration int) *tgmodels.Update {
	u := textUpdate(100, 9, "")
	u.Message.Voice = &tgmodels.Voice{FileID: "voice-1", Duration: duration}
	return u
}

func TestHandleUpdateVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OGGDATA"))
	}))
	defer srv.Close()

	client := &fakeBotClient{
		file:         &tgmodels.File{FileID: "voice-1", FilePath: "voice/file_1.oga"},
		downloadLink: srv.URL,
	}
	recognizer := recognizerFunc(func(ctx context.Context, ogg []byte) (string, error) {
		if string(ogg) != "OGGDATA" {
			return "", errors.New("wrong payload")
		}
		return "remind me tomorrow", nil
	})
	a, events := newTestAdapter(t, client, recognizer)

	a.handleUpdate(context.Background(), voiceUpdate(10))

	if len(*events) != 1 {
		t.Fatalf("got %d events", len(*events))
	}
	event := (*events)[0]
	if event.Text != "remind me tomorrow" {
		t.Errorf("text = %q", event.Text)
	}
	if event.Source != models.SourceVoice || event.VoiceDuration != 10 {
		t.Errorf("event = %+v", event)
	}
}

func TestHandleUpdateVoiceTooLong(t *testing.T) {
	client := &fakeBotClient{}
	a, events := newTestAdapter(t, client, nil)

	a.handleUpdate(context.Background(), voiceUpdate(120))

	if len(*events) != 0 {
		t.Errorf("got events: %+v", *events)
	}
	if len(client.sent) != 1 {
		t.Fatalf("got %d replies", len(client.sent))
	}
	if got := client.sent[0].Text; got != "Voice message too long, max 60 seconds." {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleUpdateVoiceNoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OGGDATA"))
	}))
	defer srv.Close()

	client := &fakeBotClient{
		file:         &tgmodels.File{FileID: "voice-1"},
		downloadLink: srv.URL,
	}
	recognizer := recognizerFunc(func(ctx context.Context, ogg []byte) (string, error) {
		return "", nil
	})
	a, events := newTestAdapter(t, client, recognizer)

	a.handleUpdate(context.Background(), voiceUpdate(5))

	if len(*events) != 0 {
		t.Errorf("got events: %+v", *events)
	}
	if len(client.sent) != 1 || client.sent[0].Text != "Could not recognize speech." {
		t.Errorf("replies = %+v", client.sent)
	}
}

func TestHandleUpdateVoiceTranscribeError(t *testing.T) {
	client := &fakeBotClient{}
	a, events := newTestAdapter(t, client, nil)

	a.handleUpdate(context.Background(), voiceUpdate(5))

	if len(*events) != 0 {
		t.Errorf("got events: %+v", *events)
	}
	if len(client.sent) != 1 || client.sent[0].Text != "Could not transcribe voice message." {
		t.Errorf("replies = %+v", client.sent)
	}
}

func TestSendChunks(t *testing.T) {
	client := &fakeBotClient{}
	a, _ := newTestAdapter(t, client, nil)

	long := strings.Repeat("a", 5000)
	if err := a.Send(context.Background(), "100", long); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(client.sent) != 2 {
		t.Fatalf("got %d chunks", len(client.sent))
	}
	if len(client.sent[0].Text)+len(client.sent[1].Text) != 5000 {
		t.Errorf("chunk lengths %d + %d", len(client.sent[0].Text), len(client.sent[1].Text))
	}
}

func TestSendChunkFailureContinues(t *testing.T) {
	client := &fakeBotClient{sendErr: errors.New("network down")}
	a, _ := newTestAdapter(t, client, nil)

	long := strings.Repeat("a", 5000)
	if err := a.Send(context.Background(), "100", long); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(client.sent) != 2 {
		t.Errorf("failed chunk stopped the rest, got %d attempts", len(client.sent))
	}
}

func TestSendBadChatID(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeBotClient{}, nil)
	if err := a.Send(context.Background(), "not-a-number", "hi"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSendTyping(t *testing.T) {
	client := &fakeBotClient{}
	a, _ := newTestAdapter(t, client, nil)

	if err := a.SendTyping(context.Background(), "100"); err != nil {
		t.Fatalf("send typing: %v", err)
	}
	if len(client.actions) != 1 {
		t.Fatalf("got %d actions", len(client.actions))
	}
	if client.actions[0].Action != tgmodels.ChatActionTyping {
		t.Errorf("action = %q", client.actions[0].Action)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Token: "t", AllowedChatIDs: []int64{1}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Mode != ModeLongPolling || cfg.MaxVoiceDuration != 60 || cfg.ListenAddr != ":8443" {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	bad := Config{AllowedChatIDs: []int64{1}}
	if err := bad.Validate(); err == nil {
		t.Error("missing token accepted")
	}
	noChats := Config{Token: "t"}
	if err := noChats.Validate(); err == nil {
		t.Error("empty allow-list accepted")
	}
	webhook := Config{Token: "t", AllowedChatIDs: []int64{1}, Mode: ModeWebhook}
	if err := webhook.Validate(); err == nil {
		t.Error("webhook mode without url accepted")
	}
}

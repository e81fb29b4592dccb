package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// BotClient wraps the bot.Bot methods the adapter uses. Tests inject a fake.
type BotClient interface {
	// SendMessage sends a text message to a chat.
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)

	// SendChatAction signals an action such as "typing" to a chat.
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)

	// SetMessageReaction sets an emoji reaction on a message.
	SetMessageReaction(ctx context.Context, params *bot.SetMessageReactionParams) (bool, error)

	// GetFile retrieves file metadata for downloading.
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)

	// FileDownloadLink builds the download URL for a file.
	FileDownloadLink(f *models.File) string

	// GetMe returns information about the bot.
	GetMe(ctx context.Context) (*models.User, error)

	// SetWebhook configures a webhook for receiving updates.
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
}

// realBotClient wraps a *bot.Bot to implement BotClient.
type realBotClient struct {
	bot *bot.Bot
}

func newRealBotClient(b *bot.Bot) BotClient {
	return &realBotClient{bot: b}
}

func (r *realBotClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	return r.bot.SendMessage(ctx, params)
}

func (r *realBotClient) SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error) {
	return r.bot.SendChatAction(ctx, params)
}

func (r *realBotClient) SetMessageReaction(ctx context.Context, params *bot.SetMessageReactionParams) (bool, error) {
	return r.bot.SetMessageReaction(ctx, params)
}

func (r *realBotClient) GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error) {
	return r.bot.GetFile(ctx, params)
}

func (r *realBotClient) FileDownloadLink(f *models.File) string {
	return r.bot.FileDownloadLink(f)
}

func (r *realBotClient) GetMe(ctx context.Context) (*models.User, error) {
	return r.bot.GetMe(ctx)
}

func (r *realBotClient) SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error) {
	return r.bot.SetWebhook(ctx, params)
}

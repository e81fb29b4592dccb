package tools

import "context"

type chatIDKey struct{}

// WithChatID binds the chat a dispatch cycle serves. Handlers that keep
// per-chat state read it back with ChatIDFrom.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

// ChatIDFrom returns the chat id bound to ctx, or "default".
func ChatIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(chatIDKey{}).(string); ok && id != "" {
		return id
	}
	return "default"
}

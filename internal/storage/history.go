package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

// HistoryStore persists conversation turns and per-chat fallback context.
type HistoryStore struct {
	db *sql.DB
}

// SaveTurn appends one completed exchange for a chat. Turns are never
// mutated after insert.
func (s *HistoryStore) SaveTurn(ctx context.Context, chatID, userText, botResponse string, durationMs int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (chat_id, user_text, bot_response, duration_ms, created_at) VALUES (?, ?, ?, ?, ?)`,
		chatID, userText, botResponse, durationMs, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit most recent turns for a chat, oldest first.
// Text fields longer than maxChars runes are cut; maxChars <= 0 disables
// truncation.
func (s *HistoryStore) RecentTurns(ctx context.Context, chatID string, limit, maxChars int) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, user_text, bot_response, duration_ms, created_at
		 FROM turns WHERE chat_id = ? ORDER BY id DESC LIMIT ?`,
		chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var duration sql.NullInt64
		var created string
		if err := rows.Scan(&t.ID, &t.ChatID, &t.UserText, &t.BotResponse, &duration, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.DurationMs = duration.Int64
		t.CreatedAt = parseTime(created)
		t.UserText = truncateRunes(t.UserText, maxChars)
		t.BotResponse = truncateRunes(t.BotResponse, maxChars)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	// Query returns newest first; prompts want chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// SaveFallback stores the fallback context for a chat, replacing any previous
// value. At most one fallback row exists per chat.
func (s *HistoryStore) SaveFallback(ctx context.Context, chatID, stdout string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fallback_context (chat_id, stdout, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET stdout = excluded.stdout, updated_at = excluded.updated_at`,
		chatID, stdout, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save fallback: %w", err)
	}
	return nil
}

// GetFallback returns the stored fallback context for a chat and deletes it
// in the same transaction, so a context feeds exactly one retry. It returns
// ErrNotFound when no fallback exists.
func (s *HistoryStore) GetFallback(ctx context.Context, chatID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("get fallback: %w", err)
	}
	defer tx.Rollback()

	var stdout string
	err = tx.QueryRowContext(ctx,
		`SELECT stdout FROM fallback_context WHERE chat_id = ?`, chatID).Scan(&stdout)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get fallback: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fallback_context WHERE chat_id = ?`, chatID); err != nil {
		return "", fmt.Errorf("get fallback: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("get fallback: %w", err)
	}
	return stdout, nil
}

// ClearFallback removes any stored fallback for a chat. Clearing a missing
// row is not an error.
func (s *HistoryStore) ClearFallback(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM fallback_context WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear fallback: %w", err)
	}
	return nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

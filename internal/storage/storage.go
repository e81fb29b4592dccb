// Package storage provides the durable SQLite-backed stores: conversation
// turns, per-chat fallback context, todo items, and OAuth tokens. All stores
// share one database handle serialized to a single connection.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id TEXT NOT NULL,
	user_text TEXT NOT NULL,
	bot_response TEXT NOT NULL,
	duration_ms INTEGER,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_chat ON turns(chat_id);
CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);

CREATE TABLE IF NOT EXISTS fallback_context (
	chat_id TEXT PRIMARY KEY,
	stdout TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS todos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id TEXT NOT NULL,
	title TEXT NOT NULL,
	due_date TEXT,
	priority TEXT NOT NULL DEFAULT 'medium',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TEXT NOT NULL,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_todos_chat ON todos(chat_id);

CREATE TABLE IF NOT EXISTS oauth_tokens (
	service TEXT PRIMARY KEY,
	token_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// DB wraps the shared database handle.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies the
// schema. The handle is limited to a single connection so writes from
// concurrent chat tasks serialize at the pool instead of failing with
// SQLITE_BUSY.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// History returns the conversation history store.
func (d *DB) History() *HistoryStore { return &HistoryStore{db: d.db} }

// Todos returns the todo store.
func (d *DB) Todos() *TodoStore { return &TodoStore{db: d.db} }

// Tokens returns the OAuth token store.
func (d *DB) Tokens() *TokenStore { return &TokenStore{db: d.db} }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

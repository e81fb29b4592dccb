package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// TokenStore persists OAuth tokens for external services the tools talk to,
// keyed by service name. Tokens round-trip as oauth2.Token JSON so refresh
// metadata survives restarts.
type TokenStore struct {
	db *sql.DB
}

// Save upserts the token for a service.
func (s *TokenStore) Save(ctx context.Context, service string, token *oauth2.Token) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (service, token_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(service) DO UPDATE SET token_json = excluded.token_json, updated_at = excluded.updated_at`,
		service, string(payload), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Load returns the stored token for a service, or ErrNotFound.
func (s *TokenStore) Load(ctx context.Context, service string) (*oauth2.Token, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT token_json FROM oauth_tokens WHERE service = ?`, service).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(payload), &token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &token, nil
}

// Delete removes the stored token for a service. Deleting a missing token is
// not an error.
func (s *TokenStore) Delete(ctx context.Context, service string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE service = ?`, service); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

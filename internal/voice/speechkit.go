// Package voice transcribes Telegram voice notes with Yandex SpeechKit.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RecognizeURL is the SpeechKit short-audio recognition endpoint.
const RecognizeURL = "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize"

const requestTimeout = 15 * time.Second

// Recognizer sends OGG audio to SpeechKit and returns recognized text.
type Recognizer struct {
	apiKey   string
	folderID string
	lang     string
	endpoint string
	http     *http.Client
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithEndpoint overrides the recognition endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) { r.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Recognizer) { r.http = client }
}

// NewRecognizer creates a SpeechKit client. lang defaults to ru-RU.
func NewRecognizer(apiKey, folderID, lang string, opts ...Option) *Recognizer {
	if lang == "" {
		lang = "ru-RU"
	}
	r := &Recognizer{
		apiKey:   apiKey,
		folderID: folderID,
		lang:     lang,
		endpoint: RecognizeURL,
		http:     &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recognize posts OGG audio and returns the recognized text. An empty string
// with nil error means the audio held no recognizable speech.
func (r *Recognizer) Recognize(ctx context.Context, audio []byte) (string, error) {
	params := url.Values{}
	params.Set("folderId", r.folderID)
	params.Set("lang", r.lang)
	params.Set("model", "general:rc")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.endpoint+"?"+params.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Api-Key "+r.apiKey)
	req.Header.Set("Content-Type", "application/ogg")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("recognize: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("recognize: decode response: %w", err)
	}
	return decoded.Result, nil
}

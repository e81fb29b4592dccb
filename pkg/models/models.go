// Package models defines the shared data types passed between the ingress,
// orchestrator, storage, and prompt layers.
package models

import "time"

// EventSource identifies how an inbound event entered the system.
type EventSource string

const (
	SourceText  EventSource = "text"
	SourceVoice EventSource = "voice"
)

// Event is a normalized inbound message from a chat channel.
// Every ingress path produces this fixed shape; downstream code never
// inspects channel-specific payloads.
type Event struct {
	ChatID    string      `json:"chat_id"`
	MessageID int         `json:"message_id"`
	Text      string      `json:"text"`
	From      string      `json:"from"`
	Timestamp time.Time   `json:"timestamp"`
	Source    EventSource `json:"source,omitempty"`

	// VoiceDuration is the voice note length in seconds for Source voice.
	VoiceDuration int `json:"voice_duration,omitempty"`
}

// Turn is one persisted conversation exchange: the combined user input for a
// batch and the assistant's final response. Turns are append-only.
type Turn struct {
	ID          int64     `json:"id"`
	ChatID      string    `json:"chat_id"`
	UserText    string    `json:"user_text"`
	BotResponse string    `json:"bot_response"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TodoPriority orders todo items. High sorts before medium, medium before low.
type TodoPriority string

const (
	PriorityHigh   TodoPriority = "high"
	PriorityMedium TodoPriority = "medium"
	PriorityLow    TodoPriority = "low"
)

// TodoStatus tracks todo item lifecycle.
type TodoStatus string

const (
	StatusPending TodoStatus = "pending"
	StatusDone    TodoStatus = "done"
)

// TodoItem is a stored task managed through the todo tools. DueDate is a
// YYYY-MM-DD string; CompletedAt is empty while the item is pending.
type TodoItem struct {
	ID          int64        `json:"id"`
	ChatID      string       `json:"chat_id"`
	Title       string       `json:"title"`
	Priority    TodoPriority `json:"priority"`
	Status      TodoStatus   `json:"status"`
	DueDate     string       `json:"due_date,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt string       `json:"completed_at,omitempty"`
}

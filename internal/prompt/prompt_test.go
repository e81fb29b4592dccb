package prompt

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

func TestSystemIncludesClockAndChat(t *testing.T) {
	now := time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC)
	got := System(now, "12345", time.UTC)

	if !strings.Contains(got, "persistent personal assistant") {
		t.Error("persona missing")
	}
	if !strings.Contains(got, "Monday, August 24, 2026 at 14:30 UTC") {
		t.Errorf("clock missing or misformatted:\n%s", got)
	}
	if !strings.Contains(got, "chat 12345") {
		t.Errorf("chat identifier missing:\n%s", got)
	}
}

func TestUserSectionOrder(t *testing.T) {
	history := []models.Turn{
		{UserText: "hi", BotResponse: "hello"},
	}
	events := []models.Event{
		{Text: "what's up", From: "alice", Timestamp: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)},
	}

	got := User(history, events, "we were planning dinner")

	markers := []string{
		"Recent conversation:",
		"Before responding, follow these steps IN ORDER:",
		"New message(s) from the user:",
		"Previous interaction context (retry after failure):",
	}
	last := -1
	for _, marker := range markers {
		idx := strings.Index(got, marker)
		if idx < 0 {
			t.Fatalf("section %q missing:\n%s", marker, got)
		}
		if idx < last {
			t.Errorf("section %q out of order", marker)
		}
		last = idx
	}

	if !strings.Contains(got, "User: hi\nAssistant: hello") {
		t.Error("history lines malformed")
	}
	if !strings.Contains(got, "we were planning dinner") {
		t.Error("fallback text missing")
	}
}

func TestUserOmitsEmptySections(t *testing.T) {
	events := []models.Event{{Text: "hey", From: "alice", Timestamp: time.Now()}}
	got := User(nil, events, "")

	if strings.Contains(got, "Recent conversation:") {
		t.Error("empty history must be omitted")
	}
	if strings.Contains(got, "Previous interaction context") {
		t.Error("absent fallback must be omitted")
	}
	if !strings.Contains(got, "New message(s) from the user:") {
		t.Error("message section required")
	}
}

func TestUserEventsEncodedAsJSON(t *testing.T) {
	ts := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	events := []models.Event{
		{Text: "one", From: "alice", Timestamp: ts},
		{Text: "two", From: "alice", Timestamp: ts.Add(time.Second)},
	}

	got := User(nil, events, "")
	_, payload, ok := strings.Cut(got, "New message(s) from the user:\n")
	if !ok {
		t.Fatal("message section missing")
	}

	var decoded []map[string]string
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("message batch is not valid JSON: %v\n%s", err, payload)
	}
	if len(decoded) != 2 || decoded[0]["text"] != "one" || decoded[1]["text"] != "two" {
		t.Errorf("decoded batch wrong: %v", decoded)
	}
	if decoded[0]["timestamp"] != "2026-08-24T12:00:00Z" {
		t.Errorf("timestamp = %q", decoded[0]["timestamp"])
	}
}

// Package prompt assembles the model prompts. The system prompt carries the
// assistant persona and clock; the user prompt stacks up to four sections:
// recent history, retrieval instructions, the new message batch, and an
// optional fallback context from a failed previous run.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

const systemTemplate = `You are a persistent personal assistant communicating with your user via Telegram.
You maintain conversation continuity using the Graphiti knowledge graph.

At the start of each interaction, retrieve recent episodes and relevant facts.
After responding, save an episode summarizing this interaction.
If no episodes or facts are found, this is your first conversation — introduce
yourself naturally and learn about your user.

RESPONSE RULES:
- Your response is sent directly as a Telegram message.
- Output ONLY the message text. No internal reasoning or meta-commentary.
- Keep responses concise and conversational.
- Use Telegram-compatible formatting (bold, italic, code) sparingly.
- You MUST produce a text response for every interaction.

The current date and time is: %s
You are talking in chat %s.`

const retrievalInstructions = `Before responding, follow these steps IN ORDER:

Step 1 — Retrieve context:
1. Call get_episodes(group_ids=["main"], max_episodes=5) for recent conversation context
2. Call search_memory_facts(query="pending items, open tasks", group_ids=["main"])
3. You may call search_memory_facts or search_nodes with other queries based on the message

Step 2 — Respond to the user's message using the retrieved context

Step 3 — Save memory:
Call add_memory with a free-form text summary of: what the user said, what you
responded, what actions you took, and any pending items.
Use group_id="main", source="text", and a descriptive name.`

// System builds the system prompt for a chat with the current wall clock
// rendered in loc.
func System(now time.Time, chatID string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf(systemTemplate, now.In(loc).Format("Monday, January 2, 2006 at 15:04 MST"), chatID)
}

type promptEvent struct {
	Text      string `json:"text"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
}

// User builds the user message content from history, the drained event batch,
// and an optional fallback context. Sections are joined by blank lines; empty
// sections are omitted entirely.
func User(history []models.Turn, events []models.Event, fallback string) string {
	var sections []string

	if len(history) > 0 {
		lines := []string{"Recent conversation:"}
		for _, turn := range history {
			lines = append(lines, "User: "+turn.UserText)
			lines = append(lines, "Assistant: "+turn.BotResponse)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	sections = append(sections, retrievalInstructions)

	items := make([]promptEvent, 0, len(events))
	for _, e := range events {
		items = append(items, promptEvent{
			Text:      e.Text,
			From:      e.From,
			Timestamp: e.Timestamp.Format(time.RFC3339),
		})
	}
	encoded, _ := json.MarshalIndent(items, "", "  ")
	sections = append(sections, "New message(s) from the user:\n"+string(encoded))

	if fallback != "" {
		sections = append(sections, "Previous interaction context (retry after failure):\n"+fallback)
	}

	return strings.Join(sections, "\n\n")
}

package tools

import "strings"

// toolProgress maps tool names to the short status lines surfaced while a
// batch is processing.
var toolProgress = map[string]string{
	"get_episodes":          "Recalling recent conversations...",
	"search_memory_facts":   "Searching memory...",
	"search_nodes":          "Looking up entities...",
	"add_memory":            "Saving to memory...",
	"todo_add":              "Adding task...",
	"todo_list":             "Checking tasks...",
	"todo_complete":         "Completing task...",
	"todo_delete":           "Removing task...",
	"calendar_list_events":  "Checking calendar...",
	"calendar_create_event": "Creating event...",
	"calendar_delete_event": "Removing event...",
	"email_list_messages":   "Checking email...",
	"email_read_message":    "Reading email...",
	"email_send_message":    "Sending email...",
	"web_search":            "Searching the web...",
	"perplexity_search":     "Researching...",
	"get_current_time":      "Checking the time...",
}

// Progress returns the user-facing progress line for a tool invocation, or
// "" when the tool has none. MCP-prefixed names (mcp__<server>__<tool>) are
// resolved by their bare tool name.
func Progress(toolName string) string {
	base := toolName
	if strings.HasPrefix(base, "mcp__") {
		parts := strings.SplitN(base, "__", 3)
		if len(parts) == 3 {
			base = parts[2]
		}
	}
	return toolProgress[base]
}

// Package memorysearch registers the long-term memory tools backed by the
// Graphiti client.
package memorysearch

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/concierge/internal/memory"
	"github.com/haasonsaas/concierge/internal/tools"
)

var getEpisodesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"group_ids": {"type": "array", "items": {"type": "string"}, "description": "Memory group IDs to search", "default": ["main"]},
		"max_episodes": {"type": "integer", "description": "Maximum number of episodes to retrieve", "default": 5}
	},
	"required": []
}`)

var searchFactsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Natural language search query"},
		"group_ids": {"type": "array", "items": {"type": "string"}, "default": ["main"]}
	},
	"required": ["query"]
}`)

var searchNodesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Entity or topic to search for"},
		"group_ids": {"type": "array", "items": {"type": "string"}, "default": ["main"]}
	},
	"required": ["query"]
}`)

var addMemorySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"name": {"type": "string", "description": "Short descriptive name for this memory episode"},
		"episode_body": {"type": "string", "description": "Free-form text summary of the interaction"},
		"group_id": {"type": "string", "default": "main"},
		"source": {"type": "string", "default": "text"}
	},
	"required": ["name", "episode_body"]
}`)

// Register adds the four memory tools to the registry.
func Register(registry *tools.Registry, client *memory.Client) error {
	if err := registry.Register("get_episodes",
		"Retrieve the most recent conversation episodes from long-term memory. Use this at the start of every interaction to get recent context.",
		getEpisodesSchema,
		func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				GroupIDs    []string `json:"group_ids"`
				MaxEpisodes int      `json:"max_episodes"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", err
			}
			return client.GetEpisodes(ctx, args.GroupIDs, args.MaxEpisodes)
		}); err != nil {
		return err
	}

	if err := registry.Register("search_memory_facts",
		"Search long-term memory for facts and relationships. Use for finding pending tasks, user preferences, past decisions, or any specific topic.",
		searchFactsSchema,
		func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Query    string   `json:"query"`
				GroupIDs []string `json:"group_ids"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", err
			}
			return client.SearchFacts(ctx, args.Query, args.GroupIDs)
		}); err != nil {
		return err
	}

	if err := registry.Register("search_nodes",
		"Search for entities (people, projects, topics) in long-term memory. Use when you need to know about a specific entity or topic.",
		searchNodesSchema,
		func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Query    string   `json:"query"`
				GroupIDs []string `json:"group_ids"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", err
			}
			return client.SearchNodes(ctx, args.Query, args.GroupIDs)
		}); err != nil {
		return err
	}

	return registry.Register("add_memory",
		"Save a conversation summary to long-term memory. Call this after every interaction with a summary of: what the user said, what you responded, actions taken, and pending items.",
		addMemorySchema,
		func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Name        string `json:"name"`
				EpisodeBody string `json:"episode_body"`
				GroupID     string `json:"group_id"`
				Source      string `json:"source"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", err
			}
			return client.AddMemory(ctx, args.Name, args.EpisodeBody, args.GroupID, args.Source)
		})
}

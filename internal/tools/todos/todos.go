// Package todos registers the todo list tools backed by the todo store.
package todos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haasonsaas/concierge/internal/storage"
	"github.com/haasonsaas/concierge/internal/tools"
	"github.com/haasonsaas/concierge/pkg/models"
)

var addSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "Task title or description"},
		"due_date": {"type": "string", "description": "Due date in YYYY-MM-DD format (optional)"},
		"priority": {"type": "string", "enum": ["high", "medium", "low"], "description": "Task priority", "default": "medium"}
	},
	"required": ["title"]
}`)

var listSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"status": {"type": "string", "enum": ["pending", "done"], "description": "Filter by status. Omit to show all."},
		"days_ahead": {"type": "integer", "description": "Only show tasks due within this many days"}
	}
}`)

var completeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"todo_id": {"type": "integer", "description": "The task ID to mark as done"}
	},
	"required": ["todo_id"]
}`)

var deleteSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"todo_id": {"type": "integer", "description": "The task ID to delete"}
	},
	"required": ["todo_id"]
}`)

// Register adds the four todo tools to the registry. Handlers resolve the
// chat from the dispatch context.
func Register(registry *tools.Registry, store *storage.TodoStore) error {
	register := func(name, desc string, schema json.RawMessage, handler tools.Handler) error {
		return registry.Register(name, desc, schema, handler)
	}

	if err := register("todo_add",
		"Add a new task to the user's todo list. Use for reminders, tasks, and planning.",
		addSchema, addHandler(store)); err != nil {
		return err
	}
	if err := register("todo_list",
		"List tasks from the user's todo list. Can filter by status (pending/done) and due date.",
		listSchema, listHandler(store)); err != nil {
		return err
	}
	if err := register("todo_complete",
		"Mark a task as completed on the user's todo list.",
		completeSchema, completeHandler(store)); err != nil {
		return err
	}
	return register("todo_delete",
		"Delete a task from the user's todo list.",
		deleteSchema, deleteHandler(store))
}

func addHandler(store *storage.TodoStore) tools.Handler {
	return func(ctx context.Context, input json.RawMessage) (string, error) {
		var args struct {
			Title    string `json:"title"`
			DueDate  string `json:"due_date"`
			Priority string `json:"priority"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return "", err
		}
		item, err := store.Add(ctx, tools.ChatIDFrom(ctx), args.Title, models.TodoPriority(args.Priority), args.DueDate)
		if err != nil {
			return "", err
		}
		return marshal(map[string]any{
			"status":   "created",
			"todo_id":  item.ID,
			"title":    item.Title,
			"due_date": item.DueDate,
			"priority": item.Priority,
		})
	}
}

func listHandler(store *storage.TodoStore) tools.Handler {
	return func(ctx context.Context, input json.RawMessage) (string, error) {
		var args struct {
			Status    string `json:"status"`
			DaysAhead int    `json:"days_ahead"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return "", err
		}
		items, err := store.List(ctx, tools.ChatIDFrom(ctx), storage.TodoFilter{
			Status:    models.TodoStatus(args.Status),
			DaysAhead: args.DaysAhead,
		})
		if err != nil {
			return "", err
		}
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			entry := map[string]any{
				"todo_id":    item.ID,
				"title":      item.Title,
				"priority":   item.Priority,
				"status":     item.Status,
				"created_at": item.CreatedAt,
			}
			if item.DueDate != "" {
				entry["due_date"] = item.DueDate
			}
			if item.CompletedAt != "" {
				entry["completed_at"] = item.CompletedAt
			}
			out = append(out, entry)
		}
		return marshal(out)
	}
}

func completeHandler(store *storage.TodoStore) tools.Handler {
	return func(ctx context.Context, input json.RawMessage) (string, error) {
		var args struct {
			TodoID int64 `json:"todo_id"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return "", err
		}
		item, err := store.Complete(ctx, tools.ChatIDFrom(ctx), args.TodoID)
		if errors.Is(err, storage.ErrNotFound) {
			return marshal(map[string]any{"error": fmt.Sprintf("Todo #%d not found", args.TodoID)})
		}
		if err != nil {
			return "", err
		}
		return marshal(map[string]any{
			"status":  "completed",
			"todo_id": item.ID,
			"title":   item.Title,
		})
	}
}

func deleteHandler(store *storage.TodoStore) tools.Handler {
	return func(ctx context.Context, input json.RawMessage) (string, error) {
		var args struct {
			TodoID int64 `json:"todo_id"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return "", err
		}
		err := store.Delete(ctx, tools.ChatIDFrom(ctx), args.TodoID)
		if errors.Is(err, storage.ErrNotFound) {
			return marshal(map[string]any{"error": fmt.Sprintf("Todo #%d not found", args.TodoID)})
		}
		if err != nil {
			return "", err
		}
		return marshal(map[string]any{"status": "deleted", "todo_id": args.TodoID})
	}
}

func marshal(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

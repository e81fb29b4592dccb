package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

// TodoStore persists per-chat todo items.
type TodoStore struct {
	db *sql.DB
}

// TodoFilter narrows List results. Zero values disable a filter.
type TodoFilter struct {
	// Status keeps only items in this state.
	Status models.TodoStatus

	// DaysAhead keeps only dated items due within this many days. Negative
	// or zero means no due-date filter.
	DaysAhead int
}

// Add inserts a pending item and returns it with its assigned id.
func (s *TodoStore) Add(ctx context.Context, chatID, title string, priority models.TodoPriority, dueDate string) (models.TodoItem, error) {
	if priority == "" {
		priority = models.PriorityMedium
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO todos (chat_id, title, due_date, priority, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		chatID, title, nullable(dueDate), string(priority), string(models.StatusPending), formatTime(now))
	if err != nil {
		return models.TodoItem{}, fmt.Errorf("add todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.TodoItem{}, fmt.Errorf("add todo: %w", err)
	}
	return models.TodoItem{
		ID:        id,
		ChatID:    chatID,
		Title:     title,
		Priority:  priority,
		Status:    models.StatusPending,
		DueDate:   dueDate,
		CreatedAt: now,
	}, nil
}

// List returns a chat's items ordered by priority (high first), then due date
// with undated items last, then insertion order.
func (s *TodoStore) List(ctx context.Context, chatID string, filter TodoFilter) ([]models.TodoItem, error) {
	query := `SELECT id, chat_id, title, due_date, priority, status, created_at, completed_at
		 FROM todos WHERE chat_id = ?`
	args := []any{chatID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.DaysAhead > 0 {
		query += ` AND due_date IS NOT NULL AND due_date <= date('now', ? || ' days')`
		args = append(args, fmt.Sprintf("%d", filter.DaysAhead))
	}
	query += ` ORDER BY
		CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		due_date IS NULL,
		due_date ASC,
		id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	var items []models.TodoItem
	for rows.Next() {
		item, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return items, nil
}

// Complete marks an item done and returns its final state. ErrNotFound means
// no item with that id exists for the chat.
func (s *TodoStore) Complete(ctx context.Context, chatID string, id int64) (models.TodoItem, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE todos SET status = 'done', completed_at = ? WHERE chat_id = ? AND id = ?`,
		formatTime(time.Now()), chatID, id)
	if err != nil {
		return models.TodoItem{}, fmt.Errorf("complete todo: %w", err)
	}
	if err := requireAffected(res, "complete todo"); err != nil {
		return models.TodoItem{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, title, due_date, priority, status, created_at, completed_at
		 FROM todos WHERE chat_id = ? AND id = ?`, chatID, id)
	return scanTodo(row)
}

// Delete removes an item regardless of status. ErrNotFound means no item with
// that id exists for the chat.
func (s *TodoStore) Delete(ctx context.Context, chatID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM todos WHERE chat_id = ? AND id = ?`, chatID, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	return requireAffected(res, "delete todo")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (models.TodoItem, error) {
	var item models.TodoItem
	var priority, status, created string
	var due, completed sql.NullString
	if err := row.Scan(&item.ID, &item.ChatID, &item.Title, &due, &priority, &status, &created, &completed); err != nil {
		return models.TodoItem{}, fmt.Errorf("scan todo: %w", err)
	}
	item.Priority = models.TodoPriority(priority)
	item.Status = models.TodoStatus(status)
	item.DueDate = due.String
	item.CreatedAt = parseTime(created)
	item.CompletedAt = completed.String
	return item, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

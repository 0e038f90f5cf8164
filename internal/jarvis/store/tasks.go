package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Task statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// ErrEmptyTask is returned by InsertTask when the text is blank.
var ErrEmptyTask = errors.New("store: task text is empty")

// ErrInvalidStatus is returned by ListByStatus for a status outside the
// pending/completed pair.
var ErrInvalidStatus = errors.New("store: invalid task status")

// Task is one todo item owned by a user.
type Task struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Text      string    `json:"task"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the task is still open.
func (t Task) Pending() bool {
	return t.Status == StatusPending
}

// InsertTask stores a new pending task for userID and returns its id.
func (s *Store) InsertTask(ctx context.Context, userID int64, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyTask
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (user_id, task, status, created_at)
		VALUES (?, ?, ?, ?)
	`, userID, text, StatusPending, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert task id: %w", err)
	}
	return id, nil
}

// ListByStatus returns the user's tasks, most recent first. An empty status
// returns every task.
func (s *Store) ListByStatus(ctx context.Context, userID int64, status string) ([]Task, error) {
	query := `SELECT id, user_id, task, status, created_at FROM todos WHERE user_id = ?`
	args := []any{userID}
	switch status {
	case "":
	case StatusPending, StatusCompleted:
		query += ` AND status = ?`
		args = append(args, status)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Text, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tasks rows: %w", err)
	}
	return tasks, nil
}

// CompleteTask marks the task completed. It reports false when no task with
// that id belongs to userID.
func (s *Store) CompleteTask(ctx context.Context, taskID, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE todos SET status = ? WHERE id = ? AND user_id = ?`,
		StatusCompleted, taskID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("store: complete task %d: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: complete task %d: %w", taskID, err)
	}
	return n > 0, nil
}

// DeleteTask removes the task. It reports false when no task with that id
// belongs to userID.
func (s *Store) DeleteTask(ctx context.Context, taskID, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return false, fmt.Errorf("store: delete task %d: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete task %d: %w", taskID, err)
	}
	return n > 0, nil
}

// TaskCount returns the number of tasks across all users.
func (s *Store) TaskCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count tasks: %w", err)
	}
	return n, nil
}

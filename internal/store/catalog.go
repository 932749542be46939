package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Task is read-only catalog data supplied by the session-management
// collaborator: what kind of work a session was, and its base coin value.
type Task struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	TaskType string `json:"task_type"`
	BaseCoin int64  `json:"base_coin"`
	Active   bool   `json:"active"`
}

// Difficulty is read-only catalog data: the coefficient multiplier and a
// label used to detect challenge tiers ("hard", "extreme").
type Difficulty struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Coefficient float64 `json:"coefficient"`
	Active      bool    `json:"active"`
}

// UpsertTask inserts or replaces a catalog task.
func (db *DB) UpsertTask(ctx context.Context, t *Task) error {
	active := 0
	if t.Active {
		active = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, subject, task_type, base_coin, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name      = excluded.name,
			subject   = excluded.subject,
			task_type = excluded.task_type,
			base_coin = excluded.base_coin,
			active    = excluded.active
	`, t.ID, t.Name, t.Subject, t.TaskType, t.BaseCoin, active)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// GetTask returns a task by id, or nil if absent.
func (db *DB) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	var active int
	err := db.QueryRowContext(ctx,
		"SELECT id, name, subject, task_type, base_coin, active FROM tasks WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.TaskType, &t.BaseCoin, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	t.Active = active == 1
	return &t, nil
}

// UpsertDifficulty inserts or replaces a catalog difficulty.
func (db *DB) UpsertDifficulty(ctx context.Context, d *Difficulty) error {
	active := 0
	if d.Active {
		active = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO difficulties (id, label, coefficient, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label       = excluded.label,
			coefficient = excluded.coefficient,
			active      = excluded.active
	`, d.ID, d.Label, d.Coefficient, active)
	if err != nil {
		return fmt.Errorf("upsert difficulty: %w", err)
	}
	return nil
}

// GetDifficulty returns a difficulty by id, or nil if absent.
func (db *DB) GetDifficulty(ctx context.Context, id string) (*Difficulty, error) {
	var d Difficulty
	var active int
	err := db.QueryRowContext(ctx,
		"SELECT id, label, coefficient, active FROM difficulties WHERE id = ?", id,
	).Scan(&d.ID, &d.Label, &d.Coefficient, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get difficulty: %w", err)
	}
	d.Active = active == 1
	return &d, nil
}

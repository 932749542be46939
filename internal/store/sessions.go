package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DateLayout is the canonical session date format.
const DateLayout = "2006-01-02"

// Session is one completed learning session. Sessions are owned by the
// session-management collaborator; this engine records them at reward
// time and only ever reads them afterward.
type Session struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	TaskID         string `json:"task_id"`
	DifficultyID   string `json:"difficulty_id"`
	SessionDate    string `json:"session_date"` // YYYY-MM-DD
	FocusMinutes   int    `json:"focus_minutes"`
	ResultQuantity int    `json:"result_quantity"`
	TotalCoins     int64  `json:"total_coins"` // denormalized at creation, decay base
	CreatedAt      int64  `json:"created_at"`
}

// InsertSession stores a session row. TotalCoins must already hold the
// full award so decay can use it as its base.
func (db *DB) InsertSession(ctx context.Context, s *Session) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, task_id, difficulty_id, session_date, focus_minutes, result_quantity, total_coins, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.UserID, s.TaskID, s.DifficultyID, s.SessionDate, s.FocusMinutes, s.ResultQuantity, s.TotalCoins, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns a session by id, or nil if absent.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, task_id, difficulty_id, session_date, focus_minutes, result_quantity, total_coins, created_at
		FROM sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.UserID, &s.TaskID, &s.DifficultyID, &s.SessionDate, &s.FocusMinutes, &s.ResultQuantity, &s.TotalCoins, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// DistinctSessionDates returns the user's distinct session dates on or
// before the given date, newest first, capped at limit. The streak
// calculation walks this list backward day by day.
func (db *DB) DistinctSessionDates(ctx context.Context, userID, onOrBefore string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 366
	}
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT session_date FROM sessions
		WHERE user_id = ? AND session_date <= ?
		ORDER BY session_date DESC LIMIT ?
	`, userID, onOrBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("distinct session dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// CountSessionsOnDate returns how many sessions the user completed on the
// given date.
func (db *DB) CountSessionsOnDate(ctx context.Context, userID, date string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE user_id = ? AND session_date = ?",
		userID, date,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions on date: %w", err)
	}
	return n, nil
}

// HasSessionForTask reports whether the user has any completed session
// for the given task. Used by the first-attempt bonus.
func (db *DB) HasSessionForTask(ctx context.Context, userID, taskID string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE user_id = ? AND task_id = ? LIMIT 1",
		userID, taskID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check task sessions: %w", err)
	}
	return n > 0, nil
}

// DecayableSession is a session joined with the catalog fields decay
// rules scope against.
type DecayableSession struct {
	Session
	Subject  string
	TaskType string
}

// SessionsInWindow returns a user's sessions dated on or after `since`,
// oldest first, joined with task subject and type for rule scoping.
func (db *DB) SessionsInWindow(ctx context.Context, userID, since string) ([]DecayableSession, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.task_id, s.difficulty_id, s.session_date,
		       s.focus_minutes, s.result_quantity, s.total_coins, s.created_at,
		       COALESCE(t.subject, ''), COALESCE(t.task_type, '')
		FROM sessions s
		LEFT JOIN tasks t ON t.id = s.task_id
		WHERE s.user_id = ? AND s.session_date >= ?
		ORDER BY s.session_date ASC, s.id ASC
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("sessions in window: %w", err)
	}
	defer rows.Close()

	var out []DecayableSession
	for rows.Next() {
		var s DecayableSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.TaskID, &s.DifficultyID, &s.SessionDate,
			&s.FocusMinutes, &s.ResultQuantity, &s.TotalCoins, &s.CreatedAt,
			&s.Subject, &s.TaskType); err != nil {
			return nil, fmt.Errorf("scan decayable session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActiveUserIDs returns distinct user ids with at least one session dated
// on or after `since`, ordered by id, starting strictly after afterUserID.
// The ordering plus cursor makes checkpointed resumption deterministic.
func (db *DB) ActiveUserIDs(ctx context.Context, since, afterUserID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM sessions
		WHERE session_date >= ? AND user_id > ?
		ORDER BY user_id ASC LIMIT ?
	`, since, afterUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Checkpoint returns the last user id processed for the named cycle, or
// "" when the cycle starts fresh.
func (db *DB) Checkpoint(ctx context.Context, cycle string) (string, error) {
	var last string
	err := db.QueryRowContext(ctx,
		"SELECT last_user_id FROM decay_checkpoints WHERE cycle = ?", cycle,
	).Scan(&last)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get checkpoint: %w", err)
	}
	return last, nil
}

// SaveCheckpoint records the last user id processed for the named cycle.
// An empty id clears the checkpoint (cycle completed).
func (db *DB) SaveCheckpoint(ctx context.Context, cycle, lastUserID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO decay_checkpoints (cycle, last_user_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cycle) DO UPDATE SET
			last_user_id = excluded.last_user_id,
			updated_at   = excluded.updated_at
	`, cycle, lastUserID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

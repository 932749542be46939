package store

import (
	"context"
	"fmt"
)

// CountSessions returns the user's total completed session count.
func (db *DB) CountSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE user_id = ?", userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// EarnedCoins returns the sum of all positive deltas credited to the
// user (earned and bonus entries). Decay and spends do not subtract —
// this is lifetime earnings, not balance.
func (db *DB) EarnedCoins(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE user_id = ? AND change_kind IN ('earned', 'bonus') AND amount > 0
	`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("earned coins: %w", err)
	}
	return total, nil
}

// SubjectCoins returns the user's session coin totals grouped by the
// task's subject.
func (db *DB) SubjectCoins(ctx context.Context, userID string) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT COALESCE(t.subject, ''), COALESCE(SUM(s.total_coins), 0)
		FROM sessions s
		LEFT JOIN tasks t ON t.id = s.task_id
		WHERE s.user_id = ?
		GROUP BY t.subject
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("subject coins: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var subject string
		var coins int64
		if err := rows.Scan(&subject, &coins); err != nil {
			return nil, fmt.Errorf("scan subject coins: %w", err)
		}
		out[subject] = coins
	}
	return out, rows.Err()
}

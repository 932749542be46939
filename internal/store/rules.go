package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oakmund/sprout/internal/coinerr"
)

// DecayKind selects how a rule computes its amount.
type DecayKind string

const (
	DecayPercentage DecayKind = "percentage" // rate is a fraction of the session total
	DecayFixed      DecayKind = "fixed"      // rate is a flat coin amount
)

// RuleScope selects which sessions a rule applies to.
type RuleScope string

const (
	ScopeAll      RuleScope = "all"
	ScopeSubject  RuleScope = "subject"
	ScopeTaskType RuleScope = "task_type"
)

// DecayRule is admin-owned configuration describing when and how much
// previously earned coins decay.
type DecayRule struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ThresholdDays int       `json:"threshold_days"`
	DecayRate     float64   `json:"decay_rate"`
	DecayKind     DecayKind `json:"decay_kind"`
	Scope         RuleScope `json:"scope"`
	ScopeValue    string    `json:"scope_value,omitempty"`
	Priority      int       `json:"priority"`
	Active        bool      `json:"active"`
	Urgent        bool      `json:"urgent"` // fast-lane scheduling
	NextRunAt     int64     `json:"next_run_at"`
	CreatedAt     int64     `json:"created_at"`
	UpdatedAt     int64     `json:"updated_at"`
}

// Matches reports whether the rule's scope covers a session with the
// given subject and task type.
func (r *DecayRule) Matches(subject, taskType string) bool {
	switch r.Scope {
	case ScopeAll:
		return true
	case ScopeSubject:
		return r.ScopeValue == subject
	case ScopeTaskType:
		return r.ScopeValue == taskType
	}
	return false
}

// Validate checks the rule's enums and ranges.
func (r *DecayRule) Validate() error {
	if r.Name == "" {
		return coinerr.Validation("rule name is required")
	}
	if r.ThresholdDays < 1 {
		return coinerr.Validation("threshold_days must be >= 1, got %d", r.ThresholdDays)
	}
	switch r.DecayKind {
	case DecayPercentage:
		if r.DecayRate <= 0 || r.DecayRate > 1 {
			return coinerr.Validation("percentage decay_rate must be in (0, 1], got %g", r.DecayRate)
		}
	case DecayFixed:
		if r.DecayRate < 1 {
			return coinerr.Validation("fixed decay_rate must be >= 1, got %g", r.DecayRate)
		}
	default:
		return coinerr.Validation("unknown decay_kind %q", r.DecayKind)
	}
	switch r.Scope {
	case ScopeAll:
		if r.ScopeValue != "" {
			return coinerr.Validation("scope all takes no scope_value")
		}
	case ScopeSubject, ScopeTaskType:
		if r.ScopeValue == "" {
			return coinerr.Validation("scope %s requires a scope_value", r.Scope)
		}
	default:
		return coinerr.Validation("unknown scope %q", r.Scope)
	}
	return nil
}

// CreateRule stores a new decay rule. The ID is generated when empty.
func (db *DB) CreateRule(ctx context.Context, r *DecayRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := db.ExecContext(ctx, `
		INSERT INTO decay_rules
			(id, name, threshold_days, decay_rate, decay_kind, scope, scope_value, priority, active, urgent, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.ThresholdDays, r.DecayRate, string(r.DecayKind), string(r.Scope), r.ScopeValue,
		r.Priority, boolInt(r.Active), boolInt(r.Urgent), r.NextRunAt, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

// GetRule returns a rule by id, or nil if absent.
func (db *DB) GetRule(ctx context.Context, id string) (*DecayRule, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, threshold_days, decay_rate, decay_kind, scope, scope_value, priority, active, urgent, next_run_at, created_at, updated_at
		FROM decay_rules WHERE id = ?
	`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRules returns rules ordered by descending priority. When activeOnly
// is set, inactive rules are filtered out.
func (db *DB) ListRules(ctx context.Context, activeOnly bool) ([]DecayRule, error) {
	query := `
		SELECT id, name, threshold_days, decay_rate, decay_kind, scope, scope_value, priority, active, urgent, next_run_at, created_at, updated_at
		FROM decay_rules`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY priority DESC, created_at ASC"

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []DecayRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRule replaces a rule's mutable fields. Returns NotFound when the
// rule does not exist.
func (db *DB) UpdateRule(ctx context.Context, r *DecayRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UnixMilli()

	res, err := db.ExecContext(ctx, `
		UPDATE decay_rules SET
			name = ?, threshold_days = ?, decay_rate = ?, decay_kind = ?, scope = ?, scope_value = ?,
			priority = ?, active = ?, urgent = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?
	`, r.Name, r.ThresholdDays, r.DecayRate, string(r.DecayKind), string(r.Scope), r.ScopeValue,
		r.Priority, boolInt(r.Active), boolInt(r.Urgent), r.NextRunAt, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n == 0 {
		return coinerr.NotFound("rule", r.ID)
	}
	return nil
}

// DeleteRule removes a rule. Ledger entries it produced stay — the ledger
// is append-only regardless of rule lifecycle.
func (db *DB) DeleteRule(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM decay_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n == 0 {
		return coinerr.NotFound("rule", id)
	}
	return nil
}

// SetRuleNextRun persists a rule's next scheduled run time.
func (db *DB) SetRuleNextRun(ctx context.Context, id string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		"UPDATE decay_rules SET next_run_at = ? WHERE id = ?", at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set rule next run: %w", err)
	}
	return nil
}

func scanRule(row rowScanner) (*DecayRule, error) {
	var r DecayRule
	var kind, scope string
	var active, urgent int
	err := row.Scan(&r.ID, &r.Name, &r.ThresholdDays, &r.DecayRate, &kind, &scope, &r.ScopeValue,
		&r.Priority, &active, &urgent, &r.NextRunAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.DecayKind = DecayKind(kind)
	r.Scope = RuleScope(scope)
	r.Active = active == 1
	r.Urgent = urgent == 1
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

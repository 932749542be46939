package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "ledger_entries + user_balances: append-only coin ledger",
		SQL: `
CREATE TABLE ledger_entries (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    amount         INTEGER NOT NULL,
    balance_after  INTEGER NOT NULL,
    change_kind    TEXT NOT NULL CHECK (change_kind IN ('earned', 'decayed', 'redeemed', 'bonus', 'penalty')),
    source_kind    TEXT NOT NULL,
    reference_id   TEXT,
    description    TEXT NOT NULL DEFAULT '',
    metadata       TEXT NOT NULL DEFAULT '{}',
    created_at     INTEGER NOT NULL
);

CREATE INDEX idx_ledger_user_created  ON ledger_entries(user_id, created_at DESC);
CREATE INDEX idx_ledger_user_kind     ON ledger_entries(user_id, change_kind);
CREATE INDEX idx_ledger_user_kind_ref ON ledger_entries(user_id, change_kind, reference_id);

CREATE TABLE user_balances (
    user_id    TEXT PRIMARY KEY,
    balance    INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "sessions + tasks + difficulties: learning activity and catalog",
		SQL: `
CREATE TABLE sessions (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    task_id         TEXT NOT NULL,
    difficulty_id   TEXT NOT NULL,
    session_date    TEXT NOT NULL,
    focus_minutes   INTEGER NOT NULL DEFAULT 0,
    result_quantity INTEGER NOT NULL DEFAULT 0,
    total_coins     INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL
);

CREATE INDEX idx_sessions_user_date ON sessions(user_id, session_date DESC);
CREATE INDEX idx_sessions_user_task ON sessions(user_id, task_id);

CREATE TABLE tasks (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL,
    subject   TEXT NOT NULL,
    task_type TEXT NOT NULL,
    base_coin INTEGER NOT NULL DEFAULT 1,
    active    INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE difficulties (
    id          TEXT PRIMARY KEY,
    label       TEXT NOT NULL,
    coefficient REAL NOT NULL DEFAULT 1.0,
    active      INTEGER NOT NULL DEFAULT 1
);
`,
	},
	{
		Version:     3,
		Description: "decay_rules + decay_marks + decay_checkpoints: decay engine state",
		SQL: `
CREATE TABLE decay_rules (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    threshold_days INTEGER NOT NULL,
    decay_rate     REAL NOT NULL,
    decay_kind     TEXT NOT NULL CHECK (decay_kind IN ('percentage', 'fixed')),
    scope          TEXT NOT NULL CHECK (scope IN ('all', 'subject', 'task_type')),
    scope_value    TEXT NOT NULL DEFAULT '',
    priority       INTEGER NOT NULL DEFAULT 0,
    active         INTEGER NOT NULL DEFAULT 1,
    urgent         INTEGER NOT NULL DEFAULT 0,
    next_run_at    INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX idx_rules_active ON decay_rules(active, priority DESC);

CREATE TABLE decay_marks (
    session_id TEXT NOT NULL,
    rule_id    TEXT NOT NULL,
    entry_id   TEXT NOT NULL,
    marked_at  INTEGER NOT NULL,
    PRIMARY KEY (session_id, rule_id)
);

CREATE TABLE decay_checkpoints (
    cycle        TEXT PRIMARY KEY,
    last_user_id TEXT NOT NULL DEFAULT '',
    updated_at   INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/oakmund/sprout/internal/coinerr"
)

// ChangeKind classifies why a ledger entry changed the balance.
type ChangeKind string

const (
	ChangeEarned   ChangeKind = "earned"
	ChangeDecayed  ChangeKind = "decayed"
	ChangeRedeemed ChangeKind = "redeemed"
	ChangeBonus    ChangeKind = "bonus"
	ChangePenalty  ChangeKind = "penalty"
)

// ValidChangeKind reports whether k is one of the known change kinds.
func ValidChangeKind(k ChangeKind) bool {
	switch k {
	case ChangeEarned, ChangeDecayed, ChangeRedeemed, ChangeBonus, ChangePenalty:
		return true
	}
	return false
}

// spendKind reports whether entries of this kind are explicit debits that
// must not drive the balance negative. Decay is excluded: its amount is
// capped at the session total by construction.
func spendKind(k ChangeKind) bool {
	return k == ChangeRedeemed || k == ChangePenalty
}

// Entry is one immutable row in the coin ledger. Entries are never
// updated or deleted; corrections are new entries with the opposite sign.
type Entry struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Amount       int64             `json:"amount"`
	BalanceAfter int64             `json:"balance_after"`
	ChangeKind   ChangeKind        `json:"change_kind"`
	SourceKind   string            `json:"source_kind"`
	ReferenceID  string            `json:"reference_id,omitempty"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    int64             `json:"created_at"` // unix millis
}

// AppendInput carries the caller-supplied fields of one ledger entry.
type AppendInput struct {
	UserID      string
	Amount      int64
	ChangeKind  ChangeKind
	SourceKind  string
	ReferenceID string
	Description string
	Metadata    map[string]string
}

func (in *AppendInput) validate() error {
	if in.UserID == "" {
		return coinerr.Validation("user_id is required")
	}
	if !ValidChangeKind(in.ChangeKind) {
		return coinerr.Validation("unknown change_kind %q", in.ChangeKind)
	}
	if in.SourceKind == "" {
		return coinerr.Validation("source_kind is required")
	}
	if in.Amount == 0 {
		return coinerr.Validation("amount must be non-zero")
	}
	return nil
}

// HistoryFilter narrows a History query. Zero values mean "no filter".
type HistoryFilter struct {
	Limit      int
	Offset     int
	Start      time.Time
	End        time.Time
	ChangeKind ChangeKind
}

// entryEntropy is shared across calls so IDs minted in the same
// millisecond still sort in mint order. History breaks created_at ties on
// id, so this ordering is what keeps the balance trail replayable.
// MonotonicEntropy is not safe for concurrent use, hence the lock.
var (
	entryEntropyMu sync.Mutex
	entryEntropy   = ulid.Monotonic(rand.Reader, 0)
)

func newEntryID() string {
	entryEntropyMu.Lock()
	defer entryEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entryEntropy).String()
}

// Append records one signed coin delta for a user and returns the created
// entry. The balance bump and the entry insert happen in one transaction
// against the dedicated user_balances row, so concurrent writers cannot
// lose each other's deltas.
func (db *DB) Append(ctx context.Context, in AppendInput) (*Entry, error) {
	entries, err := db.AppendAll(ctx, []AppendInput{in})
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// AppendAll records several entries atomically. All entries land or none
// do — a reward's earned/bonus pair cannot be torn by a crash between
// writes. Entries may target different users.
func (db *DB) AppendAll(ctx context.Context, ins []AppendInput) ([]Entry, error) {
	if len(ins) == 0 {
		return nil, coinerr.Validation("no entries to append")
	}
	for i := range ins {
		if err := ins[i].validate(); err != nil {
			return nil, err
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	entries := make([]Entry, 0, len(ins))
	for i := range ins {
		e, err := appendOne(tx, &ins[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return entries, nil
}

func appendOne(tx *sql.Tx, in *AppendInput) (*Entry, error) {
	now := time.Now().UnixMilli()

	var newBalance int64
	err := tx.QueryRow(`
		INSERT INTO user_balances (user_id, balance, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance    = balance + excluded.balance,
			updated_at = excluded.updated_at
		RETURNING balance
	`, in.UserID, in.Amount, now).Scan(&newBalance)
	if err != nil {
		return nil, fmt.Errorf("bump balance for %s: %w", in.UserID, err)
	}

	if newBalance < 0 && spendKind(in.ChangeKind) {
		return nil, coinerr.InsufficientBalance(in.UserID, newBalance-in.Amount, -in.Amount)
	}

	meta := in.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	e := &Entry{
		ID:           newEntryID(),
		UserID:       in.UserID,
		Amount:       in.Amount,
		BalanceAfter: newBalance,
		ChangeKind:   in.ChangeKind,
		SourceKind:   in.SourceKind,
		ReferenceID:  in.ReferenceID,
		Description:  in.Description,
		Metadata:     meta,
		CreatedAt:    now,
	}

	var refID any
	if e.ReferenceID != "" {
		refID = e.ReferenceID
	}
	_, err = tx.Exec(`
		INSERT INTO ledger_entries
			(id, user_id, amount, balance_after, change_kind, source_kind, reference_id, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Amount, e.BalanceAfter, string(e.ChangeKind), e.SourceKind, refID, e.Description, string(metaJSON), e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

// CurrentBalance returns the user's balance, or 0 if they have no entries.
func (db *DB) CurrentBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := db.QueryRowContext(ctx,
		"SELECT balance FROM user_balances WHERE user_id = ?", userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("current balance: %w", err)
	}
	return balance, nil
}

// History returns a user's entries newest first, plus the total count of
// entries matching the filter (for pagination).
func (db *DB) History(ctx context.Context, userID string, f HistoryFilter) ([]Entry, int, error) {
	where := "WHERE user_id = ?"
	args := []any{userID}

	if f.ChangeKind != "" {
		if !ValidChangeKind(f.ChangeKind) {
			return nil, 0, coinerr.Validation("unknown change_kind %q", f.ChangeKind)
		}
		where += " AND change_kind = ?"
		args = append(args, string(f.ChangeKind))
	}
	if !f.Start.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, f.Start.UnixMilli())
	}
	if !f.End.IsZero() {
		where += " AND created_at <= ?"
		args = append(args, f.End.UnixMilli())
	}

	var total int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, amount, balance_after, change_kind, source_kind, reference_id, description, metadata, created_at
		FROM ledger_entries ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

// RecordReward stores a session row and its ledger entries in one
// transaction. Either the session and every entry land, or nothing does.
func (db *DB) RecordReward(ctx context.Context, s *Session, ins []AppendInput) ([]Entry, error) {
	if len(ins) == 0 {
		return nil, coinerr.Validation("no entries to append")
	}
	for i := range ins {
		if err := ins[i].validate(); err != nil {
			return nil, err
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin record reward: %w", err)
	}
	defer tx.Rollback()

	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().UnixMilli()
	}
	if _, err := tx.Exec(`
		INSERT INTO sessions (id, user_id, task_id, difficulty_id, session_date, focus_minutes, result_quantity, total_coins, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.UserID, s.TaskID, s.DifficultyID, s.SessionDate, s.FocusMinutes, s.ResultQuantity, s.TotalCoins, s.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	entries := make([]Entry, 0, len(ins))
	for i := range ins {
		e, err := appendOne(tx, &ins[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record reward: %w", err)
	}
	return entries, nil
}

// HasDecayEntry reports whether a decayed entry already exists for the
// given session under the given rule. The probe consults decay_marks,
// the composite idempotency key written alongside each decay entry.
func (db *DB) HasDecayEntry(ctx context.Context, sessionID, ruleID string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM decay_marks WHERE session_id = ? AND rule_id = ?",
		sessionID, ruleID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check decay mark: %w", err)
	}
	return n > 0, nil
}

// AppendDecay records a decay entry and its idempotency mark in one
// transaction. If a mark for (session, rule) already exists the call is a
// no-op and returns nil, nil — repeated cycles are safe.
func (db *DB) AppendDecay(ctx context.Context, in AppendInput, sessionID, ruleID string) (*Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.ChangeKind != ChangeDecayed {
		return nil, coinerr.Validation("decay entries must use change_kind decayed")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin decay append: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM decay_marks WHERE session_id = ? AND rule_id = ?",
		sessionID, ruleID,
	).Scan(&n); err != nil {
		return nil, fmt.Errorf("check decay mark: %w", err)
	}
	if n > 0 {
		return nil, nil
	}

	e, err := appendOne(tx, &in)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`
		INSERT INTO decay_marks (session_id, rule_id, entry_id, marked_at)
		VALUES (?, ?, ?, ?)
	`, sessionID, ruleID, e.ID, e.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert decay mark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decay append: %w", err)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var refID sql.NullString
	var metaJSON string
	var kind string
	err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.BalanceAfter, &kind, &e.SourceKind, &refID, &e.Description, &metaJSON, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.ChangeKind = ChangeKind(kind)
	e.ReferenceID = refID.String
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

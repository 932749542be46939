// Package decay implements the scheduled rule engine that reduces
// previously earned coins over time. Each (session, rule) pair decays at
// most once, enforced by a composite mark written atomically with the
// ledger entry, so repeated cycles are safe.
package decay

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/oakmund/sprout/internal/config"
	"github.com/oakmund/sprout/internal/metrics"
	"github.com/oakmund/sprout/internal/store"
)

// batchPause is how long a cycle yields between user batches so long
// sweeps don't starve interactive traffic on the shared connection.
const batchPause = 50 * time.Millisecond

// Engine applies decay rules to eligible sessions.
type Engine struct {
	db  *store.DB
	cfg config.DecayConfig

	// now is swappable for tests.
	now func() time.Time
}

// New creates an Engine.
func New(db *store.DB, cfg config.DecayConfig) *Engine {
	return &Engine{db: db, cfg: cfg, now: time.Now}
}

// CycleStats summarizes one cycle run.
type CycleStats struct {
	Mode           string `json:"mode"`
	UsersProcessed int    `json:"users_processed"`
	EntriesWritten int    `json:"entries_written"`
	CoinsDecayed   int64  `json:"coins_decayed"`
	Failures       int    `json:"failures"`
	Resumed        bool   `json:"resumed"`
	Completed      bool   `json:"completed"`
}

// RunCycle sweeps every active rule over every user with recent
// activity. Failures on one (user, rule, session) triple are logged and
// skipped. If the cycle's soft deadline passes, the checkpoint is saved
// and the sweep resumes on the next tick.
func (e *Engine) RunCycle(ctx context.Context) (*CycleStats, error) {
	rules, err := e.db.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return e.runRules(ctx, "full", rules, "")
}

// RunUrgent sweeps only urgent-flagged rules: the fast lane for pushing
// a high-priority policy change through immediately without re-scanning
// the full rule set.
func (e *Engine) RunUrgent(ctx context.Context) (*CycleStats, error) {
	rules, err := e.db.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	urgent := rules[:0:0]
	for _, r := range rules {
		if r.Urgent {
			urgent = append(urgent, r)
		}
	}
	if len(urgent) == 0 {
		return &CycleStats{Mode: "urgent", Completed: true}, nil
	}
	return e.runRules(ctx, "urgent", urgent, "")
}

// TriggerManually runs a cycle immediately, scoped to one user when
// userID is non-empty. Intended for administrative use; errors surface
// synchronously.
func (e *Engine) TriggerManually(ctx context.Context, userID string) (*CycleStats, error) {
	rules, err := e.db.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return e.runRules(ctx, "manual", rules, userID)
}

// RunRules sweeps a specific rule subset across all users. The scheduler
// uses this to run exactly the rules whose next-run deadline passed.
func (e *Engine) RunRules(ctx context.Context, rules []store.DecayRule, mode string) (*CycleStats, error) {
	return e.runRules(ctx, mode, rules, "")
}

func (e *Engine) runRules(ctx context.Context, mode string, rules []store.DecayRule, onlyUser string) (*CycleStats, error) {
	start := e.now()
	stats := &CycleStats{Mode: mode}
	defer func() {
		metrics.DecayCycles.WithLabelValues(mode).Inc()
		metrics.CycleDuration.Observe(e.now().Sub(start).Seconds())
	}()

	if len(rules) == 0 {
		stats.Completed = true
		return stats, nil
	}

	window := e.cfg.RecentWindowDays
	if window <= 0 {
		window = 90
	}
	since := start.AddDate(0, 0, -window).Format(store.DateLayout)

	deadline := start.Add(time.Duration(e.cfg.CycleTimeoutMinutes) * time.Minute)
	if e.cfg.CycleTimeoutMinutes <= 0 {
		deadline = start.Add(30 * time.Minute)
	}

	if onlyUser != "" {
		if err := e.processUser(ctx, onlyUser, rules, since, stats); err != nil {
			return stats, err
		}
		stats.UsersProcessed = 1
		stats.Completed = true
		log.Printf("decay: %s cycle for %s wrote %d entries (-%d coins)", mode, onlyUser, stats.EntriesWritten, stats.CoinsDecayed)
		return stats, nil
	}

	// Manual all-user runs always start from the top; scheduled cycles
	// resume from the checkpoint a timed-out predecessor left behind.
	cursor := ""
	if mode != "manual" {
		var err error
		cursor, err = e.db.Checkpoint(ctx, mode)
		if err != nil {
			return stats, err
		}
		stats.Resumed = cursor != ""
	}

	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	for {
		users, err := e.db.ActiveUserIDs(ctx, since, cursor, batchSize)
		if err != nil {
			return stats, err
		}
		for _, user := range users {
			if err := e.processUser(ctx, user, rules, since, stats); err != nil {
				// processUser only fails on context cancellation; per-triple
				// errors are absorbed inside.
				e.saveCheckpoint(mode, cursor)
				return stats, err
			}
			stats.UsersProcessed++
			cursor = user
		}
		if len(users) < batchSize {
			break
		}
		if e.now().After(deadline) {
			e.saveCheckpoint(mode, cursor)
			log.Printf("decay: %s cycle hit soft deadline after %d users, will resume at %q", mode, stats.UsersProcessed, cursor)
			return stats, nil
		}
		select {
		case <-ctx.Done():
			e.saveCheckpoint(mode, cursor)
			return stats, ctx.Err()
		case <-time.After(batchPause):
		}
	}

	if mode != "manual" {
		e.saveCheckpoint(mode, "")
	}
	stats.Completed = true
	log.Printf("decay: %s cycle processed %d users, wrote %d entries (-%d coins, %d failures)",
		mode, stats.UsersProcessed, stats.EntriesWritten, stats.CoinsDecayed, stats.Failures)
	return stats, nil
}

func (e *Engine) saveCheckpoint(mode, cursor string) {
	// Checkpoint writes use a background context: a canceled cycle must
	// still record where it stopped.
	if err := e.db.SaveCheckpoint(context.Background(), mode, cursor); err != nil {
		log.Printf("decay: save checkpoint: %v", err)
	}
}

// processUser applies every rule to the user's recent sessions. Failures
// are counted and logged, never propagated, except context cancellation.
func (e *Engine) processUser(ctx context.Context, userID string, rules []store.DecayRule, since string, stats *CycleStats) error {
	sessions, err := e.db.SessionsInWindow(ctx, userID, since)
	if err != nil {
		log.Printf("decay: load sessions for %s: %v", userID, err)
		stats.Failures++
		metrics.DecayFailures.Inc()
		return nil
	}

	today := e.now()
	for _, rule := range rules {
		for i := range sessions {
			if err := ctx.Err(); err != nil {
				return err
			}
			s := &sessions[i]
			if !rule.Matches(s.Subject, s.TaskType) {
				continue
			}
			if ageInDays(s.SessionDate, today) < rule.ThresholdDays {
				continue
			}
			amount := decayAmount(&rule, s.TotalCoins)
			if amount <= 0 {
				continue
			}

			entry, err := e.db.AppendDecay(ctx, store.AppendInput{
				UserID:      userID,
				Amount:      -amount,
				ChangeKind:  store.ChangeDecayed,
				SourceKind:  "session_decay",
				ReferenceID: s.ID,
				Description: fmt.Sprintf("decay: %s", rule.Name),
				Metadata: map[string]string{
					"rule_id":   rule.ID,
					"rule_name": rule.Name,
				},
			}, s.ID, rule.ID)
			if err != nil {
				log.Printf("decay: user %s rule %s session %s: %v", userID, rule.ID, s.ID, err)
				stats.Failures++
				metrics.DecayFailures.Inc()
				continue
			}
			if entry == nil {
				continue // already decayed under this rule
			}
			stats.EntriesWritten++
			stats.CoinsDecayed += amount
			metrics.EntriesAppended.WithLabelValues(string(store.ChangeDecayed)).Inc()
			metrics.CoinsDecayed.Add(float64(amount))
		}
	}
	return nil
}

// decayAmount computes what a rule takes from a session, capped at the
// session's total so a session can never decay below zero net.
func decayAmount(rule *store.DecayRule, totalCoins int64) int64 {
	if totalCoins <= 0 {
		return 0
	}
	var amount int64
	switch rule.DecayKind {
	case store.DecayPercentage:
		amount = int64(math.Floor(float64(totalCoins) * rule.DecayRate))
	case store.DecayFixed:
		amount = int64(rule.DecayRate)
	}
	if amount > totalCoins {
		amount = totalCoins
	}
	return amount
}

// ageInDays returns whole calendar days between the session date and now.
func ageInDays(sessionDate string, now time.Time) int {
	d, err := time.ParseInLocation(store.DateLayout, sessionDate, now.Location())
	if err != nil {
		return 0
	}
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return int(nowDay.Sub(d).Hours() / 24)
}

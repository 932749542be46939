package decay

import (
	"context"
	"fmt"

	"github.com/oakmund/sprout/internal/coinerr"
	"github.com/oakmund/sprout/internal/store"
)

// DayProjection is the simulated decay for one future date.
type DayProjection struct {
	Date     string `json:"date"`
	Amount   int64  `json:"amount"`
	Sessions int    `json:"sessions"` // count of sessions decaying that day
}

// Predict simulates the next horizonDays of decay cycles for one user
// without writing anything. It honors the same one-way (session, rule)
// transition as the real cycle: pairs already decayed are excluded, and
// a pair counted on one projected day is not counted again on a later
// day. Two consecutive calls with no intervening ledger mutation return
// identical results.
func (e *Engine) Predict(ctx context.Context, userID string, horizonDays int) ([]DayProjection, error) {
	if userID == "" {
		return nil, coinerr.Validation("user_id is required")
	}
	if horizonDays < 1 || horizonDays > 365 {
		return nil, coinerr.Validation("horizon_days %d out of range [1, 365]", horizonDays)
	}

	rules, err := e.db.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	now := e.now()
	window := e.cfg.RecentWindowDays
	if window <= 0 {
		window = 90
	}
	since := now.AddDate(0, 0, -window).Format(store.DateLayout)
	sessions, err := e.db.SessionsInWindow(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	type pair struct{ sessionID, ruleID string }
	simulated := make(map[pair]bool)

	projections := make([]DayProjection, 0, horizonDays)
	for offset := 1; offset <= horizonDays; offset++ {
		day := now.AddDate(0, 0, offset)
		proj := DayProjection{Date: day.Format(store.DateLayout)}
		daySessions := make(map[string]bool)

		for _, rule := range rules {
			for i := range sessions {
				s := &sessions[i]
				if !rule.Matches(s.Subject, s.TaskType) {
					continue
				}
				if ageInDays(s.SessionDate, day) < rule.ThresholdDays {
					continue
				}
				p := pair{s.ID, rule.ID}
				if simulated[p] {
					continue
				}

				decayed, err := e.db.HasDecayEntry(ctx, s.ID, rule.ID)
				if err != nil {
					return nil, fmt.Errorf("check decay mark: %w", err)
				}
				if decayed {
					simulated[p] = true
					continue
				}

				amount := decayAmount(&rule, s.TotalCoins)
				if amount <= 0 {
					simulated[p] = true
					continue
				}

				simulated[p] = true
				proj.Amount += amount
				if !daySessions[s.ID] {
					daySessions[s.ID] = true
					proj.Sessions++
				}
			}
		}
		projections = append(projections, proj)
	}
	return projections, nil
}

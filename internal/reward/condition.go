package reward

import (
	"context"
	"fmt"
	"time"

	"github.com/oakmund/sprout/internal/coinerr"
	"github.com/oakmund/sprout/internal/store"
)

// UserStats is a point-in-time snapshot of the figures achievement-style
// checks care about.
type UserStats struct {
	SessionCount int              `json:"session_count"`
	CoinsEarned  int64            `json:"coins_earned"` // lifetime credits, decay ignored
	Streak       int              `json:"streak"`
	SubjectCoins map[string]int64 `json:"subject_coins"`
	Balance      int64            `json:"balance"`
}

// Condition is one closed, typed condition variant evaluated against a
// UserStats snapshot. The set is deliberately closed — no free-form
// expression evaluation.
type Condition interface {
	Met(s *UserStats) bool
	String() string
}

// SessionCountAtLeast passes when the user completed at least N sessions.
type SessionCountAtLeast int

func (c SessionCountAtLeast) Met(s *UserStats) bool { return s.SessionCount >= int(c) }
func (c SessionCountAtLeast) String() string        { return fmt.Sprintf("session_count >= %d", int(c)) }

// CoinsEarnedAtLeast passes when lifetime earned coins reach N.
type CoinsEarnedAtLeast int64

func (c CoinsEarnedAtLeast) Met(s *UserStats) bool { return s.CoinsEarned >= int64(c) }
func (c CoinsEarnedAtLeast) String() string        { return fmt.Sprintf("coins_earned >= %d", int64(c)) }

// StreakAtLeast passes when the current streak reaches N days.
type StreakAtLeast int

func (c StreakAtLeast) Met(s *UserStats) bool { return s.Streak >= int(c) }
func (c StreakAtLeast) String() string        { return fmt.Sprintf("streak >= %d", int(c)) }

// SubjectCoinsAtLeast passes when coins earned in one subject reach N.
type SubjectCoinsAtLeast struct {
	Subject string
	Coins   int64
}

func (c SubjectCoinsAtLeast) Met(s *UserStats) bool { return s.SubjectCoins[c.Subject] >= c.Coins }
func (c SubjectCoinsAtLeast) String() string {
	return fmt.Sprintf("subject_coins[%s] >= %d", c.Subject, c.Coins)
}

// BalanceAtLeast passes when the current balance reaches N.
type BalanceAtLeast int64

func (c BalanceAtLeast) Met(s *UserStats) bool { return s.Balance >= int64(c) }
func (c BalanceAtLeast) String() string        { return fmt.Sprintf("balance >= %d", int64(c)) }

// Stats builds a UserStats snapshot as of the given date.
func (c *Calculator) Stats(ctx context.Context, userID string, asOf time.Time) (*UserStats, error) {
	count, err := c.db.CountSessions(ctx, userID)
	if err != nil {
		return nil, coinerr.Internal("session count", err)
	}
	earned, err := c.db.EarnedCoins(ctx, userID)
	if err != nil {
		return nil, coinerr.Internal("earned coins", err)
	}
	streak := 0
	if count > 0 {
		// Stats describes recorded history only, so the "pending session"
		// the streak walk assumes must be an actual session on asOf.
		s, err := c.Streak(ctx, userID, asOf)
		if err != nil {
			return nil, coinerr.Internal("streak", err)
		}
		n, err := c.db.CountSessionsOnDate(ctx, userID, asOf.Format(store.DateLayout))
		if err != nil {
			return nil, coinerr.Internal("streak", err)
		}
		if n == 0 {
			s--
		}
		streak = s
	}
	subjects, err := c.db.SubjectCoins(ctx, userID)
	if err != nil {
		return nil, coinerr.Internal("subject coins", err)
	}
	balance, err := c.db.CurrentBalance(ctx, userID)
	if err != nil {
		return nil, coinerr.Internal("balance", err)
	}

	return &UserStats{
		SessionCount: count,
		CoinsEarned:  earned,
		Streak:       streak,
		SubjectCoins: subjects,
		Balance:      balance,
	}, nil
}

// Evaluate runs every condition against one snapshot and returns the
// ones that passed.
func Evaluate(stats *UserStats, conds []Condition) []Condition {
	var met []Condition
	for _, c := range conds {
		if c.Met(stats) {
			met = append(met, c)
		}
	}
	return met
}

package reward

import (
	"context"
	"strings"
	"time"

	"github.com/oakmund/sprout/internal/coinerr"
	"github.com/oakmund/sprout/internal/store"
)

// Bonus amounts. Each rule is evaluated independently; order never
// affects the outcome.
const (
	streakLongBonus   = 10 // streak >= 7 days
	streakShortBonus  = 5  // streak >= 3 days
	streakLongDays    = 7
	streakShortDays   = 3
	firstAttemptBonus = 5
	extremeBonus      = 8
	hardBonus         = 3
	dailyGoalBonus    = 15
	dailyGoalSessions = 3 // the Nth session of the day triggers it
	weekendBonus      = 2
)

// evaluateBonuses runs the five bonus rules. The session being calculated
// is not yet stored, so each rule counts it explicitly where relevant.
func (c *Calculator) evaluateBonuses(ctx context.Context, userID string, task *store.Task, diff *store.Difficulty, sessionDate time.Time) ([]BonusItem, error) {
	date := sessionDate.Format(store.DateLayout)

	streak, err := c.Streak(ctx, userID, sessionDate)
	if err != nil {
		return nil, coinerr.Internal("streak bonus", err)
	}

	hasPrior, err := c.db.HasSessionForTask(ctx, userID, task.ID)
	if err != nil {
		return nil, coinerr.Internal("first-attempt bonus", err)
	}

	todayCount, err := c.db.CountSessionsOnDate(ctx, userID, date)
	if err != nil {
		return nil, coinerr.Internal("daily-goal bonus", err)
	}

	items := []BonusItem{
		{Name: "streak", Coins: streakCoins(streak)},
		{Name: "first_attempt", Coins: firstAttemptCoins(!hasPrior)},
		{Name: "challenge", Coins: challengeCoins(diff.Label)},
		{Name: "daily_goal", Coins: dailyGoalCoins(todayCount + 1)},
		{Name: "weekend", Coins: weekendCoins(sessionDate)},
	}
	return items, nil
}

func streakCoins(days int) int64 {
	switch {
	case days >= streakLongDays:
		return streakLongBonus
	case days >= streakShortDays:
		return streakShortBonus
	}
	return 0
}

func firstAttemptCoins(first bool) int64 {
	if first {
		return firstAttemptBonus
	}
	return 0
}

func challengeCoins(label string) int64 {
	switch strings.ToLower(label) {
	case "extreme":
		return extremeBonus
	case "hard":
		return hardBonus
	}
	return 0
}

// dailyGoalCoins pays when nth (1-based, including the session being
// calculated) reaches the daily goal.
func dailyGoalCoins(nth int) int64 {
	if nth >= dailyGoalSessions {
		return dailyGoalBonus
	}
	return 0
}

func weekendCoins(d time.Time) int64 {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return weekendBonus
	}
	return 0
}

// Streak returns the user's consecutive-day streak ending at sessionDate,
// counting the session being calculated as activity on that date. It
// walks the user's distinct session dates backward one calendar day at a
// time until the chain breaks.
func (c *Calculator) Streak(ctx context.Context, userID string, sessionDate time.Time) (int, error) {
	date := sessionDate.Format(store.DateLayout)
	dates, err := c.db.DistinctSessionDates(ctx, userID, date, 366)
	if err != nil {
		return 0, err
	}

	streak := 1 // the session being calculated
	expect := sessionDate.AddDate(0, 0, -1)
	for _, d := range dates {
		if d == date {
			continue // same-day sessions don't extend the streak
		}
		if d != expect.Format(store.DateLayout) {
			break
		}
		streak++
		expect = expect.AddDate(0, 0, -1)
	}
	return streak, nil
}

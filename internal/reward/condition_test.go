package reward

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmund/sprout/internal/store"
)

func TestConditionVariants(t *testing.T) {
	stats := &UserStats{
		SessionCount: 12,
		CoinsEarned:  350,
		Streak:       5,
		SubjectCoins: map[string]int64{"math": 200, "history": 30},
		Balance:      290,
	}

	cases := []struct {
		cond Condition
		want bool
	}{
		{SessionCountAtLeast(10), true},
		{SessionCountAtLeast(13), false},
		{CoinsEarnedAtLeast(350), true},
		{CoinsEarnedAtLeast(351), false},
		{StreakAtLeast(5), true},
		{StreakAtLeast(6), false},
		{SubjectCoinsAtLeast{"math", 150}, true},
		{SubjectCoinsAtLeast{"history", 50}, false},
		{SubjectCoinsAtLeast{"art", 1}, false},
		{BalanceAtLeast(290), true},
		{BalanceAtLeast(291), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.cond.Met(stats), tc.cond.String())
	}
}

func TestEvaluateReturnsMetConditions(t *testing.T) {
	stats := &UserStats{SessionCount: 5, Streak: 3}
	met := Evaluate(stats, []Condition{
		SessionCountAtLeast(3),
		StreakAtLeast(7),
		BalanceAtLeast(1),
	})
	require.Len(t, met, 1)
	assert.Equal(t, "session_count >= 3", met[0].String())
}

func TestStatsSnapshot(t *testing.T) {
	calc, _ := testCalc(t)
	ctx := context.Background()

	// Two recorded rewards on consecutive days.
	for i := 1; i >= 0; i-- {
		day := tuesday.AddDate(0, 0, -i)
		res, err := calc.Calculate(ctx, "u1", "t-math", "d-normal", 60, 10, day)
		require.NoError(t, err)
		_, _, err = calc.Record(ctx, res)
		require.NoError(t, err)
	}

	stats, err := calc.Stats(ctx, "u1", tuesday)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.SessionCount)
	assert.Equal(t, 2, stats.Streak)
	assert.Positive(t, stats.CoinsEarned)
	assert.Equal(t, stats.CoinsEarned, stats.Balance) // nothing decayed yet
	assert.Positive(t, stats.SubjectCoins["math"])
}

func TestStatsDecayLowersBalanceNotEarnings(t *testing.T) {
	calc, db := testCalc(t)
	ctx := context.Background()

	res, err := calc.Calculate(ctx, "u1", "t-math", "d-normal", 60, 10, tuesday)
	require.NoError(t, err)
	_, _, err = calc.Record(ctx, res)
	require.NoError(t, err)

	_, err = db.Append(ctx, store.AppendInput{
		UserID: "u1", Amount: -20, ChangeKind: store.ChangeDecayed, SourceKind: "session_decay",
	})
	require.NoError(t, err)

	stats, err := calc.Stats(ctx, "u1", tuesday)
	require.NoError(t, err)
	assert.Equal(t, res.Total(), stats.CoinsEarned)
	assert.Equal(t, res.Total()-20, stats.Balance)
}

func TestStatsEmptyUser(t *testing.T) {
	calc, _ := testCalc(t)

	stats, err := calc.Stats(context.Background(), "ghost", time.Now())
	require.NoError(t, err)
	assert.Zero(t, stats.SessionCount)
	assert.Zero(t, stats.Streak)
	assert.Zero(t, stats.Balance)
}

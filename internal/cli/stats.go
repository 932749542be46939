package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oakmund/sprout/internal/reward"
)

// milestones are the built-in achievement checks the stats command
// reports on.
var milestones = []struct {
	Name string
	Cond reward.Condition
}{
	{"getting started", reward.SessionCountAtLeast(10)},
	{"regular", reward.SessionCountAtLeast(100)},
	{"collector", reward.CoinsEarnedAtLeast(1000)},
	{"hoarder", reward.BalanceAtLeast(500)},
	{"week streak", reward.StreakAtLeast(7)},
	{"month streak", reward.StreakAtLeast(30)},
}

var statsCmd = &cobra.Command{
	Use:   "stats [user]",
	Short: "Show a user's session and coin statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		calc := reward.New(db)
		stats, err := calc.Stats(context.Background(), args[0], time.Now())
		if err != nil {
			return err
		}

		fmt.Printf("sessions: %d\n", stats.SessionCount)
		fmt.Printf("earned:   %d coins lifetime\n", stats.CoinsEarned)
		fmt.Printf("balance:  %d coins\n", stats.Balance)
		fmt.Printf("streak:   %d days\n", stats.Streak)
		for subject, coins := range stats.SubjectCoins {
			fmt.Printf("  %s: %d coins\n", subject, coins)
		}

		for _, m := range milestones {
			mark := " "
			if m.Cond.Met(stats) {
				mark = "x"
			}
			fmt.Printf("[%s] %-16s %s\n", mark, m.Name, m.Cond)
		}
		return nil
	},
}

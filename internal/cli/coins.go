package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oakmund/sprout/internal/reward"
	"github.com/oakmund/sprout/internal/store"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [user]",
	Short: "Show a user's coin balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		bal, err := db.CurrentBalance(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d coins\n", args[0], bal)
		return nil
	},
}

var (
	historyLimit int
	historyKind  string
)

var historyCmd = &cobra.Command{
	Use:   "history [user]",
	Short: "Show a user's ledger history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	entries, total, err := db.History(context.Background(), args[0], store.HistoryFilter{
		Limit:      historyLimit,
		ChangeKind: store.ChangeKind(historyKind),
	})
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No entries.")
		return nil
	}

	for _, e := range entries {
		ts := time.UnixMilli(e.CreatedAt).Format("2006-01-02 15:04")
		desc := e.Description
		if desc == "" {
			desc = e.SourceKind
		}
		fmt.Printf("%s  %+6d  %6d  [%s] %s\n", ts, e.Amount, e.BalanceAfter, e.ChangeKind, desc)
	}
	if total > len(entries) {
		fmt.Printf("(%d of %d entries)\n", len(entries), total)
	}
	return nil
}

var (
	awardTask       string
	awardDifficulty string
	awardFocus      int
	awardResult     int
	awardDate       string
	awardDryRun     bool
)

var awardCmd = &cobra.Command{
	Use:   "award [user]",
	Short: "Calculate and record the reward for a learning session",
	Args:  cobra.ExactArgs(1),
	RunE:  runAward,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
	historyCmd.Flags().StringVarP(&historyKind, "kind", "k", "", "Filter by change kind (earned, decayed, redeemed, bonus, penalty)")

	awardCmd.Flags().StringVarP(&awardTask, "task", "t", "", "Task id (required)")
	awardCmd.Flags().StringVarP(&awardDifficulty, "difficulty", "d", "", "Difficulty id (required)")
	awardCmd.Flags().IntVarP(&awardFocus, "focus", "f", 0, "Focused minutes")
	awardCmd.Flags().IntVarP(&awardResult, "result", "r", 0, "Result quantity")
	awardCmd.Flags().StringVar(&awardDate, "date", "", "Session date YYYY-MM-DD (default today)")
	awardCmd.Flags().BoolVar(&awardDryRun, "dry-run", false, "Calculate only, write nothing")
	awardCmd.MarkFlagRequired("task")
	awardCmd.MarkFlagRequired("difficulty")
}

func runAward(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	date := time.Now()
	if awardDate != "" {
		date, err = time.ParseInLocation(store.DateLayout, awardDate, time.Local)
		if err != nil {
			return fmt.Errorf("date %q: want YYYY-MM-DD", awardDate)
		}
	}

	calc := reward.New(db)
	ctx := context.Background()

	res, err := calc.Calculate(ctx, args[0], awardTask, awardDifficulty, awardFocus, awardResult, date)
	if err != nil {
		return err
	}

	fmt.Printf("focus:  %d\n", res.FocusCoins)
	fmt.Printf("result: %d\n", res.ResultCoins)
	for _, b := range res.Bonuses {
		fmt.Printf("bonus:  %d (%s)\n", b.Coins, b.Name)
	}
	fmt.Printf("total:  %d\n", res.Total())

	if awardDryRun {
		return nil
	}

	sessionID, _, err := calc.Record(ctx, res)
	if err != nil {
		return err
	}
	fmt.Printf("recorded session %s\n", sessionID)
	return nil
}

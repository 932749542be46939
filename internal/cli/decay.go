package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oakmund/sprout/internal/config"
	"github.com/oakmund/sprout/internal/decay"
)

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run or preview coin decay",
}

var (
	decayRunUser   string
	decayRunUrgent bool
)

var decayRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a decay cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		engine := decay.New(db, config.Default().Decay)

		var stats *decay.CycleStats
		if decayRunUrgent {
			if decayRunUser != "" {
				return fmt.Errorf("--urgent sweeps all users; drop --user")
			}
			stats, err = engine.RunUrgent(context.Background())
		} else {
			stats, err = engine.TriggerManually(context.Background(), decayRunUser)
		}
		if err != nil {
			return err
		}

		fmt.Printf("processed %d users, wrote %d entries (-%d coins, %d failures)\n",
			stats.UsersProcessed, stats.EntriesWritten, stats.CoinsDecayed, stats.Failures)
		return nil
	},
}

var predictDays int

var decayPredictCmd = &cobra.Command{
	Use:   "predict [user]",
	Short: "Preview upcoming decay for a user without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		engine := decay.New(db, config.Default().Decay)
		proj, err := engine.Predict(context.Background(), args[0], predictDays)
		if err != nil {
			return err
		}

		var total int64
		for _, day := range proj {
			total += day.Amount
			if day.Amount == 0 {
				continue
			}
			fmt.Printf("%s  -%d coins  (%d sessions)\n", day.Date, day.Amount, day.Sessions)
		}
		if total == 0 {
			fmt.Printf("no decay expected in the next %d days\n", predictDays)
			return nil
		}
		fmt.Printf("total: -%d coins over %d days\n", total, predictDays)
		return nil
	},
}

func init() {
	decayRunCmd.Flags().StringVarP(&decayRunUser, "user", "u", "", "Limit the run to one user")
	decayRunCmd.Flags().BoolVar(&decayRunUrgent, "urgent", false, "Sweep urgent-flagged rules only")
	decayPredictCmd.Flags().IntVarP(&predictDays, "days", "n", 7, "Projection horizon in days")

	decayCmd.AddCommand(decayRunCmd)
	decayCmd.AddCommand(decayPredictCmd)
}

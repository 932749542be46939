package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oakmund/sprout/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "sprout",
	Short: "Growth coin engine for learning sessions",
	Long:  "Sprout turns learning sessions into coins: an append-only ledger, a multi-factor reward calculator, and scheduled decay so idle coins fade. Single Go binary backed by SQLite.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(awardCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(rulesCmd)
}

// openDB is a helper that opens the database for CLI commands.
func openDB() (*store.DB, error) {
	dbPath := os.Getenv("SPROUT_DB")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(dbPath)
}

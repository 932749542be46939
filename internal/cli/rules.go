package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oakmund/sprout/internal/store"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage decay rules",
}

var rulesListAll bool

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decay rules by descending priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		rules, err := db.ListRules(context.Background(), !rulesListAll)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			fmt.Println("No rules.")
			return nil
		}

		for _, r := range rules {
			state := "active"
			if !r.Active {
				state = "inactive"
			}
			lane := ""
			if r.Urgent {
				lane = " urgent"
			}
			scope := string(r.Scope)
			if r.ScopeValue != "" {
				scope += "=" + r.ScopeValue
			}
			fmt.Printf("%s  %-20s  %3dd  %s %.2f  %-16s  p%d  %s%s\n",
				r.ID, r.Name, r.ThresholdDays, r.DecayKind, r.DecayRate, scope, r.Priority, state, lane)
		}
		return nil
	},
}

var (
	ruleThreshold  int
	ruleRate       float64
	ruleKind       string
	ruleScope      string
	ruleScopeValue string
	rulePriority   int
	ruleUrgent     bool
)

var rulesAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a decay rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		rule := store.DecayRule{
			Name:          args[0],
			ThresholdDays: ruleThreshold,
			DecayRate:     ruleRate,
			DecayKind:     store.DecayKind(ruleKind),
			Scope:         store.RuleScope(ruleScope),
			ScopeValue:    ruleScopeValue,
			Priority:      rulePriority,
			Urgent:        ruleUrgent,
			Active:        true,
		}
		if err := db.CreateRule(context.Background(), &rule); err != nil {
			return err
		}
		fmt.Printf("created rule %s\n", rule.ID)
		return nil
	},
}

var rulesRmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Delete a decay rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		if err := db.DeleteRule(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil
	},
}

func init() {
	rulesListCmd.Flags().BoolVarP(&rulesListAll, "all", "a", false, "Include inactive rules")

	rulesAddCmd.Flags().IntVar(&ruleThreshold, "threshold", 30, "Session age in days before decay applies")
	rulesAddCmd.Flags().Float64Var(&ruleRate, "rate", 0.1, "Decay rate: fraction for percentage, coins for fixed")
	rulesAddCmd.Flags().StringVar(&ruleKind, "kind", "percentage", "Decay kind: percentage or fixed")
	rulesAddCmd.Flags().StringVar(&ruleScope, "scope", "all", "Rule scope: all, subject or task_type")
	rulesAddCmd.Flags().StringVar(&ruleScopeValue, "scope-value", "", "Subject or task type the scope matches")
	rulesAddCmd.Flags().IntVar(&rulePriority, "priority", 0, "Application order, highest first")
	rulesAddCmd.Flags().BoolVar(&ruleUrgent, "urgent", false, "Schedule on the fast hourly lane")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesRmCmd)
}

package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carpenike/fitcoach/internal/models"
)

var checkFix bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that each user has at most one active plan per category",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *sql.DB) error {
			conflicts, err := models.ListActivePlanConflicts(db)
			if err != nil {
				return err
			}
			for _, c := range conflicts {
				fmt.Fprintf(cmd.OutOrStdout(), "user %d: %d active %s plans\n", c.UserID, c.Active, c.Category)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active plan conflicts: %d\n", len(conflicts))

			if checkFix && len(conflicts) > 0 {
				n, err := models.RepairActivePlans(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deactivated superseded plans: %d\n", n)
				// Re-check after fixes so exit status reflects final state.
				conflicts, err = models.ListActivePlanConflicts(db)
				if err != nil {
					return err
				}
			}
			if len(conflicts) > 0 {
				return fmt.Errorf("check found %d active plan conflict(s); rerun with --fix", len(conflicts))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkFix, "fix", false, "Keep only the newest active plan of each category")
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carpenike/fitcoach/internal/llm"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/notify"
	"github.com/carpenike/fitcoach/internal/planner"
)

var (
	generateUser     string
	generateCategory string
	generatePrefs    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate and activate a plan for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(generateUser) == "" {
			return fmt.Errorf("--user is required")
		}
		return withDB(func(db *sql.DB) error {
			u, err := lookupUser(db, generateUser)
			if err != nil {
				return err
			}

			completer, err := llm.NewCompleterFromSettings(db)
			if err != nil {
				return fmt.Errorf("plan generation is not configured: %w", err)
			}

			notifier := notify.NewBroadcaster(db, nil)
			defer notifier.Wait()

			o := &planner.Orchestrator{
				Profiles:  models.ProfileStore{DB: db},
				Completer: completer,
				Store:     models.PlanStore{DB: db},
				Notifier:  notifier,
			}
			p, err := o.Generate(context.Background(), u.ID, generatePrefs, generateCategory)
			if err != nil {
				return fmt.Errorf("%s (%w)", planner.UserMessage(err).Text, err)
			}

			days := 0
			if c, err := p.Decode(); err == nil {
				days = c.DayCount()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Activated %s plan %d: %s (%d days)\n", p.Category, p.ID, p.Title, days)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&generateUser, "user", "", "Username to generate for")
	generateCmd.Flags().StringVar(&generateCategory, "category", "workout", "Plan category [workout | nutrition]")
	generateCmd.Flags().StringVar(&generatePrefs, "prefs", "", "Free-text preferences; blank uses the goal default")
}

package main

import (
	"database/sql"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/carpenike/fitcoach/internal/models"
)

var (
	userPassword string
	userEmail    string
	userAdmin    bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userPassword == "" {
			return fmt.Errorf("--password is required")
		}
		return withDB(func(db *sql.DB) error {
			u, err := models.CreateUser(db, args[0], userPassword, userEmail, userAdmin)
			if errors.Is(err, models.ErrDuplicateUsername) {
				return fmt.Errorf("user %q already exists", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id=%d)\n", u.Username, u.ID)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *sql.DB) error {
			users, err := models.ListUsers(db)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tADMIN")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%t\n", u.ID, u.Username, u.IsAdmin)
			}
			return w.Flush()
		})
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Reset an account password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userPassword == "" {
			return fmt.Errorf("--password is required")
		}
		return withDB(func(db *sql.DB) error {
			u, err := models.GetUserByUsername(db, args[0])
			if errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("user %q not found", args[0])
			}
			if err != nil {
				return err
			}
			if err := models.UpdatePassword(db, u.ID, userPassword); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s\n", u.Username)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userListCmd, userPasswdCmd)

	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Account password")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Account email")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant admin rights")
	userPasswdCmd.Flags().StringVar(&userPassword, "password", "", "New password")
}

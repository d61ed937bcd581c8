package main

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(*sql.DB) error {
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready: %s\n", filepath.Clean(cfg.DBPath))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

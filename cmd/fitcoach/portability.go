package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carpenike/fitcoach/internal/importers"
	"github.com/carpenike/fitcoach/internal/models"
)

var (
	portUser   string
	portFormat string
	portFrom   string
	portTo     string
	portOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's profile, plans and daily logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *sql.DB) error {
			u, err := lookupUser(db, portUser)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if portOut != "" {
				f, err := os.Create(portOut)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			switch portFormat {
			case "json":
				export, err := models.BuildExportJSON(db, u.ID)
				if err != nil {
					return err
				}
				return models.WriteExportJSON(out, export)
			case "csv":
				return models.WriteExportLogCSV(out, db, u.ID, portFrom, portTo)
			default:
				return fmt.Errorf("unknown format %q (expected json or csv)", portFormat)
			}
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a FitCoach JSON export or daily log CSV for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		pf, err := importers.Parse(data)
		if err != nil {
			return err
		}
		return withDB(func(db *sql.DB) error {
			u, err := lookupUser(db, portUser)
			if err != nil {
				return err
			}
			res, err := models.ExecuteImport(db, u.ID, pf)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Profile imported: %t\n", res.ProfileImported)
			fmt.Fprintf(w, "Plans imported: %d (activated %d)\n", res.PlansImported, res.PlansActivated)
			fmt.Fprintf(w, "Daily logs imported: %d (replaced %d)\n", res.LogsImported, res.LogsReplaced)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)

	exportCmd.Flags().StringVar(&portUser, "user", "", "Username to export")
	exportCmd.Flags().StringVar(&portFormat, "format", "json", "Export format [json | csv]")
	exportCmd.Flags().StringVar(&portFrom, "from", "0001-01-01", "First day for csv exports (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&portTo, "to", "9999-12-31", "Last day for csv exports (YYYY-MM-DD)")
	exportCmd.Flags().StringVarP(&portOut, "output", "o", "", "Write to file instead of stdout")
	importCmd.Flags().StringVar(&portUser, "user", "", "Username to import into")
}

func lookupUser(db *sql.DB, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("--user is required")
	}
	u, err := models.GetUserByUsername(db, username)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("user %q not found", username)
	}
	return u, err
}


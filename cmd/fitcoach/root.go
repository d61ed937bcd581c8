package main

import (
	"database/sql"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/carpenike/fitcoach/internal/config"
	"github.com/carpenike/fitcoach/internal/database"
	"github.com/carpenike/fitcoach/internal/logging"
	"github.com/carpenike/fitcoach/internal/models"
)

var (
	envName    string
	configPath string
	dbPath     string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "fitcoach",
	Short:        "fitcoach generates AI workout and meal plans and tracks what you ate",
	Long:         "fitcoach serves the plan generation API and ships maintenance commands for its SQLite database.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(envName, configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			c.DBPath = dbPath
		}
		logging.Setup(logging.LoggerSetupParams{
			LogFileName:   c.LogsPath,
			LogToStdout:   c.LogToStdout,
			LogLevel:      c.LogLevel,
			LogFormatJSON: c.LogJSON,
			Environment:   c.Environment,
		})
		cfg = c
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "development", "environment [dev | development | prod | production]")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.toml", "path for the TOML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database (overrides config)")
}

// withDB opens the configured database, applies migrations and makes sure
// the settings encryption key is available before calling run.
func withDB(run func(*sql.DB) error) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return err
	}
	_, source, err := models.GetOrCreateSecretKey(db)
	if err != nil {
		return err
	}
	log.Debugf("settings encryption key from %s", source)
	return run(db)
}

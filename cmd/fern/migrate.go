package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/platform/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, syncLogs, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer syncLogs()

		db, err := database.Connect(cmd.Context(), postgresConfig(cfg), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrate(cfg, db, logger); err != nil {
			return err
		}
		logger.Info("Migrations applied")
		return nil
	},
}

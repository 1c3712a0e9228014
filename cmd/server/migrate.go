package main

import (
	"github.com/spf13/cobra"

	"github.com/reelsched/api/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := db.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()

		applied, err := db.Migrate(cmd.Context(), conn, cfg.Database.Driver)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			logger.Info().Msg("schema is up to date")
			return nil
		}
		logger.Info().Strs("versions", applied).Msg("migrations applied")
		return nil
	},
}

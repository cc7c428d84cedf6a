package cli

import (
	"github.com/spf13/cobra"

	"chatmakere/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := db.Connect(cmd.Context(), cfg.Database.DSN, db.Options{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.Migrate(cmd.Context(), database); err != nil {
			return err
		}
		logger.Info().Msg("migrations applied")
		return nil
	},
}

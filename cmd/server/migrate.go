package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			if err := database.Migrate(cmd.Context(), cfg.Database.URL); err != nil {
				slog.Error("migration failed", "error", err)
				return err
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}

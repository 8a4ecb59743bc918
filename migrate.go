package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prayer-push-go/internal/config"
	"prayer-push-go/internal/logger"
	"prayer-push-go/internal/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the push tables in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.New(cfg.LogLevel)
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			pg, err := store.NewPostgresStore(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := pg.RunMigrations(cmd.Context()); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			log.Info("Database migrations completed")
			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/Priya8975/campaign-mailer/internal/config"
	"github.com/Priya8975/campaign-mailer/internal/store"
	"github.com/spf13/cobra"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding *.up.sql files")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != "postgres" {
		return fmt.Errorf("migrate needs STORE_BACKEND=postgres, got %s", cfg.StoreBackend)
	}
	logger := newLogger(cfg.LogLevel)

	ctx := context.Background()
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return err
	}
	defer pg.Close()

	applied, err := pg.RunMigrations(ctx, migrationsDir)
	if err != nil {
		return err
	}
	logger.Info("database migrations applied", "count", len(applied), "versions", applied)
	return nil
}

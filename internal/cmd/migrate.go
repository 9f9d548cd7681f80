package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/antigravity/feed-gateway/internal/logger"
	"github.com/antigravity/feed-gateway/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the gateway tables",
	Long: `Auto-migrate the key, whitelist, settings, audit and notification tables.
Intended for development databases; production schemas are owned by the
key-management surface.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Database.ConnectTimeout+time.Minute)
	defer cancel()

	db, err := storage.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := storage.Migrate(db.WithContext(ctx)); err != nil {
		return err
	}
	log.Info("Migration complete", zap.String("driver", cfg.Database.Driver))
	return nil
}

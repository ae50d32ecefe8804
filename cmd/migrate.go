package cmd

import (
	"fmt"
	"log/slog"

	"github.com/websters/query-api/db"
	"github.com/websters/query-api/internal/config"
)

// runMigrate applies pending database migrations and exits. serve runs
// migrations on startup too; this command exists for deploy pipelines
// that migrate before rolling instances.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("migrations applied", "database", cfg.PostgresDBName)
	return nil
}

package main

// Apply the intake schema, or report the applied version with -status:
//   go run ./cmd/migrate [-status] [-timeout 2m]

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/storage/db"
	"intake-backend/internal/shared/telemetry"
)

func main() {
	statusOnly := flag.Bool("status", false, "print the applied schema version and exit")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline for the migration run")
	flag.Parse()

	cfg := config.Load()
	telemetry.Init(cfg.LogLevel)
	defer telemetry.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg.DatabaseURL, *statusOnly); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		telemetry.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, statusOnly bool) error {
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	sqlDB, err := db.Connect(ctx, databaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	before, err := db.SchemaVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	if statusOnly {
		telemetry.Info("migrate.status", map[string]any{"version": before})
		return nil
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return err
	}
	after, err := db.SchemaVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	telemetry.Info("migrate.completed", map[string]any{"from": before, "to": after})
	return nil
}

// cmd/seeder/main.go
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ArafathHabib/telegpbuyer2/internal/config"
	"github.com/ArafathHabib/telegpbuyer2/internal/db"
	"github.com/ArafathHabib/telegpbuyer2/internal/logging"
)

var seedFiles = []string{
	"users.sql",
	"campaigns.sql",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	database, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		logger.WithError(err).Fatal("schema migration failed")
	}
	logger.Info("schema applied")

	dir := os.Getenv("SEED_DIR")
	if dir == "" {
		dir = "seed"
	}
	for _, file := range seedFiles {
		path := filepath.Join(dir, file)
		content, err := os.ReadFile(path)
		if err != nil {
			logger.WithError(err).Fatalf("failed to read %s", path)
		}
		if _, err := database.ExecContext(ctx, string(content)); err != nil {
			logger.WithError(err).Fatalf("failed to execute %s", path)
		}
		logger.WithField("file", path).Info("seeded")
	}

	logger.Info("Database seeding completed successfully!")
}

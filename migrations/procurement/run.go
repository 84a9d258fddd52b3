package main

import (
	"context"
	"embed"
	"log/slog"
	"os"

	"github.com/ghuser/procureflow/pkg/config"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/pkg/migrator"
)

//go:embed *.sql
var MigrationsFS embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg)
	if err := migrator.RunMigrations(context.Background(), cfg.DatabaseURL, MigrationsFS, log); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}
}

// Command wasm-engine runs the deployment job engine: the HTTP API, the job
// workers and the reaper, as selected by SERVICES.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Perkybeet/wasm/config"
	"github.com/Perkybeet/wasm/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // fatal startup error
	}

	logger := bootstrap.InitLogger(cfg.LogLevel, cfg.IsDev)
	if err := run(ctx, logger, &cfg); err != nil {
		logger.ErrorContext(ctx, "engine stopped with error", "error", err)
		os.Exit(1) //nolint:forbidigo // fatal runtime error
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) error {
	if err := bootstrap.ValidateServiceConfig(cfg); err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting deployment engine",
		"services", bootstrap.GetEnabledServices(cfg),
		"db_driver", cfg.Database.Driver,
		"apps_dir", cfg.Paths.AppsDir,
		"backup_dir", cfg.Paths.BackupDir,
		"workers", cfg.Engine.Workers,
		"redis", cfg.Redis.Enabled)

	storeCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Database, RedisConfig: cfg.Redis, Logger: logger}
	db, dialect, err := bootstrap.OpenDatabase(ctx, storeCfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer closeLogged(ctx, logger, "database", db)

	deps := &bootstrap.ServiceDeps{Config: cfg, DB: db, Dialect: dialect, Logger: logger}
	// Without Redis, progress notifications stay in-process.
	if cfg.Redis.Enabled {
		client, err := bootstrap.ConnectRedis(ctx, storeCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer closeLogged(ctx, logger, "redis", client)
		deps.RedisClient = client
	}

	if cfg.Database.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, db, dialect, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping migrations on startup", "reason", "DB_RUN_MIGRATIONS_ON_START=false")
	}

	services, err := bootstrap.NewServices(deps)
	if err != nil {
		return err
	}
	err = bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   cfg,
		Services: services,
		Logger:   logger,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func closeLogged(ctx context.Context, logger *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.ErrorContext(ctx, "close failed", "resource", what, "error", err)
	}
}

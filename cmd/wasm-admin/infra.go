package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Perkybeet/wasm/internal/bootstrap"
	"github.com/Perkybeet/wasm/internal/data"
)

// engine holds the store connection and the services built on it.
type engine struct {
	DB       *sql.DB
	Dialect  data.Dialect
	Services bootstrap.ServiceContainer
}

// openEngine connects to the configured store and wires the engine's
// services. Redis is not needed for maintenance commands.
func openEngine(ctx context.Context, cmdCtx *commandContext) (*engine, error) {
	db, dialect, err := bootstrap.OpenDatabase(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Database,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	svcs, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:  &cmdCtx.Config,
		DB:      db,
		Dialect: dialect,
		Logger:  cmdCtx.Logger,
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close db: %w", closeErr))
		}
		return nil, err
	}

	return &engine{DB: db, Dialect: dialect, Services: svcs}, nil
}

func (e *engine) Close() error {
	if e == nil {
		return nil
	}
	e.Services.Hub.Close()
	if err := e.DB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// withEngine opens the engine for the duration of fn.
func withEngine(ctx context.Context, cmdCtx *commandContext, fn func(*engine) error) error {
	eng, err := openEngine(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("close engine failed", "error", closeErr)
		}
	}()
	return fn(eng)
}

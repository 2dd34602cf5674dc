// Package reaper runs job table maintenance as a background service.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Perkybeet/wasm/config"
	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/data"
	"github.com/Perkybeet/wasm/internal/observability/statsd"
	"github.com/Perkybeet/wasm/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner. Either DB or
// Repo must be set; Repo wins when both are.
type RunnerOptions struct {
	DB      *sql.DB
	Dialect data.Dialect
	Repo    core.ReaperRepository

	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner drives service.ReaperService for the "reaper" service mode.
type Runner struct {
	svc    *service.ReaperService
	logger *slog.Logger
}

// NewRunner builds the store-backed reaper.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		if opts.DB == nil {
			return nil, errors.New("reaper needs a database or a repository")
		}
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Dialect: opts.Dialect, Logger: logger})
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repo,
		Config:  opts.Config,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("reaper service: %w", err)
	}
	return &Runner{svc: svc, logger: logger}, nil
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "reaper runner started")
	defer r.logger.InfoContext(ctx, "reaper runner stopped")
	return r.svc.Run(ctx)
}

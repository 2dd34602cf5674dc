package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Perkybeet/wasm/config"
	"github.com/Perkybeet/wasm/internal/adapters/gitsync"
	"github.com/Perkybeet/wasm/internal/adapters/host"
	"github.com/Perkybeet/wasm/internal/adapters/jobrunner"
	"github.com/Perkybeet/wasm/internal/adapters/reaper"
	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/data"
	"github.com/Perkybeet/wasm/internal/observability/statsd"
	"github.com/Perkybeet/wasm/internal/security"
	"github.com/Perkybeet/wasm/internal/service"
	"github.com/Perkybeet/wasm/internal/service/failurenotifier"
	"github.com/Perkybeet/wasm/internal/service/pipeline"
)

// hostAdapters groups the host collaborators the pipeline drives.
type hostAdapters struct {
	Source   *gitsync.Syncer
	Renderer *host.TemplateRenderer
	Services *host.Systemd
	Proxy    *host.Nginx
	Certs    *host.Certbot
	Builder  *host.BuildRunner
	Health   *host.HTTPHealthChecker
}

// buildHostAdapters wires git, systemd, nginx, certbot and the build tools.
func buildHostAdapters(cfg *config.AppConfig, logger *slog.Logger) (*hostAdapters, error) {
	renderer, err := host.NewTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("load config templates: %w", err)
	}
	cmd := host.ExecCommander{}

	var archiveHosts *security.Allowlist
	if len(cfg.Engine.ArchiveHosts) > 0 {
		archiveHosts = security.NewAllowlist(nil, cfg.Engine.ArchiveHosts)
	}

	return &hostAdapters{
		Source: gitsync.NewSyncer(gitsync.Options{
			Runner:        &gitsync.ExecRunner{Timeout: cfg.Engine.StageTimeout},
			Logger:        logger,
			PreserveGlobs: cfg.Backup.PreserveGlobs,
			ArchiveHosts:  archiveHosts,
		}),
		Renderer: renderer,
		Services: host.NewSystemd(cmd, cfg.Paths.SystemdDir, logger),
		Proxy: host.NewNginx(cmd, host.NginxOptions{
			AvailableDir: cfg.Paths.NginxAvailableDir,
			EnabledDir:   cfg.Paths.NginxEnabledDir,
			Logger:       logger,
		}),
		Certs:   host.NewCertbot(cmd, cfg.Paths.CertbotEmail, cfg.Paths.CertbotLiveDir),
		Builder: host.NewBuildRunner(cmd, host.BuildRunnerOptions{Logger: logger}),
		Health:  host.NewHTTPHealthChecker(nil),
	}, nil
}

// PipelineDeps groups dependencies for the deployment pipeline.
type PipelineDeps struct {
	Config  *config.AppConfig
	Jobs    core.JobRepository
	Apps    core.ApplicationRepository
	Backups *service.BackupService
	Host    *hostAdapters
	Hub     *service.ProgressHub
	Metrics statsd.Sink
	Logger  *slog.Logger
}

func newPipeline(d PipelineDeps) *pipeline.Pipeline {
	engine := d.Config.Engine
	return pipeline.New(pipeline.Options{
		Jobs:     d.Jobs,
		Apps:     d.Apps,
		Source:   d.Host.Source,
		Backups:  d.Backups,
		Renderer: d.Host.Renderer,
		Services: d.Host.Services,
		Proxy:    d.Host.Proxy,
		Certs:    d.Host.Certs,
		Builder:  d.Host.Builder,
		Health:   d.Host.Health,
		Progress: d.Hub,
		Metrics:  d.Metrics,
		Logger:   d.Logger,
		Config: pipeline.Config{
			AppsDir:           d.Config.Paths.AppsDir,
			StageTimeout:      engine.StageTimeout,
			BuildTimeout:      engine.BuildTimeout,
			VerifyRetries:     engine.VerifyRetries,
			VerifyBackoffBase: engine.VerifyBackoffBase,
			VerifyBackoffMax:  engine.VerifyBackoffMax,
			VerifyTimeout:     engine.VerifyTimeout,
			OOMExitCodes:      engine.OOMExitCodes,
			ServiceUser:       engine.ServiceUser,
			HealthHost:        engine.HealthHost,
		},
	})
}

// WorkersConfig contains configuration for the job worker pool.
type WorkersConfig struct {
	Jobs            core.JobRepository
	Executor        jobrunner.Executor
	Hub             *service.ProgressHub
	FailureNotifier *failurenotifier.Service
	Logger          *slog.Logger
	Metrics         statsd.Sink
	Lease           time.Duration
	Concurrency     int
	PollInterval    time.Duration
}

// RunWorkers starts the worker pool and blocks until ctx ends.
func RunWorkers(ctx context.Context, cfg WorkersConfig) error {
	opts := jobrunner.RunnerOptions{
		Jobs:         cfg.Jobs,
		Executor:     cfg.Executor,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
		Lease:        cfg.Lease,
		Concurrency:  cfg.Concurrency,
		PollInterval: cfg.PollInterval,
	}
	if cfg.Hub != nil {
		opts.Waker = cfg.Hub
	}
	if cfg.FailureNotifier != nil {
		opts.Failures = cfg.FailureNotifier
	}
	runner, err := jobrunner.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create job runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Dialect data.Dialect
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Dialect: cfg.Dialect,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}

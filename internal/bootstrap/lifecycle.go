package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Perkybeet/wasm/config"
)

// shutdownWaitTimeout bounds how long services get to stop once the process
// has been asked to exit.
const shutdownWaitTimeout = 15 * time.Second

// ServiceOrchestrationConfig is what RunServicesWithShutdown needs to run the
// modes selected by SERVICES.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// component is one long-running part of the process. run must return once
// its context ends.
type component struct {
	mode config.ServiceMode
	run  func(context.Context) error
}

// RunServicesWithShutdown blocks until SIGINT or SIGTERM arrives or one of the
// enabled services fails, then stops the others and releases shared clients.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	if err := ValidateServiceConfig(cfg.Config); err != nil {
		return err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := runComponents(ctx, logger, enabledComponents(cfg, logger), shutdownWaitTimeout)

	if hub := cfg.Services.Hub; hub != nil {
		hub.Close()
	}
	if cerr := cfg.Services.Observability.Statsd.Close(); cerr != nil {
		logger.Warn("statsd close failed", "error", cerr)
	}
	return err
}

// enabledComponents lists the services to run in SERVICES order.
func enabledComponents(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []component {
	app, svcs := cfg.Config, cfg.Services
	var out []component

	if app.IsHTTPServerEnabled() {
		out = append(out, component{mode: config.ServiceModeHTTP, run: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", app.HTTP.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", app.HTTP.Addr, err)
			}
			srv := newHTTPServer(ctx, app.HTTP, svcs, logger)
			return serveHTTP(ctx, srv, ln, app.HTTP.ShutdownTimeout, logger)
		}})
	}

	if app.IsWorkersEnabled() {
		out = append(out, component{mode: config.ServiceModeWorkers, run: func(ctx context.Context) error {
			// Trees left half-swapped by a crash are put back before any job runs.
			if _, err := svcs.Backups.RecoverApplications(ctx); err != nil {
				logger.ErrorContext(ctx, "application recovery failed", "error", err)
			}
			return RunWorkers(ctx, WorkersConfig{
				Jobs:            svcs.Repos.Jobs,
				Executor:        svcs.Pipeline,
				Hub:             svcs.Hub,
				FailureNotifier: svcs.Observability.FailureNotifier,
				Logger:          logger,
				Metrics:         svcs.Observability.Metrics,
				Lease:           app.Engine.Lease,
				Concurrency:     app.Engine.Workers,
				PollInterval:    app.Engine.PollInterval,
			})
		}})
	}

	if app.IsReaperEnabled() {
		out = append(out, component{mode: config.ServiceModeReaper, run: func(ctx context.Context) error {
			return RunReaper(ctx, ReaperConfig{
				DB:      svcs.Repos.DB,
				Dialect: svcs.Repos.Dialect,
				Logger:  logger,
				Config:  app.Reaper,
				Metrics: svcs.Observability.Metrics,
			})
		}})
	}
	return out
}

// runComponents runs every component until ctx ends or one of them fails.
// The first failure cancels the rest and is returned. Once the run is over,
// components get grace to return before runComponents gives up on them.
func runComponents(ctx context.Context, logger *slog.Logger, comps []component, grace time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range comps {
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", c.mode)
			if err := c.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", c.mode, err)
			}
			logger.InfoContext(gctx, "service stopped", "service", c.mode)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
	}

	logger.Info("shutting down services")
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("services still running %s after shutdown began", grace)
	}
}

package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Perkybeet/wasm/config"
	redisadapter "github.com/Perkybeet/wasm/internal/adapters/redis"
	"github.com/Perkybeet/wasm/internal/data"
	domainjob "github.com/Perkybeet/wasm/internal/domain/job"
	"github.com/Perkybeet/wasm/internal/observability/notify"
	"github.com/Perkybeet/wasm/internal/observability/notify/pagerduty"
	"github.com/Perkybeet/wasm/internal/observability/notify/slack"
	"github.com/Perkybeet/wasm/internal/observability/prom"
	"github.com/Perkybeet/wasm/internal/observability/statsd"
	"github.com/Perkybeet/wasm/internal/service"
	"github.com/Perkybeet/wasm/internal/service/failurenotifier"
	"github.com/Perkybeet/wasm/internal/service/pipeline"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.SchedulerService
	Backups       *service.BackupService
	Pipeline      *pipeline.Pipeline
	Hub           *service.ProgressHub
	Repos         *serviceRepositories
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Metrics fans out to every enabled exporter; nil when none is.
	Metrics         statsd.Sink
	Statsd          *statsd.Client
	Prometheus      *prom.Registry
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	Dialect     data.Dialect
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB      *sql.DB
	Dialect data.Dialect
	Jobs    *data.JobRepo
	Apps    *data.ApplicationRepo
	Backups *data.BackupRepo
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var (
		sinks        []statsd.Sink
		statsdClient *statsd.Client
		registry     *prom.Registry
	)
	if cfg.Metrics.Statsd.Enabled {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.Statsd.Address,
			Prefix:     cfg.Metrics.Prefix,
			GlobalTags: cfg.Metrics.Statsd.Tags,
			Logger:     obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			statsdClient = client
			sinks = append(sinks, client)
		}
	}
	if cfg.Metrics.Prometheus {
		registry = prom.New(prom.Options{
			Namespace:      cfg.Metrics.Prefix,
			OptionalLabels: []string{"error_class"},
			Logger:         obsLogger,
		})
		sinks = append(sinks, registry)
	}

	return ObservabilityContainer{
		Metrics:         statsd.Tee(sinks...),
		Statsd:          statsdClient,
		Prometheus:      registry,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, dialect data.Dialect) *serviceRepositories {
	cfg := data.RepoConfig{Dialect: dialect}
	return &serviceRepositories{
		DB:      db,
		Dialect: dialect,
		Jobs:    data.NewJobRepo(db, cfg),
		Apps:    data.NewApplicationRepo(db, cfg),
		Backups: data.NewBackupRepo(db, cfg),
	}
}

// newProgressHub builds the hub. With Redis, wake-ups and snapshots cross
// process boundaries so HTTP and worker processes can run apart.
func newProgressHub(cfg *config.AppConfig, client redis.UniversalClient, logger *slog.Logger) *service.ProgressHub {
	if client == nil {
		return service.NewProgressHub(service.ProgressHubOptions{Logger: logger})
	}
	bus := redisadapter.NewProgressBus(client, redisadapter.ProgressBusOptions{
		Prefix:      cfg.Redis.Prefix,
		SnapshotTTL: cfg.Redis.SnapshotTTL,
	})
	return service.NewProgressHub(service.ProgressHubOptions{
		Notifier: domainjob.NewNotifier(domainjob.NotifierOptions{Waiter: bus}),
		Relay:    bus,
		Logger:   logger,
	})
}

func newBackupService(cfg *config.AppConfig, repos *serviceRepositories, adapters *hostAdapters, logger *slog.Logger) *service.BackupService {
	return service.NewBackupService(service.BackupServiceOptions{
		Backups: repos.Backups,
		Apps:    repos.Apps,
		Source:  adapters.Source,
		Config: service.BackupServiceConfig{
			Dir:            cfg.Paths.BackupDir,
			AppsDir:        cfg.Paths.AppsDir,
			RetentionCount: cfg.Backup.Retention,
		},
		Logger: logger,
	})
}

// NewServices wires repositories, host adapters and business services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)
	repos := buildRepositories(deps.DB, deps.Dialect)
	adapters, err := buildHostAdapters(cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	hub := newProgressHub(cfg, deps.RedisClient, logger)
	backups := newBackupService(cfg, repos, adapters, logger)

	jobs, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Jobs:    repos.Jobs,
		Apps:    repos.Apps,
		Backups: repos.Backups,
		Hub:     hub,
		Logger:  logger,
		Metrics: observability.Metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create scheduler service: %w", err)
	}

	return ServiceContainer{
		Jobs:    jobs,
		Backups: backups,
		Pipeline: newPipeline(PipelineDeps{
			Config:  cfg,
			Jobs:    repos.Jobs,
			Apps:    repos.Apps,
			Backups: backups,
			Host:    adapters,
			Hub:     hub,
			Metrics: observability.Metrics,
			Logger:  logger,
		}),
		Hub:           hub,
		Repos:         repos,
		Observability: observability,
	}, nil
}

// buildFailureNotifier registers the Slack and PagerDuty sinks that are
// switched on and configured. A sink that cannot be built is logged and left
// out rather than failing startup.
func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []failurenotifier.SinkRegistration
	register := func(name string, sink notify.Sink, err error) {
		if err != nil {
			logger.Error("notification sink disabled", "sink", name, "error", err)
			return
		}
		sinks = append(sinks, failurenotifier.SinkRegistration{Name: name, Sink: sink})
	}

	if cfg.SlackActive() {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			AppURLPrefix: cfg.Slack.AppURLPrefix,
		})
		register("slack", client, err)
	}
	if cfg.PagerDutyActive() {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		register("pagerduty", client, err)
	}

	// Every attempt may use the full per-request timeout, plus backoff.
	budget := cfg.Timeout * time.Duration(cfg.RetryLimit+2)
	return failurenotifier.NewService(failurenotifier.Options{
		Logger:  logger.With("component", "failure_notifier"),
		Sinks:   sinks,
		Timeout: budget,
	})
}

package bootstrap

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Perkybeet/wasm/config"
	"github.com/Perkybeet/wasm/internal/data"
	"github.com/Perkybeet/wasm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "reaper, http"}
	assert.Equal(t, []string{"http", "reaper"}, GetEnabledServices(cfg))
	require.NoError(t, ValidateServiceConfig(cfg))

	cfg.Services = "http,cron"
	assert.Empty(t, GetEnabledServices(cfg))
	require.Error(t, ValidateServiceConfig(cfg))

	cfg.Services = ""
	require.Error(t, ValidateServiceConfig(cfg))
	require.Error(t, ValidateServiceConfig(nil))
}

func TestInitLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	logger := InitLogger("debug", false)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))

	logger = InitLogger("nonsense", true)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
}

func TestBuildFailureNotifier(t *testing.T) {
	disabled := buildFailureNotifier(nil, config.ObservabilityNotificationsConfig{})
	assert.False(t, disabled.Enabled())

	cfg := config.ObservabilityNotificationsConfig{
		Enabled: true,
		Timeout: time.Second,
		Slack: config.SlackNotificationConfig{
			WebhookURL: "https://hooks.slack.com/services/T000/B000/XXXX",
		},
		PagerDuty: config.PagerDutyNotificationConfig{},
	}
	// The PagerDuty sink is skipped without a routing key.
	notifier := buildFailureNotifier(nil, cfg)
	assert.True(t, notifier.Enabled())
}

func newTestServices(t *testing.T) ServiceContainer {
	t.Helper()
	base := t.TempDir()
	cfg := &config.AppConfig{
		Services: "http,workers,reaper",
		Paths: config.PathsConfig{
			AppsDir:           filepath.Join(base, "www"),
			BackupDir:         filepath.Join(base, "backups"),
			NginxAvailableDir: filepath.Join(base, "nginx", "sites-available"),
			NginxEnabledDir:   filepath.Join(base, "nginx", "sites-enabled"),
			SystemdDir:        filepath.Join(base, "systemd"),
		},
		Engine: config.EngineConfig{ArchiveHosts: []string{"codeload.github.com"}},
	}
	cfg.Sanitize()

	svcs, err := NewServices(&ServiceDeps{
		Config:  cfg,
		DB:      testutil.SetupTestDB(t),
		Dialect: data.DialectSQLite,
	})
	require.NoError(t, err)
	t.Cleanup(svcs.Hub.Close)
	return svcs
}

func TestNewServices(t *testing.T) {
	svcs := newTestServices(t)

	assert.NotNil(t, svcs.Jobs)
	assert.NotNil(t, svcs.Backups)
	assert.NotNil(t, svcs.Pipeline)
	assert.NotNil(t, svcs.Hub)
	require.NotNil(t, svcs.Repos)
	assert.Equal(t, data.DialectSQLite, svcs.Repos.Dialect)
	assert.Nil(t, svcs.Observability.Metrics)
	assert.Nil(t, svcs.Observability.Prometheus)

	_, err := NewServices(nil)
	require.Error(t, err)
}

func TestBuildHTTPHandler(t *testing.T) {
	svcs := newTestServices(t)
	h := buildHTTPHandler(httpHandlerConfig{
		Logger:   slog.New(slog.DiscardHandler),
		Services: httpRouterServices(svcs, "token", nil),
		HTTP:     config.HTTPConfig{CompressionEnabled: true, CompressionLevel: 6},
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	r.Header.Set("Authorization", "Bearer token")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBuildObservabilityPrometheus(t *testing.T) {
	obs := buildObservability(slog.New(slog.DiscardHandler), config.ObservabilityConfig{
		Metrics: config.ObservabilityMetricsConfig{Prefix: "wasm", Prometheus: true},
	})
	require.NotNil(t, obs.Prometheus)
	assert.Nil(t, obs.Statsd)
	assert.Same(t, obs.Prometheus, obs.Metrics, "a single exporter is used directly")

	obs.Metrics.Count("job.transition", 1, map[string]string{"operation": "create", "result": "success"})

	h := buildHTTPHandler(httpHandlerConfig{
		Logger:   slog.New(slog.DiscardHandler),
		Services: httpRouterServices(ServiceContainer{Observability: obs}, "token", nil),
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code, "metrics are scraped without the API token")
	assert.Contains(t, w.Body.String(), `operation="create",result="success"} 1`)
}

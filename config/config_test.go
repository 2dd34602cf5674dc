package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - workers",
			input:    "workers",
			expected: map[ServiceMode]bool{ServiceModeWorkers: true},
		},
		{
			name:  "all services",
			input: "http,workers,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:    true,
				ServiceModeWorkers: true,
				ServiceModeReaper:  true,
			},
		},
		{
			name:  "services with spaces",
			input: " http , workers ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:    true,
				ServiceModeWorkers: true,
			},
		},
		{
			name:  "duplicate services",
			input: "http,http,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeReaper: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,scheduler",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name            string
		services        string
		expectedHTTP    bool
		expectedWorkers bool
		expectedReaper  bool
	}{
		{
			name:            "default - everything",
			services:        "http,workers,reaper",
			expectedHTTP:    true,
			expectedWorkers: true,
			expectedReaper:  true,
		},
		{
			name:         "api only",
			services:     "http",
			expectedHTTP: true,
		},
		{
			name:            "workers and reaper",
			services:        "workers,reaper",
			expectedWorkers: true,
			expectedReaper:  true,
		},
		{
			name:     "invalid configuration disables everything",
			services: "invalid-service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsHTTPServerEnabled() != tt.expectedHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v, got %v", tt.expectedHTTP, cfg.IsHTTPServerEnabled())
			}
			if cfg.IsWorkersEnabled() != tt.expectedWorkers {
				t.Errorf("IsWorkersEnabled(): expected %v, got %v", tt.expectedWorkers, cfg.IsWorkersEnabled())
			}
			if cfg.IsReaperEnabled() != tt.expectedReaper {
				t.Errorf("IsReaperEnabled(): expected %v, got %v", tt.expectedReaper, cfg.IsReaperEnabled())
			}
		})
	}
}

func TestValidServiceModes(t *testing.T) {
	expected := []ServiceMode{ServiceModeHTTP, ServiceModeWorkers, ServiceModeReaper}
	if modes := ValidServiceModes(); !reflect.DeepEqual(modes, expected) {
		t.Errorf("expected %v, got %v", expected, modes)
	}
}

func TestAppConfig_ParseDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver by default, got %q", cfg.Database.Driver)
	}
	if cfg.Engine.Lease != 30*time.Second {
		t.Errorf("expected 30s lease, got %v", cfg.Engine.Lease)
	}
	if !reflect.DeepEqual(cfg.Engine.OOMExitCodes, []int{137}) {
		t.Errorf("expected default OOM exit codes, got %v", cfg.Engine.OOMExitCodes)
	}
	if !reflect.DeepEqual(cfg.Backup.PreserveGlobs, []string{".env", ".env.*"}) {
		t.Errorf("expected default preserve globs, got %v", cfg.Backup.PreserveGlobs)
	}
	if cfg.Reaper.JobHistoryMaxAge != 720*time.Hour {
		t.Errorf("expected 30 day job history, got %v", cfg.Reaper.JobHistoryMaxAge)
	}
	if !cfg.IsWorkersEnabled() {
		t.Error("expected workers to be enabled by default")
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "PostgreSQL")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("WASM_APPS_DIR", "/srv/apps/")
	t.Setenv("ENGINE_WORKERS", "0")
	t.Setenv("ENGINE_OOM_EXIT_CODES", "137,143")
	t.Setenv("ENGINE_ARCHIVE_HOSTS", "github.com, ,codeload.github.com")
	t.Setenv("BACKUP_RETENTION", "-3")
	t.Setenv("SERVICES", "workers")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if !cfg.Database.IsPostgres() || cfg.Database.Host != "db.internal" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if !cfg.Redis.Enabled {
		t.Error("expected redis to be enabled")
	}
	if cfg.Paths.AppsDir != "/srv/apps" {
		t.Errorf("expected cleaned apps dir, got %q", cfg.Paths.AppsDir)
	}
	if cfg.Engine.Workers != 1 {
		t.Errorf("expected workers clamped to 1, got %d", cfg.Engine.Workers)
	}
	if !reflect.DeepEqual(cfg.Engine.OOMExitCodes, []int{137, 143}) {
		t.Errorf("unexpected OOM exit codes: %v", cfg.Engine.OOMExitCodes)
	}
	if !reflect.DeepEqual(cfg.Engine.ArchiveHosts, []string{"github.com", "codeload.github.com"}) {
		t.Errorf("unexpected archive hosts: %v", cfg.Engine.ArchiveHosts)
	}
	if cfg.Backup.Retention != 0 {
		t.Errorf("expected negative retention to clamp to 0, got %d", cfg.Backup.Retention)
	}
	if cfg.IsHTTPServerEnabled() {
		t.Error("expected http to be disabled")
	}
}

func TestDatabaseConfig_Sanitize(t *testing.T) {
	tests := []struct {
		driver   string
		expected string
	}{
		{"sqlite", DriverSQLite},
		{"sqlite3", DriverSQLite},
		{" Postgres ", DriverPostgres},
		{"pgx", DriverPostgres},
		{"mysql", DriverSQLite},
	}
	for _, tt := range tests {
		cfg := DatabaseConfig{Driver: tt.driver}
		cfg.Sanitize()
		if cfg.Driver != tt.expected {
			t.Errorf("driver %q: expected %q, got %q", tt.driver, tt.expected, cfg.Driver)
		}
	}
}

func TestEngineConfig_Sanitize(t *testing.T) {
	cfg := EngineConfig{
		Lease:             time.Second,
		StageTimeout:      time.Minute,
		BuildTimeout:      time.Second,
		VerifyBackoffBase: 5 * time.Second,
		VerifyBackoffMax:  time.Second,
	}
	cfg.Sanitize()

	if cfg.Lease != 5*time.Second {
		t.Errorf("expected lease floor of 5s, got %v", cfg.Lease)
	}
	if cfg.BuildTimeout != time.Minute {
		t.Errorf("expected build timeout raised to the stage timeout, got %v", cfg.BuildTimeout)
	}
	if cfg.VerifyBackoffMax != 5*time.Second {
		t.Errorf("expected backoff max raised to base, got %v", cfg.VerifyBackoffMax)
	}
	if cfg.VerifyRetries != 1 || cfg.ServiceUser != "www-data" || cfg.HealthHost != "127.0.0.1" {
		t.Errorf("expected defaults to be filled in: %+v", cfg)
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{Interval: time.Second, JobHistoryMaxAge: time.Minute, BatchSize: 50000}
	cfg.Sanitize()
	if cfg.Interval != 10*time.Second {
		t.Errorf("expected interval floor, got %v", cfg.Interval)
	}
	if cfg.JobHistoryMaxAge != time.Hour {
		t.Errorf("expected history floor, got %v", cfg.JobHistoryMaxAge)
	}
	if cfg.BatchSize != 10000 {
		t.Errorf("expected batch size ceiling, got %d", cfg.BatchSize)
	}

	cfg = ReaperConfig{JobHistoryMaxAge: -1}
	cfg.Sanitize()
	if cfg.JobHistoryMaxAge != -1 {
		t.Errorf("expected negative history age to keep pruning disabled, got %v", cfg.JobHistoryMaxAge)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Prefix: " .wasm_ ",
		Statsd: StatsdConfig{Enabled: true, Address: " "},
	}
	cfg.Sanitize()
	if cfg.Statsd.Enabled {
		t.Fatal("statsd must be disabled without an address")
	}
	if cfg.Prefix != "wasm" {
		t.Fatalf("expected trimmed prefix, got %q", cfg.Prefix)
	}

	cfg = ObservabilityMetricsConfig{Statsd: StatsdConfig{Enabled: true, Address: " statsd:1234 "}}
	cfg.Sanitize()
	if !cfg.Statsd.Enabled || cfg.Statsd.Address != "statsd:1234" {
		t.Fatalf("expected statsd to stay enabled with trimmed address, got %+v", cfg.Statsd)
	}
}

func TestObservabilityMetricsConfigFromEnv(t *testing.T) {
	t.Setenv("OBSERVABILITY_METRICS_STATSD_ENABLED", "true")
	t.Setenv("OBSERVABILITY_METRICS_STATSD_TAGS", "env:prod,region:eu")
	t.Setenv("OBSERVABILITY_METRICS_PROMETHEUS_ENABLED", "true")

	var cfg ObservabilityMetricsConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Prefix != "wasm" || cfg.Statsd.Address != "127.0.0.1:8125" {
		t.Fatalf("expected defaults, got prefix=%q address=%q", cfg.Prefix, cfg.Statsd.Address)
	}
	if !cfg.Prometheus || !cfg.Statsd.Enabled {
		t.Fatalf("expected both exporters enabled, got %+v", cfg)
	}
	if cfg.Statsd.Tags["env"] != "prod" || cfg.Statsd.Tags["region"] != "eu" {
		t.Fatalf("unexpected tags %v", cfg.Statsd.Tags)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack:      SlackNotificationConfig{WebhookURL: " ", AppURLPrefix: " https://ops.example.com/apps/ "},
		PagerDuty:  PagerDutyNotificationConfig{RoutingKey: " "},
	}
	cfg.Sanitize()

	if cfg.Timeout != 5*time.Second {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit != 0 {
		t.Fatalf("expected retry limit to be clamped to 0, got %d", cfg.RetryLimit)
	}
	if cfg.SlackActive() || cfg.PagerDutyActive() {
		t.Fatal("sinks without credentials must stay inactive")
	}
	if cfg.Slack.Username != "wasm" || cfg.Slack.AppURLPrefix != "https://ops.example.com/apps" {
		t.Fatalf("unexpected slack defaults: %+v", cfg.Slack)
	}
	if cfg.PagerDuty.Source != "wasm" || cfg.PagerDuty.Component != "deployment-engine" {
		t.Fatalf("unexpected pagerduty defaults: %+v", cfg.PagerDuty)
	}

	cfg = ObservabilityNotificationsConfig{
		Slack:     SlackNotificationConfig{WebhookURL: "https://hooks.slack.com/services/test"},
		PagerDuty: PagerDutyNotificationConfig{RoutingKey: "abc"},
	}
	cfg.Sanitize()
	if cfg.SlackActive() || cfg.PagerDutyActive() {
		t.Fatal("the master switch gates every sink")
	}
	cfg.Enabled = true
	if !cfg.SlackActive() || !cfg.PagerDutyActive() {
		t.Fatal("configured sinks should be active once notifications are enabled")
	}
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	h := HTTPConfig{Addr: "  ", APIToken: " tok ", CompressionLevel: 12, CompressionMinSize: -5, IdleTimeout: time.Minute}
	h.Sanitize()

	want := HTTPConfig{
		Addr:              "127.0.0.1:8080",
		APIToken:          "tok",
		CompressionLevel:  9,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       time.Minute,
		ShutdownTimeout:   10 * time.Second,
	}
	if !reflect.DeepEqual(h, want) {
		t.Fatalf("Sanitize() = %+v, want %+v", h, want)
	}
}

func TestAppConfigSanitizeDetectsDevEnv(t *testing.T) {
	t.Setenv("APP_ENV", "Development")
	cfg := AppConfig{LogLevel: " DEBUG "}
	cfg.Sanitize()

	if !cfg.IsDev {
		t.Fatal("APP_ENV=development should enable dev mode")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected normalized log level, got %q", cfg.LogLevel)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8080" || cfg.Reaper.Interval == 0 {
		t.Fatalf("sections were not sanitized: http=%+v reaper=%+v", cfg.HTTP, cfg.Reaper)
	}
}

// Package config holds the environment-driven configuration of the engine
// and the admin CLI. Every section has a Sanitize method that restores
// defaults and clamps values after parsing.
package config

import (
	"os"
	"strings"
)

// AppConfig is the root of the configuration tree, parsed with
// github.com/caarlos0/env. Sections live in their own files: database.go
// (store and Redis), engine.go (host layout, pipeline and backups), http.go,
// services.go (service modes and reaper) and observability.go.
type AppConfig struct {
	// IsDev switches to text logs. APP_ENV=development has the same effect.
	IsDev    bool   `env:"DEV"       envDefault:"false"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`

	Paths  PathsConfig
	Engine EngineConfig
	Backup BackupConfig
	HTTP   HTTPConfig

	// Services is a comma-separated subset of http, workers and reaper.
	Services string `env:"SERVICES" envDefault:"http,workers,reaper"`
	Reaper   ReaperConfig

	Observability ObservabilityConfig
}

// Sanitize runs every section's Sanitize. Call it once after parsing.
func (c *AppConfig) Sanitize() {
	for _, s := range []interface{ Sanitize() }{
		&c.Database, &c.Redis, &c.Paths, &c.Engine, &c.Backup,
		&c.HTTP, &c.Reaper, &c.Observability,
	} {
		s.Sanitize()
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if !c.IsDev {
		switch strings.ToLower(os.Getenv("APP_ENV")) {
		case "development", "dev":
			c.IsDev = true
		}
	}
}

// GetEnabledServices parses Services.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled reports whether the API listener runs in this process.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.isEnabled(ServiceModeHTTP) }

// IsWorkersEnabled reports whether the job worker pool runs in this process.
func (c *AppConfig) IsWorkersEnabled() bool { return c.isEnabled(ServiceModeWorkers) }

// IsReaperEnabled reports whether the reaper runs in this process.
func (c *AppConfig) IsReaperEnabled() bool { return c.isEnabled(ServiceModeReaper) }

// isEnabled is false for an invalid Services value.
func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	enabled, err := c.GetEnabledServices()
	return err == nil && enabled[mode]
}

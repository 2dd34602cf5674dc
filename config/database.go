package config

import (
	"strings"
	"time"
)

// Store drivers accepted by DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and configures the persistence store.
type DatabaseConfig struct {
	// Driver is sqlite (embedded, default) or postgres.
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	// Path is the SQLite database file.
	Path string `env:"PATH" envDefault:"/var/lib/wasm/wasm.db"`

	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"wasm"`
	Password string `env:"PASSWORD" envDefault:"wasm"`
	Name     string `env:"NAME"     envDefault:"wasm"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize normalises the driver name; unknown drivers fall back to sqlite.
func (d *DatabaseConfig) Sanitize() {
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	switch d.Driver {
	case DriverSQLite, DriverPostgres:
	case "sqlite3":
		d.Driver = DriverSQLite
	case "pgx", "postgresql":
		d.Driver = DriverPostgres
	default:
		d.Driver = DriverSQLite
	}
	d.Path = strings.TrimSpace(d.Path)
}

// IsPostgres reports whether the Postgres backend is selected.
func (d *DatabaseConfig) IsPostgres() bool {
	return d.Driver == DriverPostgres
}

// RedisConfig contains Redis configuration. Redis is optional: it relays
// wake-ups and progress between engine processes sharing a Postgres store.
type RedisConfig struct {
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	// Prefix namespaces relay channels and snapshot keys.
	Prefix string `env:"PREFIX" envDefault:"wasm:"`
	// SnapshotTTL bounds how long the last progress event of a job is kept.
	SnapshotTTL time.Duration `env:"SNAPSHOT_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to Redis configuration values.
func (r *RedisConfig) Sanitize() {
	r.URI = strings.TrimSpace(r.URI)
	if r.Prefix = strings.TrimSpace(r.Prefix); r.Prefix == "" {
		r.Prefix = "wasm:"
	}
	if r.SnapshotTTL < time.Minute {
		r.SnapshotTTL = time.Minute
	}
}

package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/Perkybeet/wasm/config"
	"github.com/Perkybeet/wasm/internal/data"
	"github.com/Perkybeet/wasm/internal/data/database"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DatabaseConfig carries the store and relay settings into the connectors.
type DatabaseConfig struct {
	DBConfig    config.DatabaseConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

const (
	pingTimeout       = 5 * time.Second
	pgMaxOpenConns    = 25
	pgMaxIdleConns    = 5
	pgConnMaxLifetime = 5 * time.Minute
)

// OpenDatabase opens the configured store and reports its SQL dialect.
// SQLite is the default; Postgres is used when DB_DRIVER selects it.
func OpenDatabase(ctx context.Context, cfg DatabaseConfig) (*sql.DB, data.Dialect, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.DBConfig.IsPostgres() {
		db, err := ConnectDB(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		return db, data.DialectPostgres, nil
	}

	db, err := database.OpenSQLite(ctx, cfg.DBConfig.Path)
	if err != nil {
		return nil, "", fmt.Errorf("open sqlite database: %w", err)
	}
	logger.InfoContext(ctx, "database opened", "driver", config.DriverSQLite, "path", cfg.DBConfig.Path)
	return db, data.DialectSQLite, nil
}

// postgresDSN renders a URL DSN; url.UserPassword escapes credentials.
func postgresDSN(c config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// ConnectDB opens a pooled Postgres handle and pings it.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(data.DialectPostgres.DriverName(), postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", closeOnError(err, db.Close, "database connection"))
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "database connected",
			"driver", config.DriverPostgres,
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name,
		)
	}
	return db, nil
}

// closeOnError releases a half-opened resource and keeps both errors.
func closeOnError(err error, closeFn func() error, what string) error {
	if cerr := closeFn(); cerr != nil {
		return errors.Join(err, fmt.Errorf("close %s: %w", what, cerr))
	}
	return err
}

// RunMigrations applies the embedded schema for dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect data.Dialect, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db, dialect); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed", "dialect", string(dialect))
	}
	return nil
}

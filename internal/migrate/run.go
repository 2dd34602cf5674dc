// Package migrate applies the embedded schema to the job store.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/Perkybeet/wasm/internal/data/dbutil"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Dialect names accepted by Run. They match data.Dialect values.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// The DDL is valid on both backends.
const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// migration is one embedded file. Its version is the file name without ".sql";
// versions apply in lexical order.
type migration struct {
	version string
	file    string
}

// Run applies every pending migration for dialect, each in its own
// transaction together with its schema_migrations row. Running it again is a
// no-op.
func Run(ctx context.Context, db *sql.DB, dialect string) error {
	pending, err := pendingMigrations(ctx, db, dialect)
	if err != nil {
		return err
	}
	insert := `INSERT INTO schema_migrations (version) VALUES (?)`
	if dialect == DialectPostgres {
		insert = `INSERT INTO schema_migrations (version) VALUES ($1)`
	}

	logger := slog.Default().With("component", "migrations")
	for _, m := range pending {
		body, err := migrationsFS.ReadFile(m.file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", m.version, err)
		}
		logger.InfoContext(ctx, "applying migration", "version", m.version, "dialect", dialect)
		err = dbutil.InTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, insert, m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
	}
	return nil
}

// Pending lists the versions Run would apply, oldest first.
func Pending(ctx context.Context, db *sql.DB, dialect string) ([]string, error) {
	pending, err := pendingMigrations(ctx, db, dialect)
	if err != nil {
		return nil, err
	}
	versions := make([]string, len(pending))
	for i, m := range pending {
		versions[i] = m.version
	}
	return versions, nil
}

func pendingMigrations(ctx context.Context, db *sql.DB, dialect string) ([]migration, error) {
	all, err := embedded(dialect)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}
	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(m migration) bool { return done[m.version] }), nil
}

func embedded(dialect string) ([]migration, error) {
	var dir string
	switch dialect {
	case DialectSQLite, "":
		dir = "migrations/sqlite"
	case DialectPostgres:
		dir = "migrations/postgres"
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	names, err := fs.Glob(migrationsFS, dir+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)
	out := make([]migration, 0, len(names))
	for _, name := range names {
		out = append(out, migration{
			version: strings.TrimSuffix(path.Base(name), ".sql"),
			file:    name,
		})
	}
	return out, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

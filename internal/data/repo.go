package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Perkybeet/wasm/internal/data/database"
)

// RepoConfig holds configuration shared by the SQL repositories.
type RepoConfig struct {
	Dialect      Dialect
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// base carries the connection and dialect helpers every repository embeds.
type base struct {
	DB           *sql.DB
	dialect      Dialect
	timeProvider TimeProvider
	logger       *slog.Logger
}

func newBase(db *sql.DB, cfg RepoConfig, component string) base {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	d := cfg.Dialect
	if d == "" {
		d = DialectSQLite
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		DB:           db,
		dialect:      d,
		timeProvider: tp,
		logger:       logger.With("component", component),
	}
}

// q rebinds a ? query for the repository dialect.
func (b base) q(query string) string {
	return b.dialect.Rebind(query)
}

func (b base) now() time.Time {
	return b.timeProvider.Now().UTC()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// jsonText encodes v for a TEXT/JSONB column.
func jsonText(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

// pageOptions turns non-positive limit/offset into "unbounded" / "from the start".
func pageOptions(limit, offset int) []database.ListQueryOption {
	var opts []database.ListQueryOption
	if limit > 0 {
		opts = append(opts, database.WithLimit(limit))
	}
	if offset > 0 {
		opts = append(opts, database.WithOffset(offset))
	}
	return opts
}

// nullString maps "" to NULL so COALESCE(?, column) keeps the stored value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

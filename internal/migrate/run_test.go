package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSQLiteIsIdempotent(t *testing.T) {
	ctx := t.Context()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pending, err := Pending(ctx, db, DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init"}, pending)

	require.NoError(t, Run(ctx, db, DialectSQLite))
	require.NoError(t, Run(ctx, db, DialectSQLite))

	pending, err = Pending(ctx, db, DialectSQLite)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var tables int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('applications', 'jobs', 'job_steps', 'backups')`,
	).Scan(&tables))
	assert.Equal(t, 4, tables)
}

func TestEmbeddedDialects(t *testing.T) {
	for _, d := range []string{DialectSQLite, DialectPostgres, ""} {
		ms, err := embedded(d)
		require.NoError(t, err, d)
		require.NotEmpty(t, ms, d)
		assert.Equal(t, "0001_init", ms[0].version)
	}

	_, err := embedded("mysql")
	require.ErrorContains(t, err, `unsupported migration dialect "mysql"`)
}

package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildListQuery_BasicSelect(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs"))
	assert.Equal(t, `SELECT * FROM "jobs"`, query)
	assert.Empty(t, args)
}

func TestBuildListQuery_Conditions(t *testing.T) {
	tests := []struct {
		name      string
		opts      []ListQueryOption
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "equal",
			opts:      []ListQueryOption{WithCondition(WhereCond("app_id", Equal, "a.example.com"))},
			wantQuery: `SELECT * FROM "jobs" WHERE "app_id" = ?`,
			wantArgs:  []any{"a.example.com"},
		},
		{
			name:      "in",
			opts:      []ListQueryOption{WithCondition(WhereCond("status", In, []string{"queued", "running"}))},
			wantQuery: `SELECT * FROM "jobs" WHERE "status" IN (?, ?)`,
			wantArgs:  []any{"queued", "running"},
		},
		{
			name:      "empty in is dropped",
			opts:      []ListQueryOption{WithCondition(WhereCond("status", In, []string{}))},
			wantQuery: `SELECT * FROM "jobs"`,
		},
		{
			name: "raw and comparison",
			opts: []ListQueryOption{
				WithCondition(WhereRawCond("completed_at < ?", 5)),
				WithCondition(WhereCond("seq", GreaterThan, 2)),
			},
			wantQuery: `SELECT * FROM "jobs" WHERE completed_at < ? AND "seq" > ?`,
			wantArgs:  []any{5, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := BuildListQuery(NewListQueryOptions("jobs", tt.opts...))
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildListQuery_OrderAndPagination(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("backups",
		WithColumns("id", "created_at"),
		WithOrderBy("created_at", "desc"),
		WithOrderBy("id", "DESC; DROP TABLE x"),
		WithLimit(10),
		WithOffset(5),
	))
	assert.Equal(t, `SELECT "id", "created_at" FROM "backups" ORDER BY "created_at" DESC, "id" LIMIT ? OFFSET ?`, query)
	assert.Equal(t, []any{10, 5}, args)
}

func TestBuildListQuery_OffsetWithoutLimit(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs", WithOffset(3)))
	assert.Equal(t, `SELECT * FROM "jobs" LIMIT ? OFFSET ?`, query)
	assert.Equal(t, []any{int64(1 << 62), 3}, args)
}

func TestBuildListQuery_CountOnly(t *testing.T) {
	query, args := BuildListQuery(NewListQueryOptions("jobs",
		WithCountOnly(),
		WithCondition(WhereCond("status", Equal, "queued")),
		WithLimit(5),
	))
	assert.Equal(t, `SELECT COUNT(*) FROM "jobs" WHERE "status" = ?`, query)
	assert.Equal(t, []any{"queued"}, args)
}

func TestOpenSQLite_AppliesPragmas(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

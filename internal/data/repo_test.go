package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/testutil"
	"github.com/stretchr/testify/require"
)

type testRepos struct {
	db    *sql.DB
	clock *FixedTimeProvider
	apps  *ApplicationRepo
	jobs  *JobRepo
	bkps  *BackupRepo
}

func newTestRepos(t *testing.T) testRepos {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return newTestReposFor(db, DialectSQLite)
}

func newTestReposFor(db *sql.DB, d Dialect) testRepos {
	clock := NewFixedTimeProvider(testutil.TestTime())
	cfg := RepoConfig{Dialect: d, TimeProvider: clock}
	return testRepos{
		db:    db,
		clock: clock,
		apps:  NewApplicationRepo(db, cfg),
		jobs:  NewJobRepo(db, cfg),
		bkps:  NewBackupRepo(db, cfg),
	}
}

func (r testRepos) submit(t *testing.T, appID string, op model.Operation) *model.Job {
	t.Helper()
	req := testutil.NewSubmitRequest().WithAppID(appID).WithOperation(op).Build()
	job, err := r.jobs.Create(context.Background(), testutil.NewJob(req))
	require.NoError(t, err)
	// Keep created_at strictly increasing for ordering assertions.
	r.clock.AddTime(time.Second)
	return job
}

func (r testRepos) reserve(t *testing.T) *model.Job {
	t.Helper()
	job, err := r.jobs.ReserveNext(context.Background(), 30)
	require.NoError(t, err)
	return job
}

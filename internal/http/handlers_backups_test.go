package httpx

import (
	"context"
	"net/http"
	"testing"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *apiFixture) seedBackup(t *testing.T, id, appID string) *model.Backup {
	t.Helper()
	b := testutil.NewBackup(id, appID, testutil.TestTime())
	require.NoError(t, f.backups.Create(context.Background(), b))
	return b
}

func TestBackupHandlers_ListAndGet(t *testing.T) {
	f := newAPIFixture(t, "")

	w := f.do(t, http.MethodGet, "/api/backups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	f.seedApp(t, "shop.example.com")
	f.seedBackup(t, "b-1", "shop.example.com")

	w = f.do(t, http.MethodGet, "/api/backups?app=Shop.Example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]model.Backup](t, w), 1)

	w = f.do(t, http.MethodGet, "/api/backups/b-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shop.example.com", decodeBody[model.Backup](t, w).AppID)

	w = f.do(t, http.MethodGet, "/api/backups/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBackupHandlers_CreateQueuesJob(t *testing.T) {
	f := newAPIFixture(t, "")
	f.seedApp(t, "shop.example.com")

	w := f.do(t, http.MethodPost, "/api/backups", map[string]any{
		"app_id":      "shop.example.com",
		"description": "before migration",
		"tags":        []string{"manual"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decodeBody[map[string]string](t, w)["job_id"]

	job, err := f.jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.OperationBackup, job.Operation)
	req, err := job.DecodeRequest()
	require.NoError(t, err)
	assert.Equal(t, "before migration", req.Description)
	assert.Equal(t, []string{"manual"}, req.Tags)

	w = f.do(t, http.MethodPost, "/api/backups", map[string]any{"app_id": "missing.example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBackupHandlers_Restore(t *testing.T) {
	f := newAPIFixture(t, "")

	w := f.do(t, http.MethodPost, "/api/backups/missing/restore", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	f.seedApp(t, "shop.example.com")
	f.seedBackup(t, "b-1", "shop.example.com")

	w = f.do(t, http.MethodPost, "/api/backups/b-1/restore", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decodeBody[map[string]string](t, w)["job_id"]

	job, err := f.jobs.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.OperationRollback, job.Operation)
	assert.Equal(t, "shop.example.com", job.AppID)
	req, err := job.DecodeRequest()
	require.NoError(t, err)
	assert.Equal(t, "b-1", req.BackupID)

	// The application now has an active job.
	w = f.do(t, http.MethodPost, "/api/backups/b-1/restore", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBackupHandlers_RestoreIntoUnknownTarget(t *testing.T) {
	f := newAPIFixture(t, "")
	f.seedApp(t, "shop.example.com")
	f.seedBackup(t, "b-1", "shop.example.com")

	w := f.do(t, http.MethodPost, "/api/backups/b-1/restore", map[string]string{"target_app_id": "staging.example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestBackupHandlers_VerifyMissingArchive(t *testing.T) {
	f := newAPIFixture(t, "")
	f.seedApp(t, "shop.example.com")
	f.seedBackup(t, "b-1", "shop.example.com")

	w := f.do(t, http.MethodPost, "/api/backups/b-1/verify", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "corrupt_backup", decodeBody[map[string]any](t, w)["error"])

	b, err := f.backups.GetByID(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, model.VerificationCorrupt, b.Verification)
}

func TestBackupHandlers_StorageAndDelete(t *testing.T) {
	f := newAPIFixture(t, "")

	w := f.do(t, http.MethodGet, "/api/backups/storage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decodeBody[model.StorageInfo](t, w)
	assert.Zero(t, info.BackupCount)
	assert.Empty(t, info.Apps)

	w = f.do(t, http.MethodDelete, "/api/backups/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.seedApp(t, "shop.example.com")
	f.seedBackup(t, "b-1", "shop.example.com")
	w = f.do(t, http.MethodDelete, "/api/backups/b-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/backups/b-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

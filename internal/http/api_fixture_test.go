package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Perkybeet/wasm/internal/data"
	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/service"
	"github.com/Perkybeet/wasm/internal/testutil"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	jobs    *data.JobRepo
	apps    *data.ApplicationRepo
	backups *data.BackupRepo
	hub     *service.ProgressHub
	handler http.Handler
}

func newAPIFixture(t *testing.T, token string) *apiFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := data.RepoConfig{Dialect: data.DialectSQLite}
	f := &apiFixture{
		jobs:    data.NewJobRepo(db, cfg),
		apps:    data.NewApplicationRepo(db, cfg),
		backups: data.NewBackupRepo(db, cfg),
		hub:     service.NewProgressHub(service.ProgressHubOptions{}),
	}
	t.Cleanup(f.hub.Close)

	base := t.TempDir()
	scheduler := service.MustNewSchedulerService(service.SchedulerServiceOptions{
		Jobs:       f.jobs,
		Apps:       f.apps,
		Backups:    f.backups,
		Hub:        f.hub,
		StreamPoll: 50 * time.Millisecond,
	})
	backupSvc := service.NewBackupService(service.BackupServiceOptions{
		Backups: f.backups,
		Apps:    f.apps,
		Config: service.BackupServiceConfig{
			Dir:     filepath.Join(base, "backups"),
			AppsDir: filepath.Join(base, "apps"),
		},
	})
	f.handler = NewRouter(RouterServices{
		Jobs:     scheduler,
		Apps:     f.apps,
		Backups:  backupSvc,
		APIToken: token,
	})
	return f
}

func (f *apiFixture) seedApp(t *testing.T, id string) *model.Application {
	t.Helper()
	app := testutil.NewApplication(id, "/var/www/"+id, model.AppTypeNodeJS)
	require.NoError(t, f.apps.Create(context.Background(), app))
	return app
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "body: %s", w.Body.String())
	return v
}

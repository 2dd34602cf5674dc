package httpx

import (
	"context"
	"net/http"
	"testing"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppHandlers_List(t *testing.T) {
	f := newAPIFixture(t, "")

	w := f.do(t, http.MethodGet, "/api/apps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	f.seedApp(t, "shop.example.com")
	failed := f.seedApp(t, "blog.example.com")
	failed.State = model.AppStateFailed
	require.NoError(t, f.apps.Upsert(context.Background(), failed))

	w = f.do(t, http.MethodGet, "/api/apps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]model.Application](t, w), 2)

	w = f.do(t, http.MethodGet, "/api/apps?state=failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	apps := decodeBody[[]model.Application](t, w)
	require.Len(t, apps, 1)
	assert.Equal(t, "blog.example.com", apps[0].ID)
}

func TestAppHandlers_ListRejectsUnknownFilters(t *testing.T) {
	f := newAPIFixture(t, "")
	for _, path := range []string{"/api/apps?state=sleeping", "/api/apps?type=cobol"} {
		w := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "validation", decodeBody[map[string]any](t, w)["error"])
	}
}

func TestAppHandlers_Get(t *testing.T) {
	f := newAPIFixture(t, "")
	f.seedApp(t, "shop.example.com")

	w := f.do(t, http.MethodGet, "/api/apps/Shop.Example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	app := decodeBody[model.Application](t, w)
	assert.Equal(t, "shop.example.com", app.ID)
	assert.Equal(t, model.AppStateActive, app.State)

	w = f.do(t, http.MethodGet, "/api/apps/missing.example.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

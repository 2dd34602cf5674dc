package httpx

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

// AppHandlers exposes the application registry read-only. Applications change
// only through jobs.
type AppHandlers struct {
	Apps core.ApplicationRepository
}

// List returns applications filtered by ?state= and ?type=.
func (h *AppHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := appPage.parse(r)
	q := r.URL.Query()
	filter := model.ApplicationFilter{
		State:   model.AppState(q.Get("state")),
		AppType: model.AppType(q.Get("type")),
		Limit:   limit,
		Offset:  offset,
	}
	if filter.State != "" && !filter.State.Valid() {
		WriteAppError(w, apperrors.ValidationField("state", fmt.Sprintf("unknown state %q", filter.State)))
		return
	}
	if filter.AppType != "" && !filter.AppType.Valid() {
		WriteAppError(w, apperrors.ValidationField("type", fmt.Sprintf("unknown app type %q", filter.AppType)))
		return
	}

	apps, err := h.Apps.List(r.Context(), filter)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if apps == nil {
		apps = []*model.Application{}
	}
	WriteJSON(w, http.StatusOK, apps)
}

// Get returns one application.
func (h *AppHandlers) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.Apps.GetByID(r.Context(), strings.ToLower(r.PathValue("id")))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, app)
}

package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs    *service.SchedulerService
	Apps    core.ApplicationRepository
	Backups *service.BackupService
	// APIToken, when set, guards every /api route with bearer authentication.
	APIToken string
	// Metrics, when set, is served unauthenticated at GET /metrics.
	Metrics http.Handler
	// Ready backs GET /readyz, typically the store's PingContext.
	Ready func(context.Context) error
	Logger  *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates and configures the API router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()
	api := http.NewServeMux()

	registerJobRoutes(api, &JobHandlers{Svc: services.Jobs, Logger: services.Logger})
	registerAppRoutes(api, &AppHandlers{Apps: services.Apps})
	registerBackupRoutes(api, &BackupHandlers{Svc: services.Backups, Jobs: services.Jobs})
	api.HandleFunc("/api/", apiNotFound)

	mux.Handle("/api/", RequireToken(services.APIToken)(api))
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.Handle("GET /readyz", readyHandler(services.Ready))
	mux.Handle("HEAD /readyz", readyHandler(services.Ready))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}
	return mux
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.Submit)
	mux.HandleFunc("GET /api/jobs", h.List)
	mux.HandleFunc("GET /api/jobs/{id}", h.Get)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /api/jobs/{id}/progress", h.Progress)
}

func registerAppRoutes(mux *http.ServeMux, h *AppHandlers) {
	mux.HandleFunc("GET /api/apps", h.List)
	mux.HandleFunc("GET /api/apps/{id}", h.Get)
}

func registerBackupRoutes(mux *http.ServeMux, h *BackupHandlers) {
	mux.HandleFunc("GET /api/backups", h.List)
	mux.HandleFunc("POST /api/backups", h.Create)
	mux.HandleFunc("GET /api/backups/storage", h.Storage)
	mux.HandleFunc("GET /api/backups/{id}", h.Get)
	mux.HandleFunc("POST /api/backups/{id}/verify", h.Verify)
	mux.HandleFunc("POST /api/backups/{id}/restore", h.Restore)
	mux.HandleFunc("DELETE /api/backups/{id}", h.Delete)
}

func apiNotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("no such endpoint")})
}

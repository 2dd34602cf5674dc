package httpx

import (
	"net/http"
	"strings"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/service"
)

// BackupHandlers serves backup inspection and queues backup and restore jobs.
// Anything that changes an application tree runs as a job so it is
// serialized with deployments of the same application.
type BackupHandlers struct {
	Svc  *service.BackupService
	Jobs *service.SchedulerService
}

// createBackupRequest is the body of POST /api/backups.
type createBackupRequest struct {
	AppID        string   `json:"app_id"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	IncludeEnv   *bool    `json:"include_env,omitempty"`
	IncludeDeps  bool     `json:"include_deps,omitempty"`
	IncludeBuild bool     `json:"include_build,omitempty"`
}

// restoreRequest is the optional body of POST /api/backups/{id}/restore.
type restoreRequest struct {
	TargetAppID string `json:"target_app_id,omitempty"`
}

// List returns backups newest first, filtered by ?app=.
func (h *BackupHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := backupPage.parse(r)
	backups, err := h.Svc.ListBackups(r.Context(), model.BackupFilter{
		AppID: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("app"))),
		Limit: limit,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if backups == nil {
		backups = []*model.Backup{}
	}
	WriteJSON(w, http.StatusOK, backups)
}

// Storage reports disk usage of the backup directory.
func (h *BackupHandlers) Storage(w http.ResponseWriter, r *http.Request) {
	info, err := h.Svc.StorageInfo(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

// Get returns one backup.
func (h *BackupHandlers) Get(w http.ResponseWriter, r *http.Request) {
	backup, err := h.Svc.GetBackup(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, backup)
}

// Create queues a manual backup job.
func (h *BackupHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var body createBackupRequest
	if !DecodeJSON(w, r, &body) {
		return
	}
	id, err := h.Jobs.Submit(r.Context(), model.SubmitRequest{
		AppID:        body.AppID,
		Operation:    model.OperationBackup,
		Description:  body.Description,
		Tags:         body.Tags,
		IncludeEnv:   body.IncludeEnv,
		IncludeDeps:  body.IncludeDeps,
		IncludeBuild: body.IncludeBuild,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// Verify re-checks a backup's archive against its recorded checksum.
func (h *BackupHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.Svc.VerifyBackup(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Restore queues a rollback job to the backup, optionally into another application.
func (h *BackupHandlers) Restore(w http.ResponseWriter, r *http.Request) {
	var body restoreRequest
	if r.ContentLength != 0 && !DecodeJSON(w, r, &body) {
		return
	}
	backup, err := h.Svc.GetBackup(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	id, err := h.Jobs.Submit(r.Context(), model.SubmitRequest{
		AppID:       backup.AppID,
		Operation:   model.OperationRollback,
		BackupID:    backup.ID,
		TargetAppID: body.TargetAppID,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// Delete removes a backup and its archive.
func (h *BackupHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteBackup(r.Context(), r.PathValue("id")); err != nil {
		WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

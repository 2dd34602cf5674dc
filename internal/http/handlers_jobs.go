// Package httpx provides the HTTP API of the deployment engine.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/service"
)

// JobHandlers provides HTTP handlers for deployment jobs.
type JobHandlers struct {
	Svc    *service.SchedulerService
	Logger *slog.Logger
}

// Submit queues a job and answers 202 with its id.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	id, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// List returns jobs newest first, filtered by ?app= and ?status=.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := jobPage.parse(r)
	q := r.URL.Query()
	jobs, err := h.Svc.List(r.Context(), model.JobListOptions{
		AppID:  q.Get("app"),
		Status: model.JobStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// Get returns a job with its step history.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Cancel requests cancellation. cancelled is false when the job had already finished.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Svc.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}

// Progress streams finished steps as newline-delimited JSON until the job ends
// or the client goes away. A stream that fails after the first step ends with
// an {"error": ...} line.
func (h *JobHandlers) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	// Surface a missing job as a plain 404 before committing to a stream.
	if _, err := h.Svc.Status(r.Context(), jobID); err != nil {
		WriteAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	enc := json.NewEncoder(w)
	for step, err := range h.Svc.StreamProgress(r.Context(), jobID) {
		if err != nil {
			if r.Context().Err() == nil {
				_ = enc.Encode(map[string]string{"error": err.Error()})
			}
			return
		}
		if encErr := enc.Encode(step); encErr != nil {
			h.logger().DebugContext(r.Context(), "progress stream closed", "job_id", jobID, "error", encErr)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *JobHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

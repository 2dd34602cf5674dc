package httpx

import (
	"context"
	"net/http"
	"time"
)

// readyTimeout bounds a readiness probe so a stuck store fails the check
// instead of hanging the prober.
const readyTimeout = 2 * time.Second

type healthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// healthHandler reports liveness. It never touches dependencies.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, r, http.StatusOK, healthStatus{Status: "ok"})
}

// readyHandler reports whether the store answers. A nil check is always ready.
func readyHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check == nil {
			writeHealth(w, r, http.StatusOK, healthStatus{Status: "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			writeHealth(w, r, http.StatusServiceUnavailable, healthStatus{Status: "unavailable", Error: err.Error()})
			return
		}
		writeHealth(w, r, http.StatusOK, healthStatus{Status: "ready"})
	}
}

func writeHealth(w http.ResponseWriter, r *http.Request, code int, body healthStatus) {
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		return
	}
	WriteJSON(w, code, body)
}

package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.ValidationField("port", "too big"), http.StatusBadRequest},
		{apperrors.NotFoundf("job %s not found", "x"), http.StatusNotFound},
		{apperrors.Conflictf("busy"), http.StatusConflict},
		{apperrors.SyncConflict([]string{"app.js"}, "local edits"), http.StatusConflict},
		{apperrors.CorruptBackupf("bad"), http.StatusUnprocessableEntity},
		{apperrors.Securityf("path escapes root"), http.StatusForbidden},
		{apperrors.Timeoutf("stage timed out"), http.StatusGatewayTimeout},
		{apperrors.Integration("nginx", "nginx -t failed", nil), http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForError(tt.err), "%v", tt.err)
	}
}

func TestWriteAppError(t *testing.T) {
	t.Run("classified error keeps detail", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteAppError(w, apperrors.ValidationField("port", "port must be at most 65535"))

		require.Equal(t, http.StatusBadRequest, w.Code)
		var body errorBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "validation", body.Error)
		assert.Equal(t, "port", body.Field)
		assert.Contains(t, body.Message, "65535")
	})

	t.Run("sync conflict lists files", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteAppError(w, apperrors.SyncConflict([]string{"server.js", "package.json"}, "CONFLICT (content)"))

		require.Equal(t, http.StatusConflict, w.Code)
		var body errorBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "sync_conflict", body.Error)
		assert.Equal(t, []string{"server.js", "package.json"}, body.Files)
		assert.Equal(t, "CONFLICT (content)", body.Diagnostic)
	})

	t.Run("unclassified error is hidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteAppError(w, errors.New("dial tcp 10.0.0.7:5432: connection refused"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body errorBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal", body.Error)
		assert.Equal(t, "internal error", body.Message)
	})
}

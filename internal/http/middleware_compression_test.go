package httpx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bigJSON = `{"jobs":[` + strings.TrimSuffix(strings.Repeat(`{"status":"pending"},`, 200), ",") + `]}`

func gunzip(t *testing.T, body io.Reader) string {
	t.Helper()
	zr, err := gzip.NewReader(body)
	require.NoError(t, err)
	defer zr.Close()
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(out)
}

func staticHandler(status int, contentType, encoding, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		if encoding != "" {
			w.Header().Set("Content-Encoding", encoding)
		}
		w.WriteHeader(status)
		if body != "" {
			_, _ = io.WriteString(w, body)
		}
	})
}

func TestCompression(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		accept   string
		status   int
		ctype    string
		encoding string
		body     string
		wantGzip bool
		wantVary bool
	}{
		{name: "json above threshold", accept: "gzip", status: 200, ctype: "application/json", body: bigJSON, wantGzip: true, wantVary: true},
		{name: "json below threshold", accept: "gzip", status: 200, ctype: "application/json", body: `{"ok":true}`, wantVary: true},
		{name: "client without gzip", status: 200, ctype: "application/json", body: bigJSON},
		{name: "gzip refused with q=0", accept: "gzip;q=0, deflate", status: 200, ctype: "application/json", body: bigJSON},
		{name: "wildcard accepted", accept: "br, *;q=0.5", status: 200, ctype: "application/json; charset=utf-8", body: bigJSON, wantGzip: true, wantVary: true},
		{name: "binary content", accept: "gzip", status: 200, ctype: "application/octet-stream", body: bigJSON, wantVary: true},
		{name: "already encoded", accept: "gzip", status: 200, ctype: "application/json", encoding: "br", body: bigJSON, wantVary: true},
		{name: "no content", accept: "gzip", status: http.StatusNoContent, wantVary: true},
		{name: "error body", accept: "gzip", status: http.StatusConflict, ctype: "application/json", body: bigJSON, wantGzip: true, wantVary: true},
		{name: "head request", method: http.MethodHead, accept: "gzip", status: 200, ctype: "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := Compression(CompressionConfig{Level: 5, MinSize: 256})
			h := mw(staticHandler(tt.status, tt.ctype, tt.encoding, tt.body))

			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, "/api/jobs", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Encoding", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.wantVary {
				assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
			} else {
				assert.Empty(t, rec.Header().Get("Vary"))
			}
			if tt.wantGzip {
				assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
				assert.Empty(t, rec.Header().Get("Content-Length"))
				assert.Equal(t, tt.body, gunzip(t, rec.Body))
				return
			}
			assert.Equal(t, tt.encoding, rec.Header().Get("Content-Encoding"))
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestCompressionReusesWriters(t *testing.T) {
	h := Compression(CompressionConfig{})(staticHandler(200, "text/plain", "", bigJSON))
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
		require.Equal(t, bigJSON, gunzip(t, rec.Body))
	}
}

func TestCompressionStreaming(t *testing.T) {
	lines := []string{`{"stage":"cloning"}` + "\n", `{"stage":"building"}` + "\n"}

	stream := func(rec *httptest.ResponseRecorder, flushed *[]int) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/x-ndjson")
			for _, line := range lines {
				_, _ = io.WriteString(w, line)
				w.(http.Flusher).Flush()
				*flushed = append(*flushed, rec.Body.Len())
			}
		})
	}

	t.Run("flush below threshold sends identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		var flushed []int
		h := Compression(CompressionConfig{MinSize: 1024})(stream(rec, &flushed))
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/j1/stream", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Equal(t, strings.Join(lines, ""), rec.Body.String())
		assert.Equal(t, []int{len(lines[0]), len(lines[0]) + len(lines[1])}, flushed)
	})

	t.Run("gzip stream emits on every flush", func(t *testing.T) {
		rec := httptest.NewRecorder()
		var flushed []int
		h := Compression(CompressionConfig{})(stream(rec, &flushed))
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/j1/stream", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		h.ServeHTTP(rec, req)

		assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
		require.Len(t, flushed, 2)
		assert.Positive(t, flushed[0])
		assert.Greater(t, flushed[1], flushed[0])
		assert.Equal(t, strings.Join(lines, ""), gunzip(t, rec.Body))
	})
}

func TestAcceptsGzip(t *testing.T) {
	cases := map[string]bool{
		"":                    false,
		"gzip":                true,
		"GZIP":                true,
		"deflate, gzip;q=0.8": true,
		"gzip;q=0":            false,
		"gzip; q=0.000":       false,
		"*":                   true,
		"*;q=0":               false,
		"gzip;q=0, *":         false,
		"br, identity":        false,
		"x-gzip":              false,
		"gzip;level=1;q=0.1":  true,
		"gzip;q=bogus":        false,
	}
	for header, want := range cases {
		assert.Equal(t, want, acceptsGzip(header), "Accept-Encoding %q", header)
	}
}

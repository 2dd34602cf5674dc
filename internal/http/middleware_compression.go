package httpx

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// CompressionConfig configures the gzip middleware.
type CompressionConfig struct {
	// Level is the gzip level (1-9). Out-of-range values fall back to the default level.
	Level int

	// MinSize is the number of body bytes that must be seen before the response
	// is compressed. Smaller bodies are sent as-is. Zero compresses everything.
	MinSize int

	Logger *slog.Logger
}

var compressibleTypes = map[string]bool{
	"application/json":     true,
	"application/x-ndjson": true,
	"application/xml":      true,
	"text/plain":           true,
	"text/html":            true,
	"text/css":             true,
	"text/csv":             true,
	"text/javascript":      true,
	"image/svg+xml":        true,
}

// Compression returns a middleware that gzips responses for clients that
// accept it. HEAD requests, informational and bodiless statuses, bodies that
// already carry a Content-Encoding, and non-text content types pass through.
func Compression(cfg CompressionConfig) func(http.Handler) http.Handler {
	level := cfg.Level
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool := &sync.Pool{New: func() any {
		zw, err := gzip.NewWriterLevel(io.Discard, level)
		if err != nil {
			return gzip.NewWriter(io.Discard)
		}
		return zw
	}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Accept-Encoding")

			cw := &compressWriter{
				ResponseWriter: w,
				ctx:            r.Context(),
				pool:           pool,
				minSize:        max(cfg.MinSize, 0),
				logger:         logger,
			}
			defer cw.finish()
			next.ServeHTTP(cw, r)
		})
	}
}

// acceptsGzip reports whether the Accept-Encoding header admits gzip with a
// non-zero quality. A bare "*" counts as gzip.
func acceptsGzip(header string) bool {
	wildcard := false
	for part := range strings.SplitSeq(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		coding = strings.ToLower(strings.TrimSpace(coding))
		if coding != "gzip" && coding != "*" {
			continue
		}
		ok := qualityAbove0(params)
		if coding == "gzip" {
			return ok
		}
		wildcard = ok
	}
	return wildcard
}

func qualityAbove0(params string) bool {
	for p := range strings.SplitSeq(params, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && q > 0
	}
	return true
}

func compressible(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return compressibleTypes[mediaType]
}

// compressWriter holds the status and the first minSize bytes of the body
// until it can decide between gzip and identity encoding.
type compressWriter struct {
	http.ResponseWriter
	ctx     context.Context
	pool    *sync.Pool
	minSize int
	logger  *slog.Logger

	status  int
	decided bool
	zw      *gzip.Writer
	buf     []byte
}

func (w *compressWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	switch {
	case status < http.StatusOK, status == http.StatusNoContent, status == http.StatusNotModified:
		w.commit(false)
	case w.Header().Get("Content-Encoding") != "":
		w.commit(false)
	case !compressible(w.Header().Get("Content-Type")):
		w.commit(false)
	case w.minSize == 0:
		w.commit(true)
	}
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}
	if !w.decided {
		w.buf = append(w.buf, b...)
		if len(w.buf) < w.minSize {
			return len(b), nil
		}
		w.commit(true)
		if err := w.drain(); err != nil {
			return 0, err
		}
		return len(b), nil
	}
	if w.zw != nil {
		return w.zw.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Flush commits to identity encoding when the threshold has not been reached,
// so streamed progress lines are never held back.
func (w *compressWriter) Flush() {
	if w.status != 0 && !w.decided {
		w.commit(false)
		if err := w.drain(); err != nil {
			w.logger.WarnContext(w.ctx, "flush buffered response failed", "error", err)
		}
	}
	if w.zw != nil {
		if err := w.zw.Flush(); err != nil {
			w.logger.WarnContext(w.ctx, "gzip flush failed", "error", err)
		}
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *compressWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *compressWriter) commit(gz bool) {
	w.decided = true
	if gz {
		zw, _ := w.pool.Get().(*gzip.Writer)
		zw.Reset(w.ResponseWriter)
		w.zw = zw
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *compressWriter) drain() error {
	if len(w.buf) == 0 {
		return nil
	}
	var err error
	if w.zw != nil {
		_, err = w.zw.Write(w.buf)
	} else {
		_, err = w.ResponseWriter.Write(w.buf)
	}
	w.buf = nil
	return err
}

func (w *compressWriter) finish() {
	if w.status == 0 {
		return
	}
	if !w.decided {
		w.commit(false)
	}
	if err := w.drain(); err != nil {
		w.logger.WarnContext(w.ctx, "write buffered response failed", "error", err)
	}
	if w.zw == nil {
		return
	}
	if err := w.zw.Close(); err != nil {
		w.logger.WarnContext(w.ctx, "closing gzip writer failed", "error", err)
	}
	w.zw.Reset(io.Discard)
	w.pool.Put(w.zw)
	w.zw = nil
}

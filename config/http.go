package config

import (
	"strings"
	"time"
)

const defaultHTTPAddr = "127.0.0.1:8080"

// HTTPConfig configures the API listener.
//
// There is no write timeout: progress streams stay open for the length of a
// deployment.
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`

	// APIToken, when set, is required as a bearer token on every /api route.
	APIToken string `env:"HTTP_API_TOKEN"`

	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`
	CompressionLevel   int  `env:"HTTP_COMPRESSION_LEVEL"   envDefault:"6"`
	// Bodies smaller than this many bytes are sent as is.
	CompressionMinSize int `env:"HTTP_COMPRESSION_MIN_SIZE" envDefault:"1024"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT"        envDefault:"30s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT"        envDefault:"120s"`
	// ShutdownTimeout is how long in-flight requests get once shutdown starts.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize trims strings, clamps the gzip level to 1..9 and restores unset
// timeouts.
func (h *HTTPConfig) Sanitize() {
	if h.Addr = strings.TrimSpace(h.Addr); h.Addr == "" {
		h.Addr = defaultHTTPAddr
	}
	h.APIToken = strings.TrimSpace(h.APIToken)

	h.CompressionLevel = min(max(h.CompressionLevel, 1), 9)
	h.CompressionMinSize = max(h.CompressionMinSize, 0)

	for _, t := range []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&h.ReadHeaderTimeout, 10 * time.Second},
		{&h.ReadTimeout, 30 * time.Second},
		{&h.IdleTimeout, 120 * time.Second},
		{&h.ShutdownTimeout, 10 * time.Second},
	} {
		if *t.v <= 0 {
			*t.v = t.def
		}
	}
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Perkybeet/wasm/config"
	httpx "github.com/Perkybeet/wasm/internal/http"
)

// newHTTPServer builds the API server. Request contexts derive from ctx, so
// open progress streams end when the process starts shutting down.
func newHTTPServer(ctx context.Context, cfg config.HTTPConfig, svcs ServiceContainer, logger *slog.Logger) *http.Server {
	if cfg.APIToken == "" {
		logger.Warn("HTTP_API_TOKEN is empty; the API accepts unauthenticated requests")
	}
	return &http.Server{
		Addr: cfg.Addr,
		Handler: buildHTTPHandler(httpHandlerConfig{
			Logger:   logger,
			Services: httpRouterServices(svcs, cfg.APIToken, logger),
			HTTP:     cfg,
		}),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// serveHTTP serves on ln until ctx ends, then gives in-flight requests grace
// to finish.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration, logger *slog.Logger) error {
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	logger.InfoContext(ctx, "http server listening", "addr", ln.Addr().String())

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func httpRouterServices(svcs ServiceContainer, token string, logger *slog.Logger) httpx.RouterServices {
	rs := httpx.RouterServices{
		Jobs:     svcs.Jobs,
		Backups:  svcs.Backups,
		APIToken: token,
		Logger:   logger,
	}
	if repos := svcs.Repos; repos != nil {
		rs.Apps = repos.Apps
		if repos.DB != nil {
			rs.Ready = repos.DB.PingContext
		}
	}
	if reg := svcs.Observability.Prometheus; reg != nil {
		rs.Metrics = reg.Handler()
	}
	return rs
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

// buildHTTPHandler wraps the router as Recover(Logging(Compression(router))),
// so access logs report compressed sizes.
func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	h := httpx.NewRouter(cfg.Services)
	if c := cfg.HTTP; c.CompressionEnabled {
		cfg.Logger.Info("http compression enabled", "level", c.CompressionLevel, "min_size", c.CompressionMinSize)
		h = httpx.Compression(httpx.CompressionConfig{
			Level:   c.CompressionLevel,
			MinSize: c.CompressionMinSize,
			Logger:  cfg.Logger,
		})(h)
	}
	return httpx.Recover(cfg.Logger)(httpx.Logging(cfg.Logger)(h))
}

package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

// NginxOptions configures Nginx.
type NginxOptions struct {
	AvailableDir string
	EnabledDir   string
	Logger       *slog.Logger
}

// Nginx manages sites in the sites-available / sites-enabled layout.
type Nginx struct {
	cmd       Commander
	available string
	enabled   string
	logger    *slog.Logger
}

var _ core.ProxyManager = (*Nginx)(nil)

// NewNginx creates an nginx proxy manager.
func NewNginx(cmd Commander, opts NginxOptions) *Nginx {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Nginx{
		cmd:       cmd,
		available: opts.AvailableDir,
		enabled:   opts.EnabledDir,
		logger:    logger.With("component", "nginx"),
	}
}

func siteFile(domain string) string { return domain + ".conf" }

// CreateSite writes the site config into sites-available.
func (n *Nginx) CreateSite(ctx context.Context, site model.SiteSpec) error {
	if site.Domain == "" {
		return apperrors.ValidationField("domain", "site domain is required")
	}
	if err := os.MkdirAll(n.available, 0o755); err != nil {
		return apperrors.Integration("nginx", "", err)
	}
	if err := writeFileAtomic(filepath.Join(n.available, siteFile(site.Domain)), []byte(site.Content), 0o644); err != nil {
		return apperrors.Integration("nginx", "", fmt.Errorf("write site: %w", err))
	}
	n.logger.InfoContext(ctx, "site written", "domain", site.Domain)
	return nil
}

// Enable links the site into sites-enabled. Re-enabling is a no-op.
func (n *Nginx) Enable(ctx context.Context, id string) error {
	src := filepath.Join(n.available, siteFile(id))
	if _, err := os.Stat(src); err != nil {
		return apperrors.Integration("nginx", "", fmt.Errorf("site %s: %w", id, err))
	}
	if err := os.MkdirAll(n.enabled, 0o755); err != nil {
		return apperrors.Integration("nginx", "", err)
	}
	dst := filepath.Join(n.enabled, siteFile(id))
	if target, err := os.Readlink(dst); err == nil && target == src {
		return nil
	}
	_ = os.Remove(dst)
	if err := os.Symlink(src, dst); err != nil {
		return apperrors.Integration("nginx", "", fmt.Errorf("enable site: %w", err))
	}
	n.logger.InfoContext(ctx, "site enabled", "domain", id)
	return nil
}

// Reload tests the configuration and reloads nginx.
func (n *Nginx) Reload(ctx context.Context) error {
	if _, err := run(ctx, n.cmd, Cmd{Name: "nginx", Args: []string{"-t"}}); err != nil {
		return err
	}
	_, err := run(ctx, n.cmd, Cmd{Name: "systemctl", Args: []string{"reload", "nginx"}})
	return err
}

// RemoveSite deletes the site from both directories. Missing files are ignored.
func (n *Nginx) RemoveSite(ctx context.Context, id string) error {
	var errs []error
	for _, p := range []string{filepath.Join(n.enabled, siteFile(id)), filepath.Join(n.available, siteFile(id))} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return apperrors.Integration("nginx", "", err)
	}
	n.logger.InfoContext(ctx, "site removed", "domain", id)
	return nil
}

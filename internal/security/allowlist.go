// Package security guards the places where the engine would fetch and run
// remote content on the host.
package security

import (
	"net/url"
	"slices"
	"strings"

	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

// DefaultInstallerURLs are the installer scripts the build runner may execute.
var DefaultInstallerURLs = []string{
	"https://deb.nodesource.com/setup_20.x",
	"https://deb.nodesource.com/setup_22.x",
	"https://bun.sh/install",
	"https://get.pnpm.io/install.sh",
}

// Allowlist admits https URLs that exactly match a listed URL or whose host is listed.
// The zero value admits nothing.
type Allowlist struct {
	urls  []string
	hosts []string
}

// NewAllowlist builds an allowlist from exact URLs and bare host names.
func NewAllowlist(urls, hosts []string) *Allowlist {
	a := &Allowlist{}
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			a.urls = append(a.urls, u)
		}
	}
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			a.hosts = append(a.hosts, h)
		}
	}
	return a
}

// InstallerAllowlist returns the allowlist of trusted installer scripts.
func InstallerAllowlist() *Allowlist {
	return NewAllowlist(DefaultInstallerURLs, nil)
}

// Check returns a security error unless raw is admitted.
func (a *Allowlist) Check(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" || u.User != nil {
		return a.reject(raw)
	}
	if a == nil {
		return a.reject(raw)
	}
	if slices.Contains(a.urls, raw) || slices.Contains(a.hosts, strings.ToLower(u.Hostname())) {
		return nil
	}
	return a.reject(raw)
}

func (a *Allowlist) reject(raw string) error {
	err := apperrors.Securityf("untrusted URL %q", raw)
	var allowed []string
	if a != nil {
		allowed = append(allowed, a.urls...)
		allowed = append(allowed, a.hosts...)
	}
	err.Diagnostic = "Only the following URLs are allowed: " + strings.Join(allowed, ", ")
	return err
}

package host

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/domain/model"
)

// Certbot issues Let's Encrypt certificates with the nginx plugin.
type Certbot struct {
	cmd     Commander
	email   string
	liveDir string
}

var _ core.CertificateManager = (*Certbot)(nil)

// DefaultLiveDir is where certbot keeps current certificates.
const DefaultLiveDir = "/etc/letsencrypt/live"

// NewCertbot creates a certificate manager. An empty email registers without one.
func NewCertbot(cmd Commander, email, liveDir string) *Certbot {
	if liveDir == "" {
		liveDir = DefaultLiveDir
	}
	return &Certbot{cmd: cmd, email: email, liveDir: liveDir}
}

func (c *Certbot) record(domain string) model.CertRecord {
	rec := model.CertRecord{Domain: domain}
	rec.CertPath, rec.KeyPath = c.CertPaths(domain)
	if exp, err := certExpiry(rec.CertPath); err == nil {
		rec.ExpiresAt = &exp
	}
	return rec
}

// Issue obtains a certificate for domain.
func (c *Certbot) Issue(ctx context.Context, domain string) (model.CertRecord, error) {
	args := []string{"certonly", "--nginx", "--non-interactive", "--agree-tos", "-d", domain}
	if c.email != "" {
		args = append(args, "-m", c.email)
	} else {
		args = append(args, "--register-unsafely-without-email")
	}
	if _, err := run(ctx, c.cmd, Cmd{Name: "certbot", Args: args}); err != nil {
		return model.CertRecord{}, err
	}
	return c.record(domain), nil
}

// Renew renews the certificate for domain if it is due.
func (c *Certbot) Renew(ctx context.Context, domain string) error {
	_, err := run(ctx, c.cmd, Cmd{Name: "certbot", Args: []string{"renew", "--cert-name", domain, "--non-interactive"}})
	return err
}

// Exists reports whether a certificate for domain is installed.
func (c *Certbot) Exists(_ context.Context, domain string) (bool, error) {
	certPath, _ := c.CertPaths(domain)
	_, err := os.Stat(certPath)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// CertPaths returns where the certificate for domain lives once issued.
func (c *Certbot) CertPaths(domain string) (certPath, keyPath string) {
	dir := filepath.Join(c.liveDir, domain)
	return filepath.Join(dir, "fullchain.pem"), filepath.Join(dir, "privkey.pem")
}

func certExpiry(path string) (t time.Time, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return t, errors.New("no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return t, err
	}
	return cert.NotAfter, nil
}

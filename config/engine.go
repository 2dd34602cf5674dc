package config

import (
	"path/filepath"
	"strings"
	"time"
)

// PathsConfig locates the host directories the engine manages.
type PathsConfig struct {
	// AppsDir holds application trees created by the engine.
	AppsDir string `env:"WASM_APPS_DIR" envDefault:"/var/www"`
	// BackupDir holds one sub-directory of archives per application.
	BackupDir string `env:"WASM_BACKUP_DIR" envDefault:"/var/backups/wasm"`

	NginxAvailableDir string `env:"WASM_NGINX_AVAILABLE_DIR" envDefault:"/etc/nginx/sites-available"`
	NginxEnabledDir   string `env:"WASM_NGINX_ENABLED_DIR"   envDefault:"/etc/nginx/sites-enabled"`
	SystemdDir        string `env:"WASM_SYSTEMD_DIR"         envDefault:"/etc/systemd/system"`

	// CertbotEmail registers certificates; empty registers without an email.
	CertbotEmail   string `env:"WASM_CERTBOT_EMAIL"    envDefault:""`
	CertbotLiveDir string `env:"WASM_CERTBOT_LIVE_DIR" envDefault:"/etc/letsencrypt/live"`
}

// Sanitize cleans configured directories.
func (p *PathsConfig) Sanitize() {
	p.AppsDir = cleanDir(p.AppsDir, "/var/www")
	p.BackupDir = cleanDir(p.BackupDir, "/var/backups/wasm")
	p.NginxAvailableDir = cleanDir(p.NginxAvailableDir, "/etc/nginx/sites-available")
	p.NginxEnabledDir = cleanDir(p.NginxEnabledDir, "/etc/nginx/sites-enabled")
	p.SystemdDir = cleanDir(p.SystemdDir, "/etc/systemd/system")
	p.CertbotLiveDir = cleanDir(p.CertbotLiveDir, "/etc/letsencrypt/live")
	p.CertbotEmail = strings.TrimSpace(p.CertbotEmail)
}

func cleanDir(dir, fallback string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fallback
	}
	return filepath.Clean(dir)
}

// EngineConfig tunes workers and the deployment pipeline.
type EngineConfig struct {
	// Workers is the number of jobs executed concurrently.
	Workers int `env:"ENGINE_WORKERS" envDefault:"2"`
	// Lease is how long a reserved job stays owned without a heartbeat.
	Lease time.Duration `env:"ENGINE_LEASE" envDefault:"30s"`
	// PollInterval bounds how long an idle worker waits before checking the queue.
	PollInterval time.Duration `env:"ENGINE_POLL_INTERVAL" envDefault:"5s"`

	StageTimeout time.Duration `env:"ENGINE_STAGE_TIMEOUT" envDefault:"10m"`
	BuildTimeout time.Duration `env:"ENGINE_BUILD_TIMEOUT" envDefault:"30m"`

	VerifyRetries     int           `env:"ENGINE_VERIFY_RETRIES"      envDefault:"3"`
	VerifyBackoffBase time.Duration `env:"ENGINE_VERIFY_BACKOFF_BASE" envDefault:"2s"`
	VerifyBackoffMax  time.Duration `env:"ENGINE_VERIFY_BACKOFF_MAX"  envDefault:"30s"`
	VerifyTimeout     time.Duration `env:"ENGINE_VERIFY_TIMEOUT"      envDefault:"10s"`

	// OOMExitCodes are build exit codes classified as out-of-memory kills.
	OOMExitCodes []int `env:"ENGINE_OOM_EXIT_CODES" envDefault:"137" envSeparator:","`

	// ServiceUser runs application units.
	ServiceUser string `env:"ENGINE_SERVICE_USER" envDefault:"www-data"`
	// HealthHost is the address health checks connect to.
	HealthHost string `env:"ENGINE_HEALTH_HOST" envDefault:"127.0.0.1"`

	// ArchiveHosts admits remote archive sources by host name. Empty refuses them.
	ArchiveHosts []string `env:"ENGINE_ARCHIVE_HOSTS" envDefault:"" envSeparator:","`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	if e.Workers < 1 {
		e.Workers = 1
	}
	if e.Lease < 5*time.Second {
		e.Lease = 5 * time.Second
	}
	if e.PollInterval < 100*time.Millisecond {
		e.PollInterval = 100 * time.Millisecond
	}
	if e.StageTimeout < time.Second {
		e.StageTimeout = 10 * time.Minute
	}
	if e.BuildTimeout < e.StageTimeout {
		e.BuildTimeout = e.StageTimeout
	}
	if e.VerifyRetries < 1 {
		e.VerifyRetries = 1
	}
	if e.VerifyBackoffBase <= 0 {
		e.VerifyBackoffBase = 2 * time.Second
	}
	if e.VerifyBackoffMax < e.VerifyBackoffBase {
		e.VerifyBackoffMax = e.VerifyBackoffBase
	}
	if e.VerifyTimeout <= 0 {
		e.VerifyTimeout = 10 * time.Second
	}
	if len(e.OOMExitCodes) == 0 {
		e.OOMExitCodes = []int{137}
	}
	if e.ServiceUser = strings.TrimSpace(e.ServiceUser); e.ServiceUser == "" {
		e.ServiceUser = "www-data"
	}
	if e.HealthHost = strings.TrimSpace(e.HealthHost); e.HealthHost == "" {
		e.HealthHost = "127.0.0.1"
	}
	hosts := e.ArchiveHosts[:0]
	for _, h := range e.ArchiveHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	e.ArchiveHosts = hosts
}

// BackupConfig controls backup retention and update preservation.
type BackupConfig struct {
	// Retention is how many backups to keep per application; zero keeps all.
	Retention int `env:"BACKUP_RETENTION" envDefault:"5"`
	// PreserveGlobs name ignored files that survive a source update.
	PreserveGlobs []string `env:"BACKUP_PRESERVE_GLOBS" envDefault:".env,.env.*" envSeparator:","`
}

// Sanitize applies guardrails to backup configuration values.
func (b *BackupConfig) Sanitize() {
	if b.Retention < 0 {
		b.Retention = 0
	}
	globs := b.PreserveGlobs[:0]
	for _, g := range b.PreserveGlobs {
		if g = strings.TrimSpace(g); g != "" {
			globs = append(globs, g)
		}
	}
	b.PreserveGlobs = globs
}

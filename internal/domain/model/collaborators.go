package model

import "time"

// TemplateKind selects a config template.
type TemplateKind string

const (
	TemplateSystemd TemplateKind = "systemd"
	TemplateNginx   TemplateKind = "nginx"
)

// RenderContext is the data handed to the config renderer.
type RenderContext struct {
	Domain      string
	Root        string
	ServeDir    string
	Port        int
	AppType     AppType
	ServiceName string
	Start       []string
	Env         map[string]string
	SSL         bool
	CertPath    string
	KeyPath     string
	User        string
}

// UnitSpec is a rendered service unit.
type UnitSpec struct {
	Name    string
	Content string
}

// SiteSpec is a rendered proxy site.
type SiteSpec struct {
	Domain  string
	Content string
}

// ServiceStatus is what the service manager reports for a unit.
type ServiceStatus struct {
	Active bool
	PID    int
}

// CertRecord describes an issued certificate.
type CertRecord struct {
	Domain    string
	CertPath  string
	KeyPath   string
	ExpiresAt *time.Time
}

// CommandResult is the outcome of an install or build command.
type CommandResult struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// HealthCheck describes a bounded readiness probe.
type HealthCheck struct {
	URL     string
	Host    string
	Timeout time.Duration
	// Expect is an optional JMESPath expression evaluated against a JSON body; it must yield a truthy value.
	Expect string
}

package core

import (
	"context"

	"github.com/Perkybeet/wasm/internal/domain/model"
)

// ConfigRenderer renders proxy and service configuration. Implementations must be side-effect free.
type ConfigRenderer interface {
	Render(ctx context.Context, kind model.TemplateKind, data model.RenderContext) (string, error)
}

// ServiceManager supervises application processes.
type ServiceManager interface {
	Create(ctx context.Context, unit model.UnitSpec) error
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (model.ServiceStatus, error)
	Remove(ctx context.Context, id string) error
}

// ProxyManager wires applications into the reverse proxy.
type ProxyManager interface {
	CreateSite(ctx context.Context, site model.SiteSpec) error
	Enable(ctx context.Context, id string) error
	Reload(ctx context.Context) error
	RemoveSite(ctx context.Context, id string) error
}

// CertificateManager issues TLS certificates.
type CertificateManager interface {
	Issue(ctx context.Context, domain string) (model.CertRecord, error)
	Renew(ctx context.Context, domain string) error
	Exists(ctx context.Context, domain string) (bool, error)
	// CertPaths returns where the certificate and key for domain live once issued.
	CertPaths(domain string) (certPath, keyPath string)
}

// BuildRunner installs dependencies and builds an application tree.
// A non-zero exit code is reported in the result, not as an error.
type BuildRunner interface {
	Install(ctx context.Context, appType model.AppType, root string) (model.CommandResult, error)
	Build(ctx context.Context, appType model.AppType, root string) (model.CommandResult, error)
}

// HealthChecker probes a running application.
type HealthChecker interface {
	Check(ctx context.Context, check model.HealthCheck) error
}

// SourceSyncer fetches and updates application source.
type SourceSyncer interface {
	Fetch(ctx context.Context, spec model.SourceSpec) (*model.WorkingTree, error)
	Sync(ctx context.Context, tree *model.WorkingTree) (*model.SyncResult, error)
	CurrentRef(ctx context.Context, root string) (commit, branch string, err error)
}

// BackupManager snapshots and restores application trees.
type BackupManager interface {
	CreateBackup(ctx context.Context, appID string, opts model.BackupOptions) (*model.Backup, error)
	VerifyBackup(ctx context.Context, id string) (*model.VerificationResult, error)
	RestoreBackup(ctx context.Context, id, targetAppID string) (*model.RestoreResult, error)
	LatestBackup(ctx context.Context, appID string) (*model.Backup, error)
}

// ProgressPublisher fans job progress out to observers.
type ProgressPublisher interface {
	Publish(ctx context.Context, event model.ProgressEvent)
}

// ProgressRelay forwards wake-ups and progress to other engine processes
// sharing the store. Delivery is best effort.
type ProgressRelay interface {
	Signal(ctx context.Context, topic string, payload []byte) error
	SaveSnapshot(ctx context.Context, event model.ProgressEvent) error
}

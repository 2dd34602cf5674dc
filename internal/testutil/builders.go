package testutil

import (
	"encoding/json"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/model"
)

// SubmitRequestBuilder provides a fluent interface for building SubmitRequest objects for testing.
type SubmitRequestBuilder struct {
	req model.SubmitRequest
}

// NewSubmitRequest creates a builder for a create request with sensible defaults.
func NewSubmitRequest() *SubmitRequestBuilder {
	return &SubmitRequestBuilder{
		req: model.SubmitRequest{
			AppID:     "shop.example.com",
			Operation: model.OperationCreate,
			Source:    "https://git.example.com/acme/shop.git",
			Branch:    "main",
			Port:      3000,
		},
	}
}

// WithAppID sets the target application.
func (b *SubmitRequestBuilder) WithAppID(appID string) *SubmitRequestBuilder {
	b.req.AppID = appID
	return b
}

// WithOperation sets the operation.
func (b *SubmitRequestBuilder) WithOperation(op model.Operation) *SubmitRequestBuilder {
	b.req.Operation = op
	return b
}

// WithSource sets the source URL or local path.
func (b *SubmitRequestBuilder) WithSource(source string) *SubmitRequestBuilder {
	b.req.Source = source
	return b
}

// WithBranch sets the branch.
func (b *SubmitRequestBuilder) WithBranch(branch string) *SubmitRequestBuilder {
	b.req.Branch = branch
	return b
}

// WithAppType forces an app type instead of detection.
func (b *SubmitRequestBuilder) WithAppType(appType model.AppType) *SubmitRequestBuilder {
	b.req.AppType = appType
	return b
}

// WithBackupID sets the backup for rollback requests.
func (b *SubmitRequestBuilder) WithBackupID(id string) *SubmitRequestBuilder {
	b.req.BackupID = id
	return b
}

// Build returns the request.
func (b *SubmitRequestBuilder) Build() model.SubmitRequest {
	return b.req
}

// JSON returns the request encoded as stored on a job.
func (b *SubmitRequestBuilder) JSON() json.RawMessage {
	raw, err := json.Marshal(b.req)
	if err != nil {
		//nolint:forbidigo // fixture encoding cannot fail for these types
		panic(err)
	}
	return raw
}

// NewJob builds a queued job record for req.
func NewJob(req model.SubmitRequest) *model.Job {
	raw, err := json.Marshal(req)
	if err != nil {
		//nolint:forbidigo // fixture encoding cannot fail for these types
		panic(err)
	}
	return &model.Job{
		AppID:     req.AppID,
		Operation: req.Operation,
		Status:    model.JobStatusQueued,
		Request:   raw,
	}
}

// NewApplication returns an active application rooted at root.
func NewApplication(id, root string, appType model.AppType) *model.Application {
	now := TestTime()
	return &model.Application{
		ID:        id,
		AppType:   appType,
		Root:      root,
		Port:      3000,
		State:     model.AppStateActive,
		Source:    "https://git.example.com/acme/shop.git",
		Branch:    "main",
		Env:       map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewBackup returns an unverified manual backup record for appID created at ts.
func NewBackup(id, appID string, ts time.Time) *model.Backup {
	return &model.Backup{
		ID:           id,
		AppID:        appID,
		Location:     "/var/backups/wasm/" + appID + "/" + id + ".tar.gz",
		Checksum:     "0000000000000000000000000000000000000000000000000000000000000000",
		CreatedAt:    ts,
		Verification: model.VerificationUnverified,
		Kind:         model.BackupKindManual,
	}
}

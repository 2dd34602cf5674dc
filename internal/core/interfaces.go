package core

import (
	"context"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces; internal/data provides the SQL implementations.

// ApplicationRepository defines data operations for managed applications.
type ApplicationRepository interface {
	Create(ctx context.Context, app *model.Application) error
	Upsert(ctx context.Context, app *model.Application) error
	GetByID(ctx context.Context, id string) (*model.Application, error)
	List(ctx context.Context, filter model.ApplicationFilter) ([]*model.Application, error)
}

// JobRepository defines data operations for jobs and their step history.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	ListSteps(ctx context.Context, jobID string, afterSeq int) ([]model.Step, error)
	UpdateStatus(ctx context.Context, update model.JobStatusUpdate) (bool, error)
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error)
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	RequestCancel(ctx context.Context, jobID string) (model.JobStatus, error)
	BeginStep(ctx context.Context, jobID string, stage model.Stage) (model.Step, error)
	CommitStage(ctx context.Context, commit model.StageCommit) error
	ActiveForApp(ctx context.Context, appID string) (*model.Job, error)
}

// BackupRepository defines data operations for backup records.
type BackupRepository interface {
	Create(ctx context.Context, backup *model.Backup) error
	GetByID(ctx context.Context, id string) (*model.Backup, error)
	// ListByApp returns the application's backups newest first.
	ListByApp(ctx context.Context, appID string) ([]*model.Backup, error)
	List(ctx context.Context, filter model.BackupFilter) ([]*model.Backup, error)
	SetVerification(ctx context.Context, id string, v model.Verification) error
	Delete(ctx context.Context, id string) error
}

// DeleteOldJobsParams groups parameters for ReaperRepository.DeleteOldJobs.
type DeleteOldJobsParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines maintenance operations on the job table.
type ReaperRepository interface {
	RequeueExpired(ctx context.Context) (int64, error)
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

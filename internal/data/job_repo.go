package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Perkybeet/wasm/internal/data/database"
	"github.com/Perkybeet/wasm/internal/data/dbutil"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/google/uuid"
)

// JobRepo provides database operations for jobs and their step history.
type JobRepo struct {
	base
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	return &JobRepo{base: newBase(db, cfg, "job_repo")}
}

var jobColumnList = []string{
	"id", "app_id", "operation", "status", "stage", "request", "backup_id",
	"error_kind", "error_stage", "error_detail", "rollback_error", "warning",
	"cancel_requested", "rolled_back", "lease_expires_at",
	"created_at", "started_at", "completed_at", "updated_at",
}

var jobColumns = strings.Join(jobColumnList, ", ")

// activeStatuses are the statuses covered by the one-active-job-per-app index.
var activeStatuses = []string{string(model.JobStatusQueued), string(model.JobStatusRunning)}

var terminalStatuses = []string{
	string(model.JobStatusSucceeded), string(model.JobStatusSucceededWithWarning),
	string(model.JobStatusFailed), string(model.JobStatusCancelled),
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job                       model.Job
		request                   []byte
		lease, started, completed sql.NullTime
	)
	if err := row.Scan(
		&job.ID, &job.AppID, &job.Operation, &job.Status, &job.Stage, &request, &job.BackupID,
		&job.ErrorKind, &job.ErrorStage, &job.ErrorDetail, &job.RollbackError, &job.Warning,
		&job.CancelRequested, &job.RolledBack, &lease,
		&job.CreatedAt, &started, &completed, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Request = append([]byte(nil), request...)
	job.LeaseExpiresAt = timePtr(lease)
	job.StartedAt = timePtr(started)
	job.CompletedAt = timePtr(completed)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

// Create records a queued job. It fails with a Conflict error when the
// application already has a queued or running job.
func (r *JobRepo) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job == nil || strings.TrimSpace(job.AppID) == "" {
		return nil, apperrors.ValidationField("app_id", "app_id is required")
	}
	if !job.Operation.Valid() {
		return nil, apperrors.ValidationField("operation", fmt.Sprintf("invalid operation %q", job.Operation))
	}

	rec := *job
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = model.JobStatusQueued
	}
	if len(rec.Request) == 0 {
		rec.Request = []byte("{}")
	}
	now := r.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Steps = nil

	_, err := r.DB.ExecContext(ctx, r.q(`
		INSERT INTO jobs (
		  id, app_id, operation, status, stage, request, backup_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.AppID, string(rec.Operation), string(rec.Status), string(rec.Stage),
		string(rec.Request), rec.BackupID, now, now,
	)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &rec, nil
}

// GetByID returns the job with its ordered step history.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := scanJob(r.DB.QueryRowContext(ctx, r.q(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	steps, err := r.ListSteps(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	job.Steps = steps
	return job, nil
}

// List returns jobs newest first. Steps are not loaded.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	qopts := []database.ListQueryOption{
		database.WithColumns(jobColumnList...),
		database.WithOrderBy("created_at", "DESC"),
		database.WithOrderBy("id", "DESC"),
	}
	if opts.AppID != "" {
		qopts = append(qopts, database.WithCondition(database.WhereCond("app_id", database.Equal, opts.AppID)))
	}
	if opts.Status != "" {
		qopts = append(qopts, database.WithCondition(database.WhereCond("status", database.Equal, string(opts.Status))))
	}
	qopts = append(qopts, pageOptions(opts.Limit, opts.Offset)...)
	query, args := database.BuildListQuery(database.NewListQueryOptions("jobs", qopts...))

	return r.queryJobs(ctx, r.q(query), args...)
}

func (r *JobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// ActiveForApp returns the application's queued or running job, or nil when there is none.
func (r *JobRepo) ActiveForApp(ctx context.Context, appID string) (*model.Job, error) {
	job, err := scanJob(r.DB.QueryRowContext(ctx,
		r.q(`SELECT `+jobColumns+` FROM jobs WHERE app_id = ? AND status IN (?, ?)`),
		appID, activeStatuses[0], activeStatuses[1]))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absence is not an error here
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// UpdateStatus moves a non-terminal job to update.Status. Terminal jobs are
// never changed again: the call returns a Conflict error for them.
func (r *JobRepo) UpdateStatus(ctx context.Context, update model.JobStatusUpdate) (bool, error) {
	if !update.Status.Valid() {
		return false, apperrors.ValidationField("status", fmt.Sprintf("invalid job status %q", update.Status))
	}
	now := r.now()

	var (
		n   int64
		err error
	)
	if update.Status.Terminal() {
		n, err = dbutil.ExecCount(ctx, r.DB, r.q(`
			UPDATE jobs
			SET status = ?, error_kind = ?, error_stage = ?, error_detail = ?, rollback_error = ?,
			    warning = ?, rolled_back = ?, completed_at = ?, lease_expires_at = NULL, updated_at = ?
			WHERE id = ? AND status IN (?, ?)`),
			string(update.Status), update.ErrorKind, string(update.ErrorStage), update.Detail, update.RollbackError,
			update.Warning, update.RolledBack, now, now,
			update.ID, activeStatuses[0], activeStatuses[1],
		)
	} else {
		n, err = dbutil.ExecCount(ctx, r.DB, r.q(`
			UPDATE jobs
			SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ?
			WHERE id = ? AND status IN (?, ?)`),
			string(update.Status), now, now,
			update.ID, activeStatuses[0], activeStatuses[1],
		)
	}
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	if n == 1 {
		return true, nil
	}

	current, err := r.statusOf(ctx, update.ID)
	if err != nil {
		return false, err
	}
	return false, apperrors.Conflictf("job %s is already %s", update.ID, current)
}

func (r *JobRepo) statusOf(ctx context.Context, id string) (model.JobStatus, error) {
	var status model.JobStatus
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT status FROM jobs WHERE id = ?`), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return "", apperrors.MapDBError(err)
	}
	return status, nil
}

// ReserveNext leases the oldest queued job to the caller. Jobs whose lease
// expired are requeued first so a crashed worker's job resumes from its last
// committed stage. Returns model.ErrNoJobsAvailable when the queue is empty.
func (r *JobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	if leaseSeconds <= 0 {
		return nil, apperrors.ValidationField("lease_seconds", "lease must be positive")
	}
	if n, err := r.RequeueExpired(ctx); err != nil {
		return nil, err
	} else if n > 0 {
		r.logger.WarnContext(ctx, "requeued jobs with expired leases", "count", n)
	}

	now := r.now()
	lease := now.Add(secondsDuration(leaseSeconds))
	row := r.DB.QueryRowContext(ctx, r.q(`
		UPDATE jobs
		SET status = ?, started_at = COALESCE(started_at, ?), lease_expires_at = ?, updated_at = ?
		WHERE id = (
		  SELECT id FROM jobs
		  WHERE status = ?
		  ORDER BY created_at, id
		  LIMIT 1`+r.dialect.skipLocked()+`
		) AND status = ?
		RETURNING `+jobColumns),
		string(model.JobStatusRunning), now, lease, now,
		string(model.JobStatusQueued), string(model.JobStatusQueued),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNoJobsAvailable
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	steps, err := r.ListSteps(ctx, job.ID, 0)
	if err != nil {
		return nil, err
	}
	job.Steps = steps
	return job, nil
}

// Heartbeat extends the lease of a running job. It returns false when the job
// is no longer running.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	now := r.now()
	n, err := dbutil.ExecCount(ctx, r.DB, r.q(`
		UPDATE jobs SET lease_expires_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		now.Add(secondsDuration(leaseSeconds)), now, jobID, string(model.JobStatusRunning))
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return n == 1, nil
}

// RequestCancel cancels a queued job immediately or flags a running job so the
// pipeline stops at its next stage boundary. It returns the job's resulting
// status; terminal jobs are left untouched.
func (r *JobRepo) RequestCancel(ctx context.Context, jobID string) (model.JobStatus, error) {
	var status model.JobStatus
	err := dbutil.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		now := r.now()
		n, err := dbutil.ExecCount(ctx, tx, r.q(`
			UPDATE jobs
			SET status = ?, error_kind = ?, error_detail = ?, cancel_requested = TRUE,
			    completed_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`),
			string(model.JobStatusCancelled), string(apperrors.ErrCodeCanceled), "cancelled before start",
			now, now, jobID, string(model.JobStatusQueued))
		if err != nil {
			return err
		}
		if n == 1 {
			status = model.JobStatusCancelled
			return nil
		}

		n, err = dbutil.ExecCount(ctx, tx, r.q(`
			UPDATE jobs SET cancel_requested = TRUE, updated_at = ?
			WHERE id = ? AND status = ?`),
			now, jobID, string(model.JobStatusRunning))
		if err != nil {
			return err
		}
		if n == 1 {
			status = model.JobStatusRunning
			return nil
		}

		if scanErr := tx.QueryRowContext(ctx, r.q(`SELECT status FROM jobs WHERE id = ?`), jobID).Scan(&status); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return apperrors.NotFoundf("job %s not found", jobID)
			}
			return scanErr
		}
		return nil
	})
	if err != nil {
		return "", apperrors.MapDBError(err)
	}
	return status, nil
}

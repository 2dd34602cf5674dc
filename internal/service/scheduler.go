// Package service provides the deployment engine's business services: job
// scheduling, backups and progress fan-out.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/Perkybeet/wasm/internal/core"
	domainjob "github.com/Perkybeet/wasm/internal/domain/job"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/Perkybeet/wasm/internal/observability/metrics"
	"github.com/Perkybeet/wasm/internal/observability/statsd"
)

const (
	defaultListLimit    = 50
	maxListLimit        = 500
	defaultStreamPoll   = 2 * time.Second
	jobTransitionQueued = "queued"
)

// SchedulerServiceOptions groups dependencies for SchedulerService.
type SchedulerServiceOptions struct {
	Jobs    core.JobRepository         // Required: job store
	Apps    core.ApplicationRepository // Required: application store
	Backups core.BackupRepository      // Optional: checks requested backups exist
	Hub     *ProgressHub               // Optional: wakes workers and stream observers
	Logger  *slog.Logger               // Optional: structured logger
	Metrics statsd.Sink                // Optional: metrics sink (StatsD-compatible)
	// StreamPoll bounds how long StreamProgress waits for a notification
	// before re-reading the store.
	StreamPoll time.Duration
}

// SchedulerService accepts jobs, reports on them and streams their progress.
// Execution belongs to the worker pool.
type SchedulerService struct {
	jobs       core.JobRepository
	apps       core.ApplicationRepository
	backups    core.BackupRepository
	hub        *ProgressHub
	logger     *slog.Logger
	metrics    statsd.Sink
	streamPoll time.Duration
}

// NewSchedulerService constructs a SchedulerService.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Apps == nil {
		return nil, errors.New("ApplicationRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poll := opts.StreamPoll
	if poll <= 0 {
		poll = defaultStreamPoll
	}
	return &SchedulerService{
		jobs:       opts.Jobs,
		apps:       opts.Apps,
		backups:    opts.Backups,
		hub:        opts.Hub,
		logger:     logger.With("component", "scheduler"),
		metrics:    opts.Metrics,
		streamPoll: poll,
	}, nil
}

// MustNewSchedulerService constructs a SchedulerService and panics on error.
func MustNewSchedulerService(opts SchedulerServiceOptions) *SchedulerService {
	svc, err := NewSchedulerService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create SchedulerService: %v", err))
	}
	return svc
}

// Submit validates req and queues a job for it. Nothing is persisted when
// validation fails. A Conflict error means the application already has an
// active job.
func (s *SchedulerService) Submit(ctx context.Context, req model.SubmitRequest) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		var fe *model.FieldError
		if errors.As(err, &fe) {
			return "", apperrors.ValidationField(fe.Field, fe.Field+" "+fe.Message)
		}
		return "", apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request")
	}
	if err := s.checkApplication(ctx, req); err != nil {
		return "", err
	}
	if err := s.checkBackup(ctx, req); err != nil {
		return "", err
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	job, err := s.jobs.Create(ctx, &model.Job{
		AppID:     req.AppID,
		Operation: req.Operation,
		Status:    model.JobStatusQueued,
		Request:   raw,
	})
	if err != nil {
		if apperrors.IsConflict(err) {
			return "", apperrors.Conflictf("application %s already has an active job", req.AppID)
		}
		return "", fmt.Errorf("record job: %w", err)
	}

	if s.hub != nil {
		s.hub.JobAvailable(ctx)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Operation:  string(job.Operation),
		Transition: jobTransitionQueued,
		Result:     metrics.ResultSuccess,
	})
	s.logger.InfoContext(ctx, "job queued",
		"job_id", job.ID,
		"app_id", job.AppID,
		"operation", string(job.Operation),
	)
	return job.ID, nil
}

// checkApplication enforces existence rules: create needs a free (or
// replaceable) domain, every other operation an existing application.
func (s *SchedulerService) checkApplication(ctx context.Context, req model.SubmitRequest) error {
	app, err := s.apps.GetByID(ctx, req.AppID)
	if err != nil && !apperrors.IsNotFound(err) {
		return fmt.Errorf("load application: %w", err)
	}
	exists := err == nil && app.State != model.AppStateDeleted

	if req.Operation == model.OperationCreate {
		if err == nil && !app.State.Replaceable() {
			return apperrors.Conflictf("application %s already exists (%s)", req.AppID, app.State)
		}
		return nil
	}
	if !exists {
		return apperrors.NotFoundf("application %s not found", req.AppID)
	}
	return nil
}

func (s *SchedulerService) checkBackup(ctx context.Context, req model.SubmitRequest) error {
	if req.Operation != model.OperationRollback || req.BackupID == "" || s.backups == nil {
		return nil
	}
	if _, err := s.backups.GetByID(ctx, req.BackupID); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NotFoundf("backup %s not found", req.BackupID)
		}
		return fmt.Errorf("load backup: %w", err)
	}
	return nil
}

// Status returns the job with its step history.
func (s *SchedulerService) Status(ctx context.Context, jobID string) (*model.Job, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// Cancel requests cancellation. A queued job is cancelled immediately; a
// running job stops at its next stage boundary. It reports false when the job
// had already finished.
func (s *SchedulerService) Cancel(ctx context.Context, jobID string) (bool, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() {
		return false, nil
	}

	status, err := s.jobs.RequestCancel(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	switch status {
	case model.JobStatusCancelled:
		s.logger.InfoContext(ctx, "queued job cancelled", "job_id", jobID, "app_id", job.AppID)
		if s.hub != nil {
			s.hub.Publish(ctx, model.ProgressEvent{JobID: jobID, AppID: job.AppID, Status: status})
		}
		return true, nil
	case model.JobStatusRunning:
		s.logger.InfoContext(ctx, "cancellation requested", "job_id", jobID, "app_id", job.AppID)
		return true, nil
	default:
		// Finished between the read and the request.
		return false, nil
	}
}

// List returns jobs newest first.
func (s *SchedulerService) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultListLimit
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	opts.Offset = max(opts.Offset, 0)
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, apperrors.ValidationField("status", fmt.Sprintf("unknown status %q", opts.Status))
	}
	return s.jobs.List(ctx, opts)
}

// StreamProgress yields the job's finished steps in order: first those
// already recorded, then each one as it completes. The sequence ends after
// the last step of a finished job, or with an error when the job cannot be
// read or ctx ends. Each call is an independent observer.
func (s *SchedulerService) StreamProgress(ctx context.Context, jobID string) iter.Seq2[model.Step, error] {
	return func(yield func(model.Step, error) bool) {
		wake := (<-chan struct{})(nil)
		if s.hub != nil {
			unsub, ch := s.hub.Subscribe(domainjob.ProgressTopic(jobID))
			defer unsub()
			wake = ch
		}
		poll := time.NewTicker(s.streamPoll)
		defer poll.Stop()

		last := 0
		for {
			// Status is read before steps: a job seen finished has committed
			// every step, so none can be missed.
			job, err := s.jobs.GetByID(ctx, jobID)
			if err != nil {
				yield(model.Step{}, err)
				return
			}
			steps, err := s.jobs.ListSteps(ctx, jobID, last)
			if err != nil {
				yield(model.Step{}, err)
				return
			}
			for _, step := range steps {
				if !step.Done() {
					break
				}
				if !yield(step, nil) {
					return
				}
				last = step.Seq
			}
			if job.Status.Terminal() {
				return
			}

			select {
			case <-ctx.Done():
				yield(model.Step{}, ctx.Err())
				return
			case _, ok := <-wake:
				if !ok {
					wake = nil
				}
			case <-poll.C:
			}
		}
	}
}

// Package jobrunner runs the deployment engine's worker pool: it leases queued
// jobs and drives each through the pipeline while keeping its lease alive.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Perkybeet/wasm/internal/core"
	domainjob "github.com/Perkybeet/wasm/internal/domain/job"
	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/observability/metrics"
	"github.com/Perkybeet/wasm/internal/observability/notify"
	"github.com/Perkybeet/wasm/internal/observability/statsd"
	"github.com/Perkybeet/wasm/internal/service/failurenotifier"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLease        = 30 * time.Second
	defaultPollInterval = 5 * time.Second
)

// Executor drives one reserved job to a terminal status. A returned error
// means the job was left running for a later attempt.
type Executor interface {
	Run(ctx context.Context, job *model.Job) error
}

// Waker delivers wake-ups for a notifier topic.
type Waker interface {
	Subscribe(topic string) (func(), <-chan struct{})
}

// FailureNotifier is told about jobs that end failed.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}

// RunnerOptions configures the worker pool.
type RunnerOptions struct {
	Jobs     core.JobRepository // Required: job store
	Executor Executor           // Required: usually the deployment pipeline
	Waker    Waker              // Optional: wakes idle workers when jobs are queued
	Failures FailureNotifier    // Optional: operator alerts for failed jobs
	Logger   *slog.Logger
	Metrics  statsd.Sink

	Lease       time.Duration // per-job lease; defaults to 30s
	Concurrency int           // number of workers; defaults to 1
	// PollInterval bounds how long an idle worker sleeps without a wake-up.
	PollInterval time.Duration
}

// Runner leases jobs and executes them.
type Runner struct {
	jobs     core.JobRepository
	executor Executor
	waker    Waker
	failures FailureNotifier
	logger   *slog.Logger
	metrics  statsd.Sink
	lease    *domainjob.LeasePolicy
	workers  int
	poll     time.Duration
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	policy, err := domainjob.NewLeasePolicy(lease)
	if err != nil {
		return nil, fmt.Errorf("lease policy: %w", err)
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Runner{
		jobs:     opts.Jobs,
		executor: opts.Executor,
		waker:    opts.Waker,
		failures: opts.Failures,
		logger:   logger.With("component", "job_runner"),
		metrics:  opts.Metrics,
		lease:    policy,
		workers:  max(opts.Concurrency, 1),
		poll:     poll,
	}, nil
}

// Run starts the workers and blocks until ctx is cancelled or a worker hits
// an error it cannot recover from. Graceful shutdown returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "lease", r.lease.Default())

	g, gctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		g.Go(func() error {
			return r.workerLoop(gctx, i)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Runner) workerLoop(ctx context.Context, worker int) error {
	var wake <-chan struct{}
	if r.waker != nil {
		unsub, ch := r.waker.Subscribe(domainjob.QueueTopic)
		defer unsub()
		wake = ch
	}
	log := r.logger.With("worker", worker)
	seconds := r.lease.Seconds(0)

	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, seconds)
		switch {
		case err == nil:
			r.processJob(ctx, log, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForWork(ctx, &wake) {
				return ctx.Err()
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			// The store may be briefly unavailable; back off and retry.
			log.ErrorContext(ctx, "reserve next job", "error", err)
			if !r.waitForWork(ctx, &wake) {
				return ctx.Err()
			}
		}
	}
	return ctx.Err()
}

// waitForWork sleeps until a wake-up, the poll interval or ctx. It reports
// false once ctx is done.
func (r *Runner) waitForWork(ctx context.Context, wake *<-chan struct{}) bool {
	timer := time.NewTimer(r.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-*wake:
		if !ok {
			*wake = nil
		}
		return true
	case <-timer.C:
		return true
	}
}

// processJob runs one job under a heartbeat. Losing the lease cancels the
// job's context so the pipeline stops at its next store write.
func (r *Runner) processJob(ctx context.Context, log *slog.Logger, job *model.Job) {
	start := time.Now()
	log = log.With("job_id", job.ID, "app_id", job.AppID, "operation", string(job.Operation))
	log.InfoContext(ctx, "job reserved", "stage", string(job.Stage))

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		r.heartbeat(jobCtx, log, job.ID, cancel)
	}()

	err := r.executor.Run(jobCtx, job)
	cancel(nil)
	<-hbDone

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		if cause := context.Cause(jobCtx); errors.Is(cause, errLeaseLost) {
			err = cause
		}
		log.WarnContext(ctx, "job left unfinished", "error", err)
	} else {
		r.reportOutcome(ctx, log, job.ID)
	}
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Operation:  string(job.Operation),
		Transition: "executed",
		Result:     result,
		Duration:   time.Since(start),
		Err:        err,
	})
}

var errLeaseLost = errors.New("job lease lost")

// reportOutcome logs the finished job and alerts operators when it failed.
func (r *Runner) reportOutcome(ctx context.Context, log *slog.Logger, jobID string) {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		log.WarnContext(ctx, "load finished job", "error", err)
		return
	}
	log.InfoContext(ctx, "job finished", "status", string(job.Status))
	if job.Status != model.JobStatusFailed || r.failures == nil {
		return
	}
	r.failures.NotifyJobFailure(ctx, failurenotifier.PayloadFromJob(job))
}

func (r *Runner) heartbeat(ctx context.Context, log *slog.Logger, jobID string, cancel context.CancelCauseFunc) {
	seconds := r.lease.Seconds(0)
	ticker := time.NewTicker(r.lease.HeartbeatInterval(0))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := r.jobs.Heartbeat(ctx, jobID, seconds)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				// A later beat may still land inside the lease.
				log.WarnContext(ctx, "heartbeat failed", "error", err)
			case !ok:
				log.WarnContext(ctx, "lease lost; stopping job")
				cancel(errLeaseLost)
				return
			}
		}
	}
}

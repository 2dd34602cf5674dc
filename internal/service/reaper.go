package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Perkybeet/wasm/config"
	"github.com/Perkybeet/wasm/internal/core"
	obserrors "github.com/Perkybeet/wasm/internal/observability/errors"
	"github.com/Perkybeet/wasm/internal/observability/metrics"
	"github.com/Perkybeet/wasm/internal/observability/statsd"
	"github.com/Perkybeet/wasm/internal/util/backoff"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required
	Config  config.ReaperConfig
	Logger  *slog.Logger // Optional
	Metrics statsd.Sink  // Optional
}

// ReaperService keeps the job table healthy. Every sweep returns jobs whose
// worker stopped renewing the lease to the queue, where they resume from
// their last committed stage, and prunes finished job history.
type ReaperService struct {
	repo    core.ReaperRepository
	cfg     config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	tasks   []reaperTask
}

// reaperTask is one maintenance step of a sweep. name tags metrics, label
// prefixes errors.
type reaperTask struct {
	name  string
	label string
	run   func(context.Context) (int64, error)
}

type taskResult struct {
	task  reaperTask
	count int64
	err   error
}

const defaultReaperInterval = 5 * time.Minute

// NewReaperService validates opts and builds the service.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = defaultReaperInterval
	}

	s := &ReaperService{
		repo:    opts.Repo,
		cfg:     cfg,
		logger:  logger.With("component", "reaper_service"),
		metrics: opts.Metrics,
	}
	s.tasks = []reaperTask{
		{name: "requeue_expired", label: "requeue expired jobs", run: s.requeueExpired},
		{name: "delete_jobs", label: "delete old jobs", run: s.pruneHistory},
	}
	return s, nil
}

// Run sweeps once after a short random delay and then on every tick until ctx
// ends. Cancellation is a clean stop and returns nil; a deadline is returned.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service",
		"interval", s.cfg.Interval,
		"job_history_max_age", s.cfg.JobHistoryMaxAge,
	)

	// Spread instances that start together over a tenth of the interval.
	if err := backoff.Sleep(ctx, rand.N(s.cfg.Interval/10+1)); err != nil {
		return stopReason(err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := s.sweep(ctx); err != nil {
			if isContextCancellation(err) {
				s.logger.DebugContext(ctx, "sweep interrupted", "error", err)
			} else {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			return stopReason(ctx.Err())
		case <-ticker.C:
		}
	}
}

func stopReason(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sweep runs every task even when an earlier one fails. When all failures are
// context cancellations the result is context.Canceled itself.
func (s *ReaperService) sweep(ctx context.Context) error {
	start := time.Now()
	results := make([]taskResult, 0, len(s.tasks))
	for _, t := range s.tasks {
		n, err := t.run(ctx)
		results = append(results, taskResult{task: t, count: n, err: err})
	}
	s.record(results, time.Since(start))

	var errs []error
	onlyCanceled := true
	for _, r := range results {
		if r.err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.task.label, r.err))
		onlyCanceled = onlyCanceled && isContextCancellation(r.err)
	}
	switch {
	case len(errs) == 0:
		return nil
	case onlyCanceled:
		return context.Canceled
	default:
		return fmt.Errorf("cleanup failed: %w", errors.Join(errs...))
	}
}

func (s *ReaperService) requeueExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.RequeueExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WarnContext(ctx, "requeued jobs with expired leases", "count", n)
	}
	return n, nil
}

// pruneHistory deletes finished jobs past JobHistoryMaxAge in batches until a
// batch comes back empty. A zero max age keeps history forever.
func (s *ReaperService) pruneHistory(ctx context.Context) (int64, error) {
	if s.cfg.JobHistoryMaxAge <= 0 {
		return 0, nil
	}
	params := core.DeleteOldJobsParams{MaxAge: s.cfg.JobHistoryMaxAge, BatchSize: s.cfg.BatchSize}

	var total int64
	for {
		n, err := s.repo.DeleteOldJobs(ctx, params)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "deleted old jobs", "count", total, "max_age", s.cfg.JobHistoryMaxAge)
	}
	return total, nil
}

// record emits one counter per task plus a sweep summary. Cancellations do
// not count as errors.
func (s *ReaperService) record(results []taskResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, r := range results {
		err := r.err
		if isContextCancellation(err) {
			err = nil
		}
		tags := outcomeTags(r.count, err)
		tags["operation"] = r.task.name
		s.metrics.Count("reaper.cleanup_operation", 1, tags)
		if err == nil && r.count > 0 {
			s.metrics.Count("reaper.jobs_processed", r.count, metrics.CloneTags(tags))
		}

		total += r.count
		if firstErr == nil {
			firstErr = err
		}
	}

	tags := outcomeTags(total, firstErr)
	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func outcomeTags(count int64, err error) map[string]string {
	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case count == 0:
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
	return tags
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

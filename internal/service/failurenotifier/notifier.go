// Package failurenotifier fans deployment failures out to operator sinks
// such as Slack and PagerDuty.
package failurenotifier

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/observability/notify"
)

// defaultDeliveryTimeout caps one fan-out when Options.Timeout is unset.
const defaultDeliveryTimeout = 30 * time.Second

// SinkRegistration names a sink for logs.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Timeout bounds a whole fan-out, retries included.
	Timeout time.Duration
}

// Service delivers a failure to every registered sink concurrently.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
}

// NewService drops nil sinks and names anonymous ones "sink".
func NewService(opts Options) *Service {
	s := &Service{
		logger:  opts.Logger,
		timeout: opts.Timeout,
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "failure_notifier")
	}
	if s.timeout <= 0 {
		s.timeout = defaultDeliveryTimeout
	}
	for _, reg := range opts.Sinks {
		if reg.Sink == nil {
			continue
		}
		if reg.Name == "" {
			reg.Name = "sink"
		}
		s.sinks = append(s.sinks, reg)
	}
	return s
}

// Enabled reports whether any sink is registered.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// NotifyJobFailure blocks until every sink has answered or the delivery
// timeout passes. Sink errors are logged, never returned: a broken pager must
// not change the outcome of the job that failed.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if !s.Enabled() {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var g errgroup.Group
	for _, reg := range s.sinks {
		g.Go(func() error {
			err := reg.Sink.SendJobFailure(ctx, payload)
			if err != nil {
				s.logger.LogAttrs(ctx, slog.LevelError, "failure notification not delivered",
					slog.String("sink", reg.Name),
					slog.String("job_id", payload.JobID),
					slog.String("app_id", payload.AppID),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// PayloadFromJob describes a failed job. A failure the engine recovered from
// by restoring the previous version is an error; anything that left the
// application down is critical.
func PayloadFromJob(job *model.Job) notify.JobFailurePayload {
	p := notify.JobFailurePayload{
		JobID:         job.ID,
		AppID:         job.AppID,
		Operation:     string(job.Operation),
		Stage:         string(job.ErrorStage),
		ErrorKind:     job.ErrorKind,
		Error:         job.ErrorDetail,
		RolledBack:    job.RolledBack,
		RollbackError: job.RollbackError,
		Severity:      notify.SeverityCritical,
		OccurredAt:    time.Now(),
	}
	if job.RolledBack && job.RollbackError == "" {
		p.Severity = notify.SeverityError
	}
	if job.CompletedAt != nil {
		p.OccurredAt = *job.CompletedAt
	}
	return p
}

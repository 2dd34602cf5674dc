// Package pipeline drives a deployment job through its stages. Every stage
// transition is committed before the next stage begins, so a job picked up
// again after a crash resumes from the last committed stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/Perkybeet/wasm/internal/observability/metrics"
	"github.com/Perkybeet/wasm/internal/observability/statsd"
	"github.com/Perkybeet/wasm/internal/util/backoff"
)

// Config tunes stage timeouts, verification and failure classification.
type Config struct {
	// AppsDir is where new application trees are created.
	AppsDir string
	// StageTimeout bounds every stage except Building.
	StageTimeout time.Duration
	// BuildTimeout bounds the Building stage.
	BuildTimeout time.Duration
	// VerifyRetries is the number of health check attempts.
	VerifyRetries     int
	VerifyBackoffBase time.Duration
	VerifyBackoffMax  time.Duration
	// VerifyTimeout bounds a single health check attempt.
	VerifyTimeout time.Duration
	// OOMExitCodes are build exit codes treated as the build being killed for lack of memory.
	OOMExitCodes []int
	// ServiceUser runs application units.
	ServiceUser string
	// HealthHost is the address health checks connect to.
	HealthHost string
}

// DefaultConfig returns the engine's stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		AppsDir:           "/var/www",
		StageTimeout:      10 * time.Minute,
		BuildTimeout:      30 * time.Minute,
		VerifyRetries:     3,
		VerifyBackoffBase: 2 * time.Second,
		VerifyBackoffMax:  30 * time.Second,
		VerifyTimeout:     10 * time.Second,
		OOMExitCodes:      []int{137},
		ServiceUser:       "www-data",
		HealthHost:        "127.0.0.1",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.AppsDir == "" {
		c.AppsDir = def.AppsDir
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = def.StageTimeout
	}
	if c.BuildTimeout <= 0 {
		c.BuildTimeout = def.BuildTimeout
	}
	if c.VerifyRetries <= 0 {
		c.VerifyRetries = def.VerifyRetries
	}
	if c.VerifyBackoffBase <= 0 {
		c.VerifyBackoffBase = def.VerifyBackoffBase
	}
	if c.VerifyBackoffMax <= 0 {
		c.VerifyBackoffMax = def.VerifyBackoffMax
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = def.VerifyTimeout
	}
	if len(c.OOMExitCodes) == 0 {
		c.OOMExitCodes = def.OOMExitCodes
	}
	if c.HealthHost == "" {
		c.HealthHost = def.HealthHost
	}
	return c
}

// Options bundles the pipeline's collaborators.
type Options struct {
	Jobs     core.JobRepository
	Apps     core.ApplicationRepository
	Source   core.SourceSyncer
	Backups  core.BackupManager
	Renderer core.ConfigRenderer
	Services core.ServiceManager
	Proxy    core.ProxyManager
	Certs    core.CertificateManager
	Builder  core.BuildRunner
	Health   core.HealthChecker

	// Progress is optional; nil disables live progress notifications.
	Progress core.ProgressPublisher
	// Metrics is optional.
	Metrics statsd.Sink
	Config  Config
	Logger  *slog.Logger
	// Sleep waits between verification attempts. Defaults to backoff.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Pipeline executes jobs. It is safe for concurrent use by multiple workers
// as long as they run jobs for different applications.
type Pipeline struct {
	jobs     core.JobRepository
	apps     core.ApplicationRepository
	source   core.SourceSyncer
	backups  core.BackupManager
	renderer core.ConfigRenderer
	services core.ServiceManager
	proxy    core.ProxyManager
	certs    core.CertificateManager
	builder  core.BuildRunner
	health   core.HealthChecker
	progress core.ProgressPublisher
	metrics  statsd.Sink

	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// New creates a Pipeline. It panics when a required collaborator is missing.
func New(opts Options) *Pipeline {
	switch {
	case opts.Jobs == nil:
		panic("pipeline: Jobs is required")
	case opts.Apps == nil:
		panic("pipeline: Apps is required")
	case opts.Source == nil:
		panic("pipeline: Source is required")
	case opts.Backups == nil:
		panic("pipeline: Backups is required")
	case opts.Renderer == nil, opts.Services == nil, opts.Proxy == nil, opts.Certs == nil:
		panic("pipeline: Renderer, Services, Proxy and Certs are required")
	case opts.Builder == nil:
		panic("pipeline: Builder is required")
	case opts.Health == nil:
		panic("pipeline: Health is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = backoff.Sleep
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		jobs:     opts.Jobs,
		apps:     opts.Apps,
		source:   opts.Source,
		backups:  opts.Backups,
		renderer: opts.Renderer,
		services: opts.Services,
		proxy:    opts.Proxy,
		certs:    opts.Certs,
		builder:  opts.Builder,
		health:   opts.Health,
		progress: opts.Progress,
		metrics:  opts.Metrics,
		cfg:      opts.Config.withDefaults(),
		logger:   logger.With("component", "pipeline"),
		sleep:    sleep,
		now:      now,
	}
}

// run carries one job's state through its stages.
type run struct {
	job *model.Job
	req model.SubmitRequest
	// app is nil until the application record exists.
	app        *model.Application
	priorState model.AppState
	backupID   string
	// restored is set once this attempt has put a backup in place.
	restored *model.RestoreResult
	// mutated is set once a stage that may change the tree or service has started.
	mutated bool
	warning string
	started time.Time
	log     *slog.Logger
}

// stageResult is what a successful stage hands back for its commit.
type stageResult struct {
	detail string
	// warning marks a stage that did not fail the job but did not succeed either.
	warning string
	app     *model.AppStateUpdate
}

type stageFunc func(ctx context.Context, r *run) (stageResult, error)

// stageFailure is a stage error together with the step it left open.
type stageFailure struct {
	stage model.Stage
	step  model.Step
	err   error
}

func (f *stageFailure) Error() string { return fmt.Sprintf("%s: %v", f.stage, f.err) }

func (f *stageFailure) Unwrap() error { return f.err }

// Run executes job until it reaches a terminal status. Stage failures are
// recorded on the job and do not produce an error; a non-nil error means the
// job could not be driven (store unavailable or ctx cancelled) and was left
// running for a later attempt to resume.
func (p *Pipeline) Run(ctx context.Context, job *model.Job) error {
	r := &run{
		job:      job,
		backupID: job.BackupID,
		started:  p.now(),
		log: p.logger.With(
			"job_id", job.ID,
			"app_id", job.AppID,
			"operation", string(job.Operation),
		),
	}

	req, err := job.DecodeRequest()
	if err != nil {
		return p.conclude(ctx, r, model.JobStatusUpdate{
			Status:    model.JobStatusFailed,
			ErrorKind: string(apperrors.ErrCodeValidation),
			Detail:    err.Error(),
		}, err)
	}
	r.req = req

	if err := p.loadApp(ctx, r); err != nil {
		return err
	}
	if err := p.closeInterrupted(ctx, r); err != nil {
		return err
	}
	p.restoreProgress(r)

	if r.job.Stage == model.StageRollingBack && r.job.Operation != model.OperationRollback {
		r.log.WarnContext(ctx, "resuming interrupted rollback")
		stage, cause := originalFailure(r.job.Steps)
		return p.abandon(ctx, r, stage, cause, model.JobStatusFailed)
	}

	plan := planFor(r.job.Operation)
	start := plan.resumeIndex(r.job.Stage)
	if start > 0 {
		r.log.InfoContext(ctx, "resuming job", "after_stage", string(r.job.Stage))
	}

	for _, ps := range plan[start:] {
		if cancelled, err := p.cancelRequested(ctx, r); err != nil {
			return err
		} else if cancelled {
			return p.cancel(ctx, r, ps.stage)
		}

		if ps.skip {
			if err := p.commitSkipped(ctx, r, ps.stage, "not part of "+string(r.job.Operation), nil); err != nil {
				return err
			}
			continue
		}
		if ps.rebuild && r.restored.Runnable() {
			if err := p.commitSkipped(ctx, r, ps.stage, "restored backup includes dependencies and build output", nil); err != nil {
				return err
			}
			continue
		}

		if err := p.execute(ctx, r, ps.stage, ps.stage, p.handler(ps.stage)); err != nil {
			var sf *stageFailure
			if errors.As(err, &sf) {
				return p.fail(ctx, r, sf, model.JobStatusFailed)
			}
			return err
		}
	}
	return p.finish(ctx, r)
}

func (p *Pipeline) loadApp(ctx context.Context, r *run) error {
	app, err := p.apps.GetByID(ctx, r.job.AppID)
	switch {
	case apperrors.IsNotFound(err):
		return nil
	case err != nil:
		return fmt.Errorf("load application: %w", err)
	}
	r.app = app
	r.priorState = app.State
	if r.priorState == model.AppStateDeploying || r.priorState == model.AppStateProvisioning {
		r.priorState = model.AppStateActive
	}
	return nil
}

// closeInterrupted marks steps a previous worker left running as failed.
func (p *Pipeline) closeInterrupted(ctx context.Context, r *run) error {
	for i, step := range r.job.Steps {
		if step.Done() {
			continue
		}
		now := p.now()
		step.EndedAt = &now
		step.Outcome = model.StepOutcomeFailed
		step.Detail = "interrupted before the stage finished"
		if err := p.jobs.CommitStage(ctx, model.StageCommit{JobID: r.job.ID, AppID: r.job.AppID, Step: step}); err != nil {
			return fmt.Errorf("close interrupted step %d: %w", step.Seq, err)
		}
		r.job.Steps[i] = step
		r.log.WarnContext(ctx, "closed interrupted step", "stage", string(step.Name), "seq", step.Seq)
	}
	return nil
}

// restoreProgress rebuilds run state recorded by earlier attempts.
func (p *Pipeline) restoreProgress(r *run) {
	for _, step := range r.job.Steps {
		if step.Name.MutatesTree() && step.Outcome != model.StepOutcomeSkipped {
			r.mutated = true
		}
		if step.Name == model.StageVerifying && step.ErrorKind == model.StepKindUnhealthy {
			r.warning = step.Detail
		}
	}
}

// originalFailure finds the stage failure that started a recovery.
func originalFailure(steps []model.Step) (model.Stage, error) {
	var last *model.Step
	for i := range steps {
		if steps[i].Name == model.StageRollingBack {
			break
		}
		if steps[i].Outcome == model.StepOutcomeFailed {
			last = &steps[i]
		}
	}
	if last == nil {
		return model.StageRollingBack, apperrors.Internalf("job was interrupted during rollback")
	}
	code := apperrors.ErrorCode(last.ErrorKind)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	return last.Name, &apperrors.AppError{Code: code, Message: last.Detail}
}

func (p *Pipeline) cancelRequested(ctx context.Context, r *run) (bool, error) {
	current, err := p.jobs.GetByID(ctx, r.job.ID)
	if err != nil {
		return false, fmt.Errorf("reload job: %w", err)
	}
	return current.CancelRequested, nil
}

func (p *Pipeline) timeoutFor(stage model.Stage) time.Duration {
	if stage == model.StageBuilding {
		return p.cfg.BuildTimeout
	}
	return p.cfg.StageTimeout
}

// execute runs one stage as a step. The step is committed with the job's
// stage set to jobStage on success; on failure it is returned open inside a
// *stageFailure for the caller to settle.
func (p *Pipeline) execute(ctx context.Context, r *run, stage, jobStage model.Stage, fn stageFunc) error {
	step, err := p.jobs.BeginStep(ctx, r.job.ID, stage)
	if err != nil {
		return fmt.Errorf("begin %s: %w", stage, err)
	}
	p.publish(ctx, r, model.JobStatusRunning, &step)
	if stage.MutatesTree() {
		r.mutated = true
	}

	log := r.log.With("stage", string(stage))
	log.InfoContext(ctx, "stage started", "seq", step.Seq)

	timeout := p.timeoutFor(stage)
	sctx, cancel := context.WithTimeout(ctx, timeout)
	res, runErr := fn(sctx, r)
	timedOut := errors.Is(sctx.Err(), context.DeadlineExceeded)
	cancel()

	if runErr != nil {
		if ctx.Err() != nil {
			log.WarnContext(ctx, "stage interrupted", "error", runErr)
			return fmt.Errorf("%s interrupted: %w", stage, ctx.Err())
		}
		if timedOut && apperrors.GetCode(runErr) != apperrors.ErrCodeResourceExhaustion {
			runErr = apperrors.Wrapf(runErr, apperrors.ErrCodeTimeout, "%s did not finish within %s", stage, timeout)
		}
		p.emitStage(r, stage, model.StepOutcomeFailed, step.StartedAt, runErr)
		log.WarnContext(ctx, "stage failed", "error", runErr, "error_kind", errorKind(runErr))
		return &stageFailure{stage: stage, step: step, err: runErr}
	}

	outcome := model.StepOutcomeOK
	detail := res.detail
	kind := ""
	if res.warning != "" {
		detail = res.warning
		kind = model.StepKindUnhealthy
		r.warning = res.warning
	}
	if err := p.commitStep(ctx, r, step, outcome, detail, kind, jobStage, res.app); err != nil {
		return err
	}
	p.emitStage(r, stage, outcome, step.StartedAt, nil)
	log.InfoContext(ctx, "stage finished", "outcome", string(outcome), "detail", detail)
	return nil
}

func (p *Pipeline) commitStep(
	ctx context.Context,
	r *run,
	step model.Step,
	outcome model.StepOutcome,
	detail, kind string,
	jobStage model.Stage,
	app *model.AppStateUpdate,
) error {
	now := p.now()
	step.EndedAt = &now
	step.Outcome = outcome
	step.Detail = detail
	step.ErrorKind = kind
	if step.StartedAt.IsZero() {
		step.StartedAt = now
	}
	if app != nil && r.app == nil {
		app = nil
	}

	err := p.jobs.CommitStage(ctx, model.StageCommit{
		JobID:    r.job.ID,
		AppID:    r.job.AppID,
		Step:     step,
		JobStage: jobStage,
		BackupID: r.backupID,
		App:      app,
	})
	if err != nil {
		return fmt.Errorf("commit %s: %w", step.Name, err)
	}
	if jobStage != "" {
		r.job.Stage = jobStage
		if r.app != nil {
			r.app.Stage = jobStage
		}
	}
	if app != nil && app.State != "" {
		r.app.State = app.State
	}
	p.publish(ctx, r, model.JobStatusRunning, &step)
	return nil
}

func (p *Pipeline) commitSkipped(ctx context.Context, r *run, stage model.Stage, reason string, app *model.AppStateUpdate) error {
	step := model.Step{JobID: r.job.ID, Name: stage, StartedAt: p.now()}
	if err := p.commitStep(ctx, r, step, model.StepOutcomeSkipped, reason, "", stage, app); err != nil {
		return err
	}
	p.emitStage(r, stage, model.StepOutcomeSkipped, step.StartedAt, nil)
	return nil
}

func (p *Pipeline) publish(ctx context.Context, r *run, status model.JobStatus, step *model.Step) {
	if p.progress == nil {
		return
	}
	ev := model.ProgressEvent{JobID: r.job.ID, AppID: r.job.AppID, Status: status}
	if step != nil {
		s := *step
		ev.Step = &s
	}
	p.progress.Publish(ctx, ev)
}

func (p *Pipeline) emitStage(r *run, stage model.Stage, outcome model.StepOutcome, started time.Time, err error) {
	var d time.Duration
	if !started.IsZero() {
		d = p.now().Sub(started)
	}
	metrics.EmitStage(p.metrics, metrics.StageMetric{
		Operation: string(r.job.Operation),
		Stage:     string(stage),
		Outcome:   string(outcome),
		Duration:  d,
		Err:       err,
	})
}

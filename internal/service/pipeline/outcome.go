package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/Perkybeet/wasm/internal/observability/metrics"
)

const maxDetail = 8 << 10

// finish commits the Done step and marks the job succeeded.
func (p *Pipeline) finish(ctx context.Context, r *run) error {
	if r.job.Stage != model.StageDone {
		upd := p.doneState(r)
		step := model.Step{JobID: r.job.ID, Name: model.StageDone, StartedAt: p.now()}
		detail := "completed"
		if r.warning != "" {
			detail = "completed with warning"
		}
		if err := p.commitStep(ctx, r, step, model.StepOutcomeOK, detail, "", model.StageDone, upd); err != nil {
			return err
		}
	}

	status := model.JobStatusSucceeded
	if r.warning != "" {
		status = model.JobStatusSucceededWithWarning
	}
	return p.conclude(ctx, r, model.JobStatusUpdate{Status: status, Warning: r.warning}, nil)
}

func (p *Pipeline) doneState(r *run) *model.AppStateUpdate {
	switch r.job.Operation {
	case model.OperationBackup:
		return nil
	case model.OperationDelete:
		return &model.AppStateUpdate{State: model.AppStateDeleted}
	}
	state := model.AppStateActive
	if r.warning != "" {
		state = model.AppStateDegraded
	}
	return &model.AppStateUpdate{State: state, Deployed: true}
}

// fail settles a failed stage: the step is closed, the application state is
// updated, and the job either rolls back or ends with status.
func (p *Pipeline) fail(ctx context.Context, r *run, f *stageFailure, status model.JobStatus) error {
	var app *model.AppStateUpdate
	if !p.canRecover(r, f.err) {
		app = p.settledState(r, f.err)
	}
	if err := p.commitStep(ctx, r, f.step, model.StepOutcomeFailed, describe(f.err), errorKind(f.err), "", app); err != nil {
		return err
	}
	return p.abandon(ctx, r, f.stage, f.err, status)
}

// cancel honours a cancellation request observed before next would start.
func (p *Pipeline) cancel(ctx context.Context, r *run, next model.Stage) error {
	cause := apperrors.Cancelledf("cancelled before %s", next)
	r.log.InfoContext(ctx, "cancellation requested", "next_stage", string(next))

	var app *model.AppStateUpdate
	if !p.canRecover(r, cause) {
		app = p.settledState(r, cause)
	}
	step := model.Step{JobID: r.job.ID, Name: next, StartedAt: p.now()}
	if err := p.commitStep(ctx, r, step, model.StepOutcomeSkipped, cause.Message, string(apperrors.ErrCodeCanceled), "", app); err != nil {
		return err
	}
	return p.abandon(ctx, r, next, cause, model.JobStatusCancelled)
}

// canRecover reports whether a failure is rolled back from the pre-change backup.
// Sync conflicts leave the tree at its previous commit for manual resolution.
func (p *Pipeline) canRecover(r *run, cause error) bool {
	if !r.job.Operation.Mutates() || r.backupID == "" || !r.mutated {
		return false
	}
	return !apperrors.IsSyncConflict(cause) && !apperrors.IsCorruptBackup(cause)
}

// settledState is the application state after a failure that is not rolled back.
func (p *Pipeline) settledState(r *run, cause error) *model.AppStateUpdate {
	if r.app == nil {
		return nil
	}
	if !r.mutated || apperrors.IsSyncConflict(cause) {
		if r.priorState == "" {
			return nil
		}
		return &model.AppStateUpdate{State: r.priorState}
	}
	return &model.AppStateUpdate{State: model.AppStateFailed}
}

// abandon ends the job after stage failed with cause, rolling back first when possible.
func (p *Pipeline) abandon(ctx context.Context, r *run, stage model.Stage, cause error, status model.JobStatus) error {
	update := model.JobStatusUpdate{
		Status:     status,
		ErrorKind:  errorKind(cause),
		ErrorStage: stage,
		Detail:     describe(cause),
	}
	if !p.canRecover(r, cause) {
		return p.conclude(ctx, r, update, cause)
	}

	if err := p.rollBack(ctx, r); err != nil {
		var sf *stageFailure
		if !errors.As(err, &sf) {
			return err
		}
		fatal := apperrors.RollbackFailed(cause, sf.err)
		r.log.ErrorContext(ctx, "rollback failed", "error", fatal)
		update.Status = model.JobStatusFailed
		update.ErrorKind = string(apperrors.ErrCodeRollbackFailed)
		update.RollbackError = describe(sf.err)
		return p.conclude(ctx, r, update, fatal)
	}
	update.RolledBack = true
	return p.conclude(ctx, r, update, cause)
}

// rollBack restores the pre-change backup and puts it back into service.
// A failed recovery stage is committed and returned as a *stageFailure; any
// other error aborts the run.
func (p *Pipeline) rollBack(ctx context.Context, r *run) error {
	r.log.WarnContext(ctx, "rolling back", "backup_id", r.backupID)
	for i, stage := range recoveryStages {
		fn := p.recoveryHandler(stage)
		if i == len(recoveryStages)-1 {
			fn = settleAs(fn, &model.AppStateUpdate{State: model.AppStateActive})
		}
		err := p.execute(ctx, r, stage, model.StageRollingBack, fn)
		if err == nil {
			continue
		}
		var sf *stageFailure
		if !errors.As(err, &sf) {
			return err
		}
		failed := &model.AppStateUpdate{State: model.AppStateFailed}
		if commitErr := p.commitStep(ctx, r, sf.step, model.StepOutcomeFailed, describe(sf.err), errorKind(sf.err), "", failed); commitErr != nil {
			return commitErr
		}
		return sf
	}
	r.log.InfoContext(ctx, "rollback complete", "backup_id", r.backupID)
	return nil
}

// settleAs attaches app to fn's successful result.
func settleAs(fn stageFunc, app *model.AppStateUpdate) stageFunc {
	return func(ctx context.Context, r *run) (stageResult, error) {
		res, err := fn(ctx, r)
		if err == nil {
			res.app = app
		}
		return res, err
	}
}

// conclude records the terminal status and publishes it.
func (p *Pipeline) conclude(ctx context.Context, r *run, update model.JobStatusUpdate, cause error) error {
	update.ID = r.job.ID
	if _, err := p.jobs.UpdateStatus(ctx, update); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	r.job.Status = update.Status
	p.publish(ctx, r, update.Status, nil)

	result := metrics.ResultSuccess
	if update.Status == model.JobStatusFailed {
		result = metrics.ResultError
	}
	metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
		Operation:  string(r.job.Operation),
		Transition: string(update.Status),
		Result:     result,
		Duration:   p.now().Sub(r.started),
		Err:        cause,
	})

	attrs := []any{"status", string(update.Status)}
	if update.ErrorKind != "" {
		attrs = append(attrs, "error_kind", update.ErrorKind, "error_stage", string(update.ErrorStage))
	}
	if update.RolledBack {
		attrs = append(attrs, "rolled_back", true)
	}
	if update.Status == model.JobStatusFailed {
		r.log.WarnContext(ctx, "job finished", attrs...)
	} else {
		r.log.InfoContext(ctx, "job finished", attrs...)
	}
	return nil
}

func errorKind(err error) string {
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return string(apperrors.ErrCodeInternal)
}

// describe renders err with the tail of its collaborator diagnostic.
func describe(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if diag := apperrors.GetDiagnostic(err); diag != "" {
		msg += "\n" + tail(diag, maxDetail)
	}
	return msg
}

// tail keeps at most the last n bytes of s as valid UTF-8. A rune cut by the
// limit and stray invalid bytes are dropped, since the store rejects them.
func tail(s string, n int) string {
	if len(s) > n {
		s = s[len(s)-n:]
		for len(s) > 0 && !utf8.RuneStart(s[0]) {
			s = s[1:]
		}
	}
	return strings.ToValidUTF8(s, "")
}

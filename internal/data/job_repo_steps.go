package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Perkybeet/wasm/internal/data/dbutil"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

const stepColumns = `job_id, seq, name, started_at, ended_at, outcome, detail, error_kind`

func scanStep(row rowScanner) (model.Step, error) {
	var (
		step  model.Step
		ended sql.NullTime
	)
	if err := row.Scan(&step.JobID, &step.Seq, &step.Name, &step.StartedAt, &ended,
		&step.Outcome, &step.Detail, &step.ErrorKind); err != nil {
		return step, err
	}
	step.StartedAt = step.StartedAt.UTC()
	step.EndedAt = timePtr(ended)
	return step, nil
}

// ListSteps returns the job's steps with seq greater than afterSeq, in order.
func (r *JobRepo) ListSteps(ctx context.Context, jobID string, afterSeq int) ([]model.Step, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`
		SELECT `+stepColumns+`
		FROM job_steps
		WHERE job_id = ? AND seq > ?
		ORDER BY seq`), jobID, afterSeq)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer func() { _ = rows.Close() }()

	steps := []model.Step{}
	for rows.Next() {
		step, scanErr := scanStep(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan step: %w", scanErr)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return steps, nil
}

const insertStepSQL = `
	INSERT INTO job_steps (job_id, seq, name, started_at, ended_at, outcome, detail, error_kind)
	VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM job_steps WHERE job_id = ?), ?, ?, ?, ?, ?, ?)
	RETURNING seq`

// BeginStep appends a running step for stage and returns it with its sequence number.
func (r *JobRepo) BeginStep(ctx context.Context, jobID string, stage model.Stage) (model.Step, error) {
	step := model.Step{
		JobID:     jobID,
		Name:      stage,
		StartedAt: r.now(),
		Outcome:   model.StepOutcomeRunning,
	}
	err := r.DB.QueryRowContext(ctx, r.q(insertStepSQL),
		jobID, jobID, string(stage), step.StartedAt, sql.NullTime{}, string(step.Outcome), "", "",
	).Scan(&step.Seq)
	if err != nil {
		return model.Step{}, apperrors.MapDBError(err)
	}
	return step, nil
}

// CommitStage durably records one pipeline transition in a single transaction:
// the finished step (or a new one when Step.Seq is zero), the job's stage and
// backup reference, the application's stage, and optionally its state. The
// job must still be running.
func (r *JobRepo) CommitStage(ctx context.Context, commit model.StageCommit) error {
	if commit.Step.Outcome == model.StepOutcomeRunning || commit.Step.Outcome == "" {
		return apperrors.ValidationField("outcome", "a committed step must have a final outcome")
	}
	err := dbutil.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		now := r.now()
		if err := r.finishStep(ctx, tx, commit, now); err != nil {
			return err
		}

		n, err := dbutil.ExecCount(ctx, tx, r.q(`
			UPDATE jobs
			SET stage = COALESCE(?, stage), backup_id = COALESCE(?, backup_id), updated_at = ?
			WHERE id = ? AND status = ?`),
			nullString(string(commit.JobStage)), nullString(commit.BackupID), now,
			commit.JobID, string(model.JobStatusRunning))
		if err != nil {
			return err
		}
		if n != 1 {
			return apperrors.Conflictf("job %s is not running", commit.JobID)
		}

		if commit.App == nil {
			return r.updateAppStage(ctx, tx, commit, now)
		}
		return r.updateAppState(ctx, tx, commit, now)
	})
	return apperrors.MapDBError(err)
}

// updateAppStage follows the job's stage when no state change comes with it.
// The application may not be recorded yet, so no row is not an error.
func (r *JobRepo) updateAppStage(ctx context.Context, tx *sql.Tx, commit model.StageCommit, now time.Time) error {
	if commit.JobStage == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, r.q(`
		UPDATE applications SET stage = ?, updated_at = ? WHERE id = ?`),
		string(commit.JobStage), now, commit.AppID)
	return err
}

func (r *JobRepo) finishStep(ctx context.Context, tx *sql.Tx, commit model.StageCommit, now time.Time) error {
	step := commit.Step
	ended := now
	if step.EndedAt != nil {
		ended = step.EndedAt.UTC()
	}
	if step.Seq == 0 {
		started := step.StartedAt
		if started.IsZero() {
			started = ended
		}
		_, err := tx.ExecContext(ctx, r.q(insertStepSQL),
			commit.JobID, commit.JobID, string(step.Name), started.UTC(), ended, string(step.Outcome),
			step.Detail, step.ErrorKind)
		return err
	}

	n, err := dbutil.ExecCount(ctx, tx, r.q(`
		UPDATE job_steps
		SET ended_at = ?, outcome = ?, detail = ?, error_kind = ?
		WHERE job_id = ? AND seq = ?`),
		ended, string(step.Outcome), step.Detail, step.ErrorKind, commit.JobID, step.Seq)
	if err != nil {
		return err
	}
	if n != 1 {
		return apperrors.NotFoundf("step %d of job %s not found", step.Seq, commit.JobID)
	}
	return nil
}

func (r *JobRepo) updateAppState(ctx context.Context, tx *sql.Tx, commit model.StageCommit, now time.Time) error {
	upd := commit.App
	var deployed sql.NullTime
	if upd.Deployed {
		deployed = sql.NullTime{Time: now, Valid: true}
	}
	n, err := dbutil.ExecCount(ctx, tx, r.q(`
		UPDATE applications
		SET state = COALESCE(?, state),
		    stage = COALESCE(?, stage),
		    last_backup_id = COALESCE(?, last_backup_id),
		    app_type = COALESCE(?, app_type),
		    last_deployed_at = COALESCE(?, last_deployed_at),
		    updated_at = ?
		WHERE id = ?`),
		nullString(string(upd.State)), nullString(string(commit.JobStage)), nullString(upd.LastBackupID),
		nullString(string(upd.AppType)), deployed, now, commit.AppID)
	if err != nil {
		return err
	}
	if n != 1 {
		return apperrors.NotFoundf("application %s not found", commit.AppID)
	}
	return nil
}

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/data/dbutil"
	"github.com/Perkybeet/wasm/internal/domain/model"
)

// Advisory lock namespace for reaper operations on Postgres.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for engine reaper operations.
const (
	advisoryLockReaperMajor  = 1000
	advisoryLockReaperDelete = 2 // minor key for DeleteOldJobs
)

// RequeueExpired returns running jobs whose lease lapsed to the queue. Their
// stage and steps are kept, so the next reservation resumes after the last
// committed stage.
func (r *JobRepo) RequeueExpired(ctx context.Context) (int64, error) {
	now := r.now()
	n, err := dbutil.ExecCount(ctx, r.DB, r.q(`
		UPDATE jobs
		SET status = ?, lease_expires_at = NULL, updated_at = ?
		WHERE status = ?
		  AND lease_expires_at IS NOT NULL
		  AND lease_expires_at < ?`),
		string(model.JobStatusQueued), now, string(model.JobStatusRunning), now)
	if err != nil {
		return 0, fmt.Errorf("requeue expired jobs: %w", err)
	}
	return n, nil
}

// DeleteOldJobs deletes terminal jobs completed more than MaxAge ago, with their steps.
// Processes up to BatchSize jobs per call to prevent long locks and I/O spikes.
// On Postgres an advisory lock keeps concurrent reaper instances from conflicting.
// Returns the number of jobs deleted.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := dbutil.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		if r.dialect == DialectPostgres {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDelete).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}
		}

		cutoffTime := r.now().Add(-params.MaxAge)
		n, err := dbutil.ExecCount(ctx, tx, r.q(`
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status IN (?, ?, ?, ?)
				  AND completed_at < ?
				ORDER BY completed_at
				LIMIT ?
			)`),
			terminalStatuses[0], terminalStatuses[1], terminalStatuses[2], terminalStatuses[3],
			cutoffTime, params.BatchSize)
		if err != nil {
			return fmt.Errorf("delete old jobs: %w", err)
		}
		rowsAffected = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

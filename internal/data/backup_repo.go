package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Perkybeet/wasm/internal/data/database"
	"github.com/Perkybeet/wasm/internal/data/dbutil"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

// BackupRepo provides database operations for backup records.
type BackupRepo struct {
	base
}

// NewBackupRepo creates a new BackupRepo.
func NewBackupRepo(db *sql.DB, cfg RepoConfig) *BackupRepo {
	return &BackupRepo{base: newBase(db, cfg, "backup_repo")}
}

var backupColumns = []string{
	"id", "app_id", "location", "checksum", "git_commit", "git_branch", "size_bytes", "created_at",
	"verification", "kind", "job_id", "app_type", "description", "tags",
	"includes_env", "includes_deps", "includes_build",
}

func scanBackup(row rowScanner) (*model.Backup, error) {
	var (
		b    model.Backup
		tags []byte
	)
	if err := row.Scan(
		&b.ID, &b.AppID, &b.Location, &b.Checksum, &b.GitCommit, &b.GitBranch, &b.SizeBytes, &b.CreatedAt,
		&b.Verification, &b.Kind, &b.JobID, &b.AppType, &b.Description, &tags,
		&b.IncludesEnv, &b.IncludesDeps, &b.IncludesBuild,
	); err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &b.Tags); err != nil {
			return nil, fmt.Errorf("decode backup tags: %w", err)
		}
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

// Create records a backup. The id and created_at are filled in when empty.
func (r *BackupRepo) Create(ctx context.Context, b *model.Backup) error {
	if b == nil || b.ID == "" || b.AppID == "" {
		return apperrors.Validationf("backup id and app_id are required")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now()
	}
	if b.Verification == "" {
		b.Verification = model.VerificationUnverified
	}
	if b.Kind == "" {
		b.Kind = model.BackupKindManual
	}
	tags, err := jsonText(b.Tags, "[]")
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, r.q(`
		INSERT INTO backups (
		  id, app_id, location, checksum, git_commit, git_branch, size_bytes, created_at,
		  verification, kind, job_id, app_type, description, tags,
		  includes_env, includes_deps, includes_build
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		b.ID, b.AppID, b.Location, b.Checksum, b.GitCommit, b.GitBranch, b.SizeBytes, b.CreatedAt.UTC(),
		string(b.Verification), string(b.Kind), b.JobID, string(b.AppType), b.Description, tags,
		b.IncludesEnv, b.IncludesDeps, b.IncludesBuild,
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// GetByID returns the backup or a NotFound error.
func (r *BackupRepo) GetByID(ctx context.Context, id string) (*model.Backup, error) {
	query, args := database.BuildListQuery(database.NewListQueryOptions("backups",
		database.WithColumns(backupColumns...),
		database.WithCondition(database.WhereCond("id", database.Equal, id)),
	))
	b, err := scanBackup(r.DB.QueryRowContext(ctx, r.q(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("backup %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return b, nil
}

// ListByApp returns the application's backups newest first.
func (r *BackupRepo) ListByApp(ctx context.Context, appID string) ([]*model.Backup, error) {
	return r.List(ctx, model.BackupFilter{AppID: appID})
}

// List returns backups newest first, optionally restricted to one application.
func (r *BackupRepo) List(ctx context.Context, filter model.BackupFilter) ([]*model.Backup, error) {
	opts := []database.ListQueryOption{
		database.WithColumns(backupColumns...),
		database.WithOrderBy("created_at", "DESC"),
		database.WithOrderBy("id", "DESC"),
	}
	if filter.AppID != "" {
		opts = append(opts, database.WithCondition(database.WhereCond("app_id", database.Equal, filter.AppID)))
	}
	opts = append(opts, pageOptions(filter.Limit, 0)...)
	query, args := database.BuildListQuery(database.NewListQueryOptions("backups", opts...))

	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Backup
	for rows.Next() {
		b, scanErr := scanBackup(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan backup: %w", scanErr)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// SetVerification records the latest verification result.
func (r *BackupRepo) SetVerification(ctx context.Context, id string, v model.Verification) error {
	return r.expectOne(ctx, id, `UPDATE backups SET verification = ? WHERE id = ?`, string(v), id)
}

// Delete removes the backup record. The archive file is the caller's concern.
func (r *BackupRepo) Delete(ctx context.Context, id string) error {
	return r.expectOne(ctx, id, `DELETE FROM backups WHERE id = ?`, id)
}

// expectOne runs a statement that must touch the backup id.
func (r *BackupRepo) expectOne(ctx context.Context, id, query string, args ...any) error {
	n, err := dbutil.ExecCount(ctx, r.DB, r.q(query), args...)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if n == 0 {
		return apperrors.NotFoundf("backup %s not found", id)
	}
	return nil
}

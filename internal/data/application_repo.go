package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Perkybeet/wasm/internal/data/database"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

// ApplicationRepo provides database operations for managed applications.
type ApplicationRepo struct {
	base
}

// NewApplicationRepo creates a new ApplicationRepo.
func NewApplicationRepo(db *sql.DB, cfg RepoConfig) *ApplicationRepo {
	return &ApplicationRepo{base: newBase(db, cfg, "application_repo")}
}

var applicationColumns = []string{
	"id", "app_type", "root", "port", "state", "stage", "last_backup_id", "source",
	"branch", "ssl", "env", "created_at", "last_deployed_at", "updated_at",
}

const applicationSelect = `
  SELECT id, app_type, root, port, state, stage, last_backup_id, source,
         branch, ssl, env, created_at, last_deployed_at, updated_at
  FROM applications`

func scanApplication(row rowScanner) (*model.Application, error) {
	var (
		app      model.Application
		env      []byte
		deployed sql.NullTime
	)
	if err := row.Scan(
		&app.ID, &app.AppType, &app.Root, &app.Port, &app.State, &app.Stage, &app.LastBackupID, &app.Source,
		&app.Branch, &app.SSL, &env, &app.CreatedAt, &deployed, &app.UpdatedAt,
	); err != nil {
		return nil, err
	}
	app.Env = map[string]string{}
	if len(env) > 0 {
		if err := json.Unmarshal(env, &app.Env); err != nil {
			return nil, fmt.Errorf("decode application env: %w", err)
		}
	}
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	app.LastDeployedAt = timePtr(deployed)
	return &app, nil
}

func (r *ApplicationRepo) args(app *model.Application) ([]any, error) {
	env, err := jsonText(app.Env, "{}")
	if err != nil {
		return nil, err
	}
	return []any{
		app.ID, string(app.AppType), app.Root, app.Port, string(app.State), string(app.Stage), app.LastBackupID, app.Source,
		app.Branch, app.SSL, env, app.CreatedAt.UTC(), nullTime(app.LastDeployedAt), app.UpdatedAt.UTC(),
	}, nil
}

func (r *ApplicationRepo) stamp(app *model.Application) {
	now := r.now()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.State == "" {
		app.State = model.AppStateProvisioning
	}
}

// Create inserts a new application. A duplicate id yields a Conflict error.
func (r *ApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	if app == nil || app.ID == "" {
		return apperrors.ValidationField("id", "application id is required")
	}
	r.stamp(app)
	args, err := r.args(app)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, r.q(`
		INSERT INTO applications (
		  id, app_type, root, port, state, stage, last_backup_id, source,
		  branch, ssl, env, created_at, last_deployed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`), args...)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// Upsert inserts the application or replaces every mutable field of the existing record.
// created_at is preserved on update.
func (r *ApplicationRepo) Upsert(ctx context.Context, app *model.Application) error {
	if app == nil || app.ID == "" {
		return apperrors.ValidationField("id", "application id is required")
	}
	r.stamp(app)
	args, err := r.args(app)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, r.q(`
		INSERT INTO applications (
		  id, app_type, root, port, state, stage, last_backup_id, source,
		  branch, ssl, env, created_at, last_deployed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		  app_type = excluded.app_type,
		  root = excluded.root,
		  port = excluded.port,
		  state = excluded.state,
		  stage = excluded.stage,
		  last_backup_id = excluded.last_backup_id,
		  source = excluded.source,
		  branch = excluded.branch,
		  ssl = excluded.ssl,
		  env = excluded.env,
		  last_deployed_at = excluded.last_deployed_at,
		  updated_at = excluded.updated_at`), args...)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// GetByID returns the application or a NotFound error.
func (r *ApplicationRepo) GetByID(ctx context.Context, id string) (*model.Application, error) {
	app, err := scanApplication(r.DB.QueryRowContext(ctx, r.q(applicationSelect+` WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("application %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return app, nil
}

// List returns applications matching filter ordered by id.
func (r *ApplicationRepo) List(ctx context.Context, filter model.ApplicationFilter) ([]*model.Application, error) {
	opts := []database.ListQueryOption{
		database.WithColumns(applicationColumns...),
		database.WithOrderBy("id", "ASC"),
	}
	opts = append(opts, pageOptions(filter.Limit, filter.Offset)...)
	if filter.State != "" {
		opts = append(opts, database.WithCondition(database.WhereCond("state", database.Equal, string(filter.State))))
	}
	if filter.AppType != "" {
		opts = append(opts, database.WithCondition(database.WhereCond("app_type", database.Equal, string(filter.AppType))))
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("applications", opts...))

	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Application
	for rows.Next() {
		app, scanErr := scanApplication(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan application: %w", scanErr)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

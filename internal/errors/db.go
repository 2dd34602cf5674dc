package errors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	// reKeyField extracts field name from a Postgres unique violation detail: "Key (field)=(value) already exists.".
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// reSQLiteColumn extracts "table.column" from "UNIQUE constraint failed: jobs.app_id".
	reSQLiteColumn = regexp.MustCompile(`constraint failed: ([a-z_]+)\.([a-z_]+)`)
)

// MapDBError maps database errors to AppError instances.
// It handles both backends the store supports:
// - sql.ErrNoRows / pgx.ErrNoRows → NotFound
// - Unique and primary key violations → Conflict
// - Foreign key violations → ForeignKey
// - Check and NOT NULL violations → Validation
// - Context timeouts/cancellations → Timeout/Canceled
//
// If the error is not a recognized database error, it returns the original error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database operation timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database operation was cancelled", Cause: err}
	}

	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return mapSQLiteError(liteErr)
	}

	return err
}

// mapPgError maps PostgreSQL-specific errors to AppError instances.
func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		field := pgErr.ColumnName
		if field == "" && pgErr.Detail != "" {
			if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
				field = m[1]
			}
		}
		return conflictFor(pgErr.TableName, field, pgErr)
	case pgerrcode.ForeignKeyViolation:
		return &AppError{Code: ErrCodeForeignKey, Message: "referenced record does not exist or is still in use", Cause: pgErr}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: "invalid data", Field: pgErr.ColumnName, Cause: pgErr}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "a database error occurred", Cause: pgErr}
	}
}

// mapSQLiteError maps SQLite extended result codes to AppError instances.
func mapSQLiteError(liteErr sqlite3.Error) error {
	var table, field string
	if m := reSQLiteColumn.FindStringSubmatch(liteErr.Error()); len(m) == 3 {
		table, field = m[1], m[2]
	}

	switch liteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return conflictFor(table, field, liteErr)
	case sqlite3.ErrConstraintForeignKey:
		return &AppError{Code: ErrCodeForeignKey, Message: "referenced record does not exist or is still in use", Cause: liteErr}
	case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
		return &AppError{Code: ErrCodeValidation, Message: "invalid data", Field: field, Cause: liteErr}
	}

	if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
		return &AppError{Code: ErrCodeTimeout, Message: "database is busy", Cause: liteErr}
	}
	return &AppError{Code: ErrCodeInternal, Message: "a database error occurred", Cause: liteErr}
}

// conflictFor builds the Conflict error for a uniqueness violation on table/field.
// The single-active-job index and the application primary key get their own wording
// since they are the two conflicts callers act on.
func conflictFor(table, field string, cause error) *AppError {
	table = strings.ToLower(table)
	switch {
	case table == "jobs" && field == "app_id",
		strings.Contains(cause.Error(), "jobs_one_active_per_app"):
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "application already has an active job",
			Field:   "app_id",
			Cause:   cause,
		}
	case table == "applications" && (field == "id" || field == ""):
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "application already exists",
			Field:   "id",
			Cause:   cause,
		}
	default:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "this value already exists",
			Field:   field,
			Cause:   cause,
		}
	}
}

// Package errors defines the engine's error taxonomy. Every failure a caller
// can act on carries an ErrorCode; the HTTP layer maps codes to statuses and
// failed jobs record the code as their error kind.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the machine-readable kind of an AppError.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeForeignKey ErrorCode = "foreign_key"
	// ErrCodeValidation rejects a request before any job exists.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeSyncConflict is a source update whose local changes need a human.
	ErrCodeSyncConflict ErrorCode = "sync_conflict"
	// ErrCodeResourceExhaustion is a build killed for lack of memory.
	ErrCodeResourceExhaustion ErrorCode = "resource_exhaustion"
	// ErrCodeIntegration is a failed external tool: git, the package
	// manager, nginx, systemd, certbot.
	ErrCodeIntegration    ErrorCode = "integration"
	ErrCodeCorruptBackup  ErrorCode = "corrupt_backup"
	ErrCodeRollbackFailed ErrorCode = "rollback_failed"
	// ErrCodeSecurity is a refused untrusted resource, such as an installer URL.
	ErrCodeSecurity ErrorCode = "security"
	ErrCodeInternal ErrorCode = "internal"
	ErrCodeTimeout  ErrorCode = "timeout"
	ErrCodeCanceled ErrorCode = "cancelled"
)

// AppError is a coded error. Cause stays reachable through errors.Is and
// errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input of a validation error.
	Field string
	// Diagnostic is raw output of the collaborator that failed.
	Diagnostic string
	// Files lists the paths involved, such as conflicting files.
	Files []string
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

func newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *AppError {
	return newf(ErrCodeNotFound, format, args...)
}

func Conflictf(format string, args ...any) *AppError {
	return newf(ErrCodeConflict, format, args...)
}

func Validationf(format string, args ...any) *AppError {
	return newf(ErrCodeValidation, format, args...)
}

// ValidationField rejects one named input.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

func CorruptBackupf(format string, args ...any) *AppError {
	return newf(ErrCodeCorruptBackup, format, args...)
}

func Securityf(format string, args ...any) *AppError {
	return newf(ErrCodeSecurity, format, args...)
}

func Cancelledf(format string, args ...any) *AppError {
	return newf(ErrCodeCanceled, format, args...)
}

func Timeoutf(format string, args ...any) *AppError {
	return newf(ErrCodeTimeout, format, args...)
}

func Internalf(format string, args ...any) *AppError {
	return newf(ErrCodeInternal, format, args...)
}

// ResourceExhaustionf keeps the killed process's output as the diagnostic.
func ResourceExhaustionf(diagnostic, format string, args ...any) *AppError {
	e := newf(ErrCodeResourceExhaustion, format, args...)
	e.Diagnostic = diagnostic
	return e
}

// SyncConflict reports local changes that could not be reapplied on top of
// the updated tree.
func SyncConflict(files []string, diagnostic string) *AppError {
	msg := "local changes could not be reapplied after update"
	if len(files) > 0 {
		msg = fmt.Sprintf("%s (conflicts in %s)", msg, strings.Join(files, ", "))
	}
	return &AppError{
		Code:       ErrCodeSyncConflict,
		Message:    msg,
		Diagnostic: diagnostic,
		Files:      append([]string(nil), files...),
	}
}

// Integration reports that collaborator failed, keeping its raw output.
func Integration(collaborator, diagnostic string, cause error) *AppError {
	return &AppError{
		Code:       ErrCodeIntegration,
		Message:    collaborator + " failed",
		Cause:      cause,
		Diagnostic: diagnostic,
	}
}

// Wrap codes err. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// RollbackFailedError is a failed stage whose rollback failed too. Both
// errors stay reachable through errors.Is and errors.As.
type RollbackFailedError struct {
	Original error
	Rollback error
}

func RollbackFailed(original, rollback error) *RollbackFailedError {
	return &RollbackFailedError{Original: original, Rollback: rollback}
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("rollback failed: %v (original failure: %v)", e.Rollback, e.Original)
}

func (e *RollbackFailedError) Unwrap() []error {
	return []error{e.Original, e.Rollback}
}

// appError finds the outermost AppError in err's chain.
func appError(err error) (*AppError, bool) {
	var ae *AppError
	ok := errors.As(err, &ae)
	return ae, ok
}

// hasCode looks through a RollbackFailedError at its causes.
func hasCode(err error, code ErrorCode) bool {
	ae, ok := appError(err)
	return ok && ae.Code == code
}

func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool { return hasCode(err, ErrCodeConflict) }
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }
func IsSyncConflict(err error) bool { return hasCode(err, ErrCodeSyncConflict) }
func IsResourceExhaustion(err error) bool { return hasCode(err, ErrCodeResourceExhaustion) }
func IsIntegration(err error) bool { return hasCode(err, ErrCodeIntegration) }
func IsCorruptBackup(err error) bool { return hasCode(err, ErrCodeCorruptBackup) }
func IsSecurity(err error) bool { return hasCode(err, ErrCodeSecurity) }
func IsTimeout(err error) bool { return hasCode(err, ErrCodeTimeout) }
func IsCanceled(err error) bool { return hasCode(err, ErrCodeCanceled) }

func IsRollbackFailed(err error) bool {
	var rb *RollbackFailedError
	return errors.As(err, &rb)
}

// GetCode returns err's code, or "" for an uncoded error. A failed rollback
// outranks whatever its causes say.
func GetCode(err error) ErrorCode {
	if IsRollbackFailed(err) {
		return ErrCodeRollbackFailed
	}
	if ae, ok := appError(err); ok {
		return ae.Code
	}
	return ""
}

// GetField returns the offending input of a validation error.
func GetField(err error) string {
	if ae, ok := appError(err); ok {
		return ae.Field
	}
	return ""
}

// GetDiagnostic returns the collaborator output attached to err.
func GetDiagnostic(err error) string {
	if ae, ok := appError(err); ok {
		return ae.Diagnostic
	}
	return ""
}

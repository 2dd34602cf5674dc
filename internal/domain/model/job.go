// Package model defines the core data types shared by the deployment job engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Operation is the action a job performs against an application.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Operation string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	OperationCreate   Operation = "create"
	OperationUpdate   Operation = "update"
	OperationDelete   Operation = "delete"
	OperationRollback Operation = "rollback"
	OperationBackup   Operation = "backup"

	// JobStatusQueued indicates a job is waiting for a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a worker is executing the job's pipeline.
	JobStatusRunning JobStatus = "running"
	// JobStatusSucceeded indicates every stage completed.
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusSucceededWithWarning indicates the deployment stands but verification could not confirm readiness.
	JobStatusSucceededWithWarning JobStatus = "succeeded_with_warning"
	// JobStatusFailed indicates the pipeline ended in the Failed state.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job honoured a cancellation request.
	JobStatusCancelled JobStatus = "cancelled"
)

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// UnmarshalText implements encoding.TextUnmarshaler for Operation.
func (o *Operation) UnmarshalText(text []byte) error {
	v := Operation(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid operation: %q", v)
	}
	*o = v
	return nil
}

// Valid returns true if the Operation is known.
func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete, OperationRollback, OperationBackup:
		return true
	default:
		return false
	}
}

// Mutates reports whether the operation changes an existing application's tree,
// which is when a pre-change backup is taken.
func (o Operation) Mutates() bool {
	return o == OperationUpdate || o == OperationDelete
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusSucceededWithWarning,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusSucceededWithWarning ||
		s == JobStatusFailed || s == JobStatusCancelled
}

// Job is a durable record of one requested operation and its step history.
type Job struct {
	ID              string          `json:"id"                         db:"id"`
	AppID           string          `json:"app_id"                     db:"app_id"`
	Operation       Operation       `json:"operation"                  db:"operation"`
	Status          JobStatus       `json:"status"                     db:"status"`
	Stage           Stage           `json:"stage,omitempty"            db:"stage"`
	Request         json.RawMessage `json:"request"                    db:"request"`
	BackupID        string          `json:"backup_id,omitempty"        db:"backup_id"`
	ErrorKind       string          `json:"error_kind,omitempty"       db:"error_kind"`
	ErrorStage      Stage           `json:"error_stage,omitempty"      db:"error_stage"`
	ErrorDetail     string          `json:"error_detail,omitempty"     db:"error_detail"`
	RollbackError   string          `json:"rollback_error,omitempty"   db:"rollback_error"`
	Warning         string          `json:"warning,omitempty"          db:"warning"`
	CancelRequested bool            `json:"cancel_requested"           db:"cancel_requested"`
	RolledBack      bool            `json:"rolled_back"                db:"rolled_back"`
	LeaseExpiresAt  *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt       time.Time       `json:"created_at"                 db:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	UpdatedAt       time.Time       `json:"updated_at"                 db:"updated_at"`
	Steps           []Step          `json:"steps,omitempty"`
}

// DecodeRequest unmarshals the stored submit request.
func (j *Job) DecodeRequest() (SubmitRequest, error) {
	var req SubmitRequest
	if len(j.Request) == 0 {
		return req, errors.New("job has no request")
	}
	if err := json.Unmarshal(j.Request, &req); err != nil {
		return req, fmt.Errorf("decode job request: %w", err)
	}
	return req, nil
}

// StepOutcome is the result of one pipeline stage.
type StepOutcome string

const (
	StepOutcomeRunning StepOutcome = "running"
	StepOutcomeOK      StepOutcome = "ok"
	StepOutcomeFailed  StepOutcome = "failed"
	StepOutcomeSkipped StepOutcome = "skipped"
)

// StepKindUnhealthy is the error kind of an ok Verifying step whose health
// check never passed. The deployment stands and the job ends
// succeeded_with_warning.
const StepKindUnhealthy = "unhealthy"

// Step records one stage of a job. Seq orders steps within the job.
type Step struct {
	JobID     string      `json:"job_id"               db:"job_id"`
	Seq       int         `json:"seq"                  db:"seq"`
	Name      Stage       `json:"name"                 db:"name"`
	StartedAt time.Time   `json:"started_at"           db:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"   db:"ended_at"`
	Outcome   StepOutcome `json:"outcome"              db:"outcome"`
	Detail    string      `json:"detail,omitempty"     db:"detail"`
	ErrorKind string      `json:"error_kind,omitempty" db:"error_kind"`
}

// Done reports whether the step has finished.
func (s Step) Done() bool {
	return s.Outcome != StepOutcomeRunning
}

// SubmitRequest is what a caller hands the scheduler.
type SubmitRequest struct {
	AppID     string    `json:"app_id"               validate:"required,hostname_rfc1123,max=253,registrable_domain"`
	Operation Operation `json:"operation"            validate:"required,oneof=create update delete rollback backup"`

	// Create-only fields.
	Source  string            `json:"source,omitempty"   validate:"required_if=Operation create"`
	Branch  string            `json:"branch,omitempty"   validate:"omitempty,max=255,excludesall=~^:?*["`
	AppType AppType           `json:"app_type,omitempty" validate:"omitempty,oneof=nextjs nodejs vite python static"`
	Port    int               `json:"port,omitempty"     validate:"omitempty,min=1,max=65535"`
	SSL     bool              `json:"ssl,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// Rollback/backup fields.
	BackupID     string   `json:"backup_id,omitempty"`
	TargetAppID  string   `json:"target_app_id,omitempty" validate:"omitempty,hostname_rfc1123,registrable_domain"`
	Description  string   `json:"description,omitempty"   validate:"max=500"`
	Tags         []string `json:"tags,omitempty"          validate:"max=20,dive,max=64"`
	IncludeEnv   *bool    `json:"include_env,omitempty"`
	IncludeDeps  bool     `json:"include_deps,omitempty"`
	IncludeBuild bool     `json:"include_build,omitempty"`
}

// JobStatusUpdate moves a job to a new status with an optional detail.
type JobStatusUpdate struct {
	ID            string
	Status        JobStatus
	ErrorKind     string
	ErrorStage    Stage
	Detail        string
	RollbackError string
	Warning       string
	RolledBack    bool
}

// JobListOptions filters job listings.
type JobListOptions struct {
	AppID  string
	Status JobStatus
	Limit  int
	Offset int
}

// StageCommit is one durable pipeline transition: the finished step, the job's
// new stage and, optionally, the application's new state. It is written in a
// single transaction so a restart resumes from a consistent point.
type StageCommit struct {
	JobID    string
	AppID    string
	Step     Step
	JobStage Stage
	BackupID string
	App      *AppStateUpdate
}

// ProgressEvent is published whenever a job's steps or status change.
type ProgressEvent struct {
	JobID  string    `json:"job_id"`
	AppID  string    `json:"app_id"`
	Status JobStatus `json:"status"`
	Step   *Step     `json:"step,omitempty"`
}

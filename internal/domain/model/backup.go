package model

import "time"

// Verification is the integrity status of a stored backup.
type Verification string

const (
	VerificationUnverified Verification = "unverified"
	VerificationVerified   Verification = "verified"
	VerificationCorrupt    Verification = "corrupt"
)

// BackupKind tells pipeline-created snapshots from operator requests.
type BackupKind string

const (
	BackupKindPreChange BackupKind = "pre_change"
	BackupKindManual    BackupKind = "manual"
)

// Backup is a checksum-stamped snapshot of an application's tree.
// Checksum never changes after creation; only Verification does.
type Backup struct {
	ID            string       `json:"id"                   db:"id"`
	AppID         string       `json:"app_id"               db:"app_id"`
	Location      string       `json:"location"             db:"location"`
	Checksum      string       `json:"checksum"             db:"checksum"`
	GitCommit     string       `json:"git_commit,omitempty" db:"git_commit"`
	GitBranch     string       `json:"git_branch,omitempty" db:"git_branch"`
	SizeBytes     int64        `json:"size_bytes"           db:"size_bytes"`
	CreatedAt     time.Time    `json:"created_at"           db:"created_at"`
	Verification  Verification `json:"verification"         db:"verification"`
	Kind          BackupKind   `json:"kind"                 db:"kind"`
	JobID         string       `json:"job_id,omitempty"     db:"job_id"`
	AppType       AppType      `json:"app_type,omitempty"   db:"app_type"`
	Description   string       `json:"description,omitempty" db:"description"`
	Tags          []string     `json:"tags,omitempty"       db:"tags"`
	IncludesEnv   bool         `json:"includes_env"         db:"includes_env"`
	IncludesDeps  bool         `json:"includes_deps"        db:"includes_deps"`
	IncludesBuild bool         `json:"includes_build"       db:"includes_build"`
}

// BackupOptions controls what a snapshot contains.
type BackupOptions struct {
	IncludeEnv   bool
	IncludeDeps  bool
	IncludeBuild bool
	Description  string
	Tags         []string
	Kind         BackupKind
	JobID        string
}

// DefaultBackupOptions mirrors the manual backup defaults: env files in, dependencies and build output out.
func DefaultBackupOptions() BackupOptions {
	return BackupOptions{IncludeEnv: true, Kind: BackupKindManual}
}

// FullBackupOptions captures everything needed to reactivate without rebuilding.
func FullBackupOptions(jobID string) BackupOptions {
	return BackupOptions{
		IncludeEnv:   true,
		IncludeDeps:  true,
		IncludeBuild: true,
		Kind:         BackupKindPreChange,
		JobID:        jobID,
	}
}

// BackupFilter narrows backup listings.
type BackupFilter struct {
	AppID string
	Limit int
}

// VerificationResult reports the outcome of re-checking a backup.
type VerificationResult struct {
	BackupID   string `json:"backup_id"`
	Valid      bool   `json:"valid"`
	ChecksumOK bool   `json:"checksum_ok"`
	FilesOK    bool   `json:"files_ok"`
	Checksum   string `json:"checksum"`
	Message    string `json:"message"`
}

// RestoreResult reports where a backup was restored.
type RestoreResult struct {
	BackupID    string `json:"backup_id"`
	TargetAppID string `json:"target_app_id"`
	Root        string `json:"root"`
	Files       int    `json:"files"`
	// IncludesDeps and IncludesBuild are copied from the backup. A tree
	// restored without them has to be built before it can serve.
	IncludesDeps  bool `json:"includes_deps"`
	IncludesBuild bool `json:"includes_build"`
}

// Runnable reports whether the restored tree carries its dependencies and
// build output.
func (r *RestoreResult) Runnable() bool {
	return r != nil && r.IncludesDeps && r.IncludesBuild
}

// StorageInfo summarises backup storage usage.
type StorageInfo struct {
	Path           string   `json:"path"`
	TotalSize      int64    `json:"total_size"`
	TotalSizeHuman string   `json:"total_size_human"`
	BackupCount    int      `json:"backup_count"`
	Apps           []string `json:"apps"`
}

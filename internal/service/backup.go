package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/Perkybeet/wasm/internal/archive"
	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/google/uuid"
)

const (
	// backupMetadataName is the archive entry describing the backup.
	backupMetadataName = ".wasm-backup.json"

	asideMarker   = ".wasm-aside-"
	stagingMarker = ".wasm-restore-"

	defaultBackupListLimit = 100
	maxBackupListLimit     = 1000
)

// envGlobs select the env files left out of backups without IncludeEnv.
var envGlobs = []string{".env", ".env.*"}

// sourceRefReader reports the checked-out commit of an application tree.
type sourceRefReader interface {
	CurrentRef(ctx context.Context, root string) (commit, branch string, err error)
}

// BackupServiceConfig holds backup storage settings.
type BackupServiceConfig struct {
	// Dir holds one sub-directory of archives per application.
	Dir string
	// AppsDir is where trees of applications unknown to the store are restored.
	AppsDir string
	// RetentionCount is how many backups to keep per application; zero keeps all.
	RetentionCount int
	// Now defaults to time.Now.
	Now func() time.Time
}

// BackupServiceOptions groups dependencies for BackupService.
type BackupServiceOptions struct {
	Backups core.BackupRepository
	Apps    core.ApplicationRepository
	Source  sourceRefReader // optional
	Config  BackupServiceConfig
	Logger  *slog.Logger
}

// BackupService snapshots application trees into checksum-stamped archives
// and restores them.
type BackupService struct {
	backups core.BackupRepository
	apps    core.ApplicationRepository
	source  sourceRefReader
	cfg     BackupServiceConfig
	logger  *slog.Logger
}

var _ core.BackupManager = (*BackupService)(nil)

// NewBackupService constructs a BackupService.
func NewBackupService(opts BackupServiceOptions) *BackupService {
	if opts.Backups == nil {
		panic("BackupRepository is required")
	}
	if opts.Apps == nil {
		panic("ApplicationRepository is required")
	}
	if opts.Config.Dir == "" {
		panic("backup directory is required")
	}
	cfg := opts.Config
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupService{
		backups: opts.Backups,
		apps:    opts.Apps,
		source:  opts.Source,
		cfg:     cfg,
		logger:  logger.With("component", "backup_service"),
	}
}

// CreateBackup archives the application's tree and records it. Older backups
// beyond the retention count are removed afterwards, never the new one.
func (s *BackupService) CreateBackup(ctx context.Context, appID string, opts model.BackupOptions) (*model.Backup, error) {
	app, err := s.apps.GetByID(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	if info, statErr := os.Stat(app.Root); statErr != nil || !info.IsDir() {
		return nil, apperrors.NotFoundf("application root %s does not exist", app.Root)
	}
	if opts.Kind == "" {
		opts.Kind = model.BackupKindManual
	}

	b := &model.Backup{
		ID:            uuid.NewString(),
		AppID:         app.ID,
		CreatedAt:     s.cfg.Now().UTC(),
		Verification:  model.VerificationUnverified,
		Kind:          opts.Kind,
		JobID:         opts.JobID,
		AppType:       app.AppType,
		Description:   opts.Description,
		Tags:          opts.Tags,
		IncludesEnv:   opts.IncludeEnv,
		IncludesDeps:  opts.IncludeDeps,
		IncludesBuild: opts.IncludeBuild,
	}
	if s.source != nil {
		commit, branch, refErr := s.source.CurrentRef(ctx, app.Root)
		if refErr != nil {
			s.logger.WarnContext(ctx, "could not read source ref for backup", "app_id", app.ID, "error", refErr)
		}
		b.GitCommit, b.GitBranch = commit, branch
	}
	b.Location = filepath.Join(s.cfg.Dir, app.ID, b.ID+".tar.gz")

	meta, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode backup metadata: %w", err)
	}
	res, err := archive.CreateTarGz(ctx, app.Root, b.Location, backupExclude(app.AppType, opts),
		archive.Entry{Name: backupMetadataName, Data: meta})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "archive %s", app.Root)
	}
	b.Checksum = res.Checksum
	b.SizeBytes = res.Size

	if err := s.backups.Create(ctx, b); err != nil {
		_ = os.Remove(b.Location)
		return nil, fmt.Errorf("record backup: %w", err)
	}
	s.logger.InfoContext(ctx, "backup created",
		"backup_id", b.ID,
		"app_id", b.AppID,
		"kind", b.Kind,
		"files", res.Files,
		"size_bytes", b.SizeBytes,
	)

	s.rotate(ctx, app.ID, b.ID)
	return b, nil
}

// backupExclude leaves out dependency and build directories and env files
// unless the options ask for them.
func backupExclude(appType model.AppType, opts model.BackupOptions) archive.ExcludeFunc {
	caps := model.CapabilitiesFor(appType)
	var dirs []string
	if !opts.IncludeDeps {
		dirs = append(dirs, caps.DependencyDirs...)
	}
	if !opts.IncludeBuild {
		dirs = append(dirs, caps.BuildOutputs...)
	}
	return func(rel string, d fs.DirEntry) bool {
		if d.IsDir() && slices.Contains(dirs, rel) {
			return true
		}
		if !opts.IncludeEnv && !d.IsDir() {
			base := path.Base(rel)
			for _, g := range envGlobs {
				if ok, _ := path.Match(g, base); ok {
					return true
				}
			}
		}
		return false
	}
}

func (s *BackupService) rotate(ctx context.Context, appID, keepID string) {
	if s.cfg.RetentionCount <= 0 {
		return
	}
	list, err := s.backups.ListByApp(ctx, appID)
	if err != nil {
		s.logger.WarnContext(ctx, "list backups for rotation", "app_id", appID, "error", err)
		return
	}
	if len(list) <= s.cfg.RetentionCount {
		return
	}
	// list is newest first, so the tail is the oldest.
	for _, old := range slices.Backward(list[s.cfg.RetentionCount:]) {
		if old.ID == keepID {
			continue
		}
		if err := s.DeleteBackup(ctx, old.ID); err != nil {
			s.logger.WarnContext(ctx, "rotate backup", "backup_id", old.ID, "app_id", appID, "error", err)
			continue
		}
		s.logger.InfoContext(ctx, "rotated backup", "backup_id", old.ID, "app_id", appID)
	}
}

// VerifyBackup recomputes the archive checksum and reads every entry. The
// result is stored on the backup; a mismatch returns a corrupt backup error
// alongside the result and deletes nothing.
func (s *BackupService) VerifyBackup(ctx context.Context, id string) (*model.VerificationResult, error) {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &model.VerificationResult{BackupID: b.ID}

	sum, _, err := archive.ChecksumFile(b.Location)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Message = "backup archive is missing"
	case err != nil:
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "checksum backup")
	default:
		res.Checksum = sum
		res.ChecksumOK = sum == b.Checksum
		res.FilesOK = archiveReadable(b.Location)
		switch {
		case !res.ChecksumOK:
			res.Message = "checksum mismatch"
		case !res.FilesOK:
			res.Message = "archive contents are unreadable"
		default:
			res.Message = "backup is valid"
		}
	}
	res.Valid = res.ChecksumOK && res.FilesOK

	status := model.VerificationVerified
	if !res.Valid {
		status = model.VerificationCorrupt
	}
	if err := s.backups.SetVerification(ctx, b.ID, status); err != nil {
		return nil, fmt.Errorf("record verification: %w", err)
	}
	if !res.Valid {
		s.logger.WarnContext(ctx, "backup failed verification", "backup_id", b.ID, "app_id", b.AppID, "reason", res.Message)
		return res, apperrors.CorruptBackupf("backup %s is corrupt: %s", b.ID, res.Message)
	}
	return res, nil
}

func archiveReadable(location string) bool {
	names, err := archive.ListTarGz(location)
	return err == nil && slices.Contains(names, backupMetadataName)
}

// RestoreBackup replaces the target application's tree with the backup's
// contents. targetAppID defaults to the backup's application. The backup is
// verified first and a corrupt one is refused with the tree untouched.
//
// The archive is unpacked beside the root and swapped in with two renames, so
// a crash at any point leaves either the old or the new tree recoverable by
// RecoverAside.
func (s *BackupService) RestoreBackup(ctx context.Context, id, targetAppID string) (*model.RestoreResult, error) {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.VerifyBackup(ctx, id); err != nil {
		return nil, err
	}
	if targetAppID == "" {
		targetAppID = b.AppID
	}
	root, err := s.restoreRoot(ctx, targetAppID)
	if err != nil {
		return nil, err
	}
	if _, err := s.RecoverAside(ctx, root); err != nil {
		return nil, err
	}

	stamp := strconv.FormatInt(s.cfg.Now().UTC().UnixNano(), 10)
	staging := root + stagingMarker + stamp
	aside := root + asideMarker + stamp

	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "create restore staging dir")
	}
	files, err := archive.ExtractTarGz(ctx, b.Location, staging, backupMetadataName)
	if err != nil {
		_ = os.RemoveAll(staging)
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "extract backup %s", b.ID)
	}

	hadTree := true
	if err := os.Rename(root, aside); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			_ = os.RemoveAll(staging)
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "move current tree aside")
		}
		hadTree = false
		if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
			_ = os.RemoveAll(staging)
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "create application parent dir")
		}
	}
	if err := os.Rename(staging, root); err != nil {
		var undo error
		if hadTree {
			undo = os.Rename(aside, root)
		}
		_ = os.RemoveAll(staging)
		return nil, apperrors.Wrap(errors.Join(err, undo), apperrors.ErrCodeInternal, "swap restored tree into place")
	}
	if hadTree {
		if err := os.RemoveAll(aside); err != nil {
			s.logger.WarnContext(ctx, "remove previous tree", "path", aside, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "backup restored",
		"backup_id", b.ID,
		"app_id", targetAppID,
		"root", root,
		"files", files,
	)
	return &model.RestoreResult{
		BackupID:      b.ID,
		TargetAppID:   targetAppID,
		Root:          root,
		Files:         files,
		IncludesDeps:  b.IncludesDeps,
		IncludesBuild: b.IncludesBuild,
	}, nil
}

func (s *BackupService) restoreRoot(ctx context.Context, appID string) (string, error) {
	app, err := s.apps.GetByID(ctx, appID)
	if err == nil {
		return app.Root, nil
	}
	if !apperrors.IsNotFound(err) {
		return "", fmt.Errorf("get target application: %w", err)
	}
	if s.cfg.AppsDir == "" {
		return "", apperrors.NotFoundf("application %s not found", appID)
	}
	return filepath.Join(s.cfg.AppsDir, appID), nil
}

// RecoverAside cleans up after a restore that was interrupted. If the root is
// missing, the tree moved aside is put back; otherwise leftovers are removed.
// It reports whether a tree was put back.
func (s *BackupService) RecoverAside(ctx context.Context, root string) (bool, error) {
	asides, err := filepath.Glob(root + asideMarker + "*")
	if err != nil {
		return false, fmt.Errorf("find aside trees: %w", err)
	}
	stagings, err := filepath.Glob(root + stagingMarker + "*")
	if err != nil {
		return false, fmt.Errorf("find staging trees: %w", err)
	}
	for _, dir := range stagings {
		if err := os.RemoveAll(dir); err != nil {
			return false, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "remove %s", dir)
		}
	}
	if len(asides) == 0 {
		return false, nil
	}
	sort.Strings(asides)

	recovered := false
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		latest := asides[len(asides)-1]
		if err := os.Rename(latest, root); err != nil {
			return false, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "recover %s", latest)
		}
		asides = asides[:len(asides)-1]
		recovered = true
		s.logger.WarnContext(ctx, "recovered tree from interrupted restore", "root", root, "from", latest)
	}
	for _, dir := range asides {
		if err := os.RemoveAll(dir); err != nil {
			return recovered, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "remove %s", dir)
		}
	}
	return recovered, nil
}

// RecoverApplications runs RecoverAside for every application tree the store
// knows of. It is meant for startup, before workers reserve jobs.
func (s *BackupService) RecoverApplications(ctx context.Context) (int, error) {
	apps, err := s.apps.List(ctx, model.ApplicationFilter{})
	if err != nil {
		return 0, fmt.Errorf("list applications: %w", err)
	}
	var (
		recovered int
		errs      []error
	)
	for _, app := range apps {
		if app.Root == "" || app.State == model.AppStateDeleted {
			continue
		}
		ok, err := s.RecoverAside(ctx, app.Root)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", app.ID, err))
			continue
		}
		if ok {
			recovered++
		}
	}
	return recovered, errors.Join(errs...)
}

// GetBackup returns a backup record.
func (s *BackupService) GetBackup(ctx context.Context, id string) (*model.Backup, error) {
	return s.backups.GetByID(ctx, id)
}

// ListBackups lists backups newest first. The limit defaults to 100 and may not exceed 1000.
func (s *BackupService) ListBackups(ctx context.Context, filter model.BackupFilter) ([]*model.Backup, error) {
	switch {
	case filter.Limit == 0:
		filter.Limit = defaultBackupListLimit
	case filter.Limit < 1 || filter.Limit > maxBackupListLimit:
		return nil, apperrors.ValidationField("limit", fmt.Sprintf("limit must be between 1 and %d", maxBackupListLimit))
	}
	return s.backups.List(ctx, filter)
}

// LatestBackup returns the application's newest backup.
func (s *BackupService) LatestBackup(ctx context.Context, appID string) (*model.Backup, error) {
	list, err := s.backups.List(ctx, model.BackupFilter{AppID: appID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperrors.NotFoundf("no backups for application %s", appID)
	}
	return list[0], nil
}

// DeleteBackup removes a backup's archive and record.
func (s *BackupService) DeleteBackup(ctx context.Context, id string) error {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(b.Location); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "remove backup archive %s", b.Location)
	}
	return s.backups.Delete(ctx, id)
}

// StorageInfo summarises the archives on disk.
func (s *BackupService) StorageInfo(_ context.Context) (*model.StorageInfo, error) {
	info := &model.StorageInfo{Path: s.cfg.Dir, Apps: []string{}}
	entries, err := os.ReadDir(s.cfg.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		info.TotalSizeHuman = humanSize(0)
		return info, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read backup directory")
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := filepath.Glob(filepath.Join(s.cfg.Dir, e.Name(), "*.tar.gz"))
		if err != nil || len(files) == 0 {
			continue
		}
		info.Apps = append(info.Apps, e.Name())
		for _, f := range files {
			st, err := os.Stat(f)
			if err != nil {
				continue
			}
			info.TotalSize += st.Size()
			info.BackupCount++
		}
	}
	info.TotalSizeHuman = humanSize(info.TotalSize)
	return info, nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

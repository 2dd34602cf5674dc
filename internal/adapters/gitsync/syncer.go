// Package gitsync fetches application source and brings existing working
// trees up to date without discarding local changes.
package gitsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Perkybeet/wasm/internal/archive"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/Perkybeet/wasm/internal/security"
)

// DefaultPreserveGlobs name ignored files that survive an update.
var DefaultPreserveGlobs = []string{".env", ".env.*"}

// Options configures a Syncer.
type Options struct {
	Runner        Runner
	Logger        *slog.Logger
	PreserveGlobs []string
	// ArchiveHosts admits remote archive downloads; nil refuses them.
	ArchiveHosts *security.Allowlist
	HTTPClient   *http.Client
}

// Syncer implements core.SourceSyncer on top of the git CLI.
type Syncer struct {
	runner   Runner
	logger   *slog.Logger
	preserve []string
	archives *security.Allowlist
	client   *http.Client
}

// NewSyncer creates a Syncer.
func NewSyncer(opts Options) *Syncer {
	runner := opts.Runner
	if runner == nil {
		runner = &ExecRunner{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	preserve := opts.PreserveGlobs
	if len(preserve) == 0 {
		preserve = DefaultPreserveGlobs
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Syncer{
		runner:   runner,
		logger:   logger.With("component", "gitsync"),
		preserve: preserve,
		archives: opts.ArchiveHosts,
		client:   client,
	}
}

// IsArchive reports whether source names an archive rather than a git remote.
func IsArchive(source string) bool {
	s := strings.ToLower(source)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.HasSuffix(s, ".tar.gz") || strings.HasSuffix(s, ".tgz") || strings.HasSuffix(s, ".zip")
}

// Fetch materialises spec.URL into spec.Root, which must be absent or empty.
func (s *Syncer) Fetch(ctx context.Context, spec model.SourceSpec) (*model.WorkingTree, error) {
	if strings.TrimSpace(spec.URL) == "" {
		return nil, apperrors.ValidationField("source", "source is required")
	}
	if err := ensureEmptyDir(spec.Root); err != nil {
		return nil, err
	}
	if IsArchive(spec.URL) {
		return s.fetchArchive(ctx, spec)
	}
	return s.clone(ctx, spec)
}

func ensureEmptyDir(root string) error {
	if root == "" || !filepath.IsAbs(root) {
		return apperrors.ValidationField("root", "application root must be an absolute path")
	}
	entries, err := os.ReadDir(root)
	switch {
	case os.IsNotExist(err):
		return os.MkdirAll(filepath.Dir(root), 0o755)
	case err != nil:
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "inspect application root")
	case len(entries) > 0:
		return apperrors.Conflictf("application root %s is not empty", root)
	}
	return nil
}

func (s *Syncer) clone(ctx context.Context, spec model.SourceSpec) (*model.WorkingTree, error) {
	args := []string{"clone"}
	if spec.Branch != "" {
		args = append(args, "--branch", spec.Branch)
	}
	args = append(args, "--", spec.URL, spec.Root)
	if _, err := s.runner.Run(ctx, filepath.Dir(spec.Root), args...); err != nil {
		return nil, gitFailure("git clone", err)
	}

	commit, branch, err := s.CurrentRef(ctx, spec.Root)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "cloned source", "root", spec.Root, "branch", branch, "ref", commit)
	return &model.WorkingTree{Root: spec.Root, Branch: branch, IsGit: true, Ref: commit}, nil
}

func (s *Syncer) fetchArchive(ctx context.Context, spec model.SourceSpec) (*model.WorkingTree, error) {
	path := spec.URL
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		if err := s.archives.Check(spec.URL); err != nil {
			return nil, err
		}
		tmp, err := s.download(ctx, spec.URL)
		if err != nil {
			return nil, err
		}
		defer func() { _ = os.Remove(tmp) }()
		path = tmp
	}

	if err := os.MkdirAll(spec.Root, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "create application root")
	}
	var (
		n   int
		err error
	)
	if strings.HasSuffix(strings.ToLower(path), ".zip") || strings.HasSuffix(strings.ToLower(spec.URL), ".zip") {
		n, err = archive.ExtractZip(ctx, path, spec.Root)
	} else {
		n, err = archive.ExtractTarGz(ctx, path, spec.Root)
	}
	if err != nil {
		_ = os.RemoveAll(spec.Root)
		return nil, apperrors.Integration("archive extraction", "", err)
	}
	s.logger.InfoContext(ctx, "extracted source archive", "root", spec.Root, "files", n)
	return &model.WorkingTree{Root: spec.Root, Branch: spec.Branch}, nil
}

func (s *Syncer) download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", apperrors.ValidationField("source", err.Error())
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", apperrors.Integration("archive download", "", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Integration("archive download", resp.Status, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	suffix := ".tar.gz"
	if IsArchive(rawURL) && strings.Contains(strings.ToLower(rawURL), ".zip") {
		suffix = ".zip"
	}
	f, err := os.CreateTemp("", "wasm-src-*"+suffix)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "create download file")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", apperrors.Integration("archive download", "", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "close download file")
	}
	return f.Name(), nil
}

// CurrentRef returns the HEAD commit and branch of the tree at root. Both are
// empty for trees that are not git repositories.
func (s *Syncer) CurrentRef(ctx context.Context, root string) (string, string, error) {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		return "", "", nil
	}
	st := &syncState{root: root}
	commit, err := s.git(ctx, st, "rev-parse", "HEAD")
	if err != nil {
		return "", "", gitFailure("git rev-parse", err)
	}
	branch, err := s.git(ctx, st, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", "", gitFailure("git rev-parse", err)
	}
	return commit, branch, nil
}

// gitFailure wraps a git error as an integration failure keeping git's output.
func gitFailure(what string, err error) error {
	diag := ""
	if ce, ok := err.(*CommandError); ok { //nolint:errorlint // runner returns the concrete type
		diag = ce.Output()
	}
	return apperrors.Integration(what, diag, err)
}

package gitsync

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

const dubiousOwnership = "dubious ownership"

// syncState carries per-call state across git invocations.
type syncState struct {
	root    string
	trusted bool
}

// git runs a command in st.root. The first "dubious ownership" failure marks
// the tree as a safe directory and retries once.
func (s *Syncer) git(ctx context.Context, st *syncState, args ...string) (string, error) {
	out, err := s.runner.Run(ctx, st.root, args...)
	if err == nil || st.trusted || !strings.Contains(err.Error(), dubiousOwnership) {
		return out, err
	}
	if _, terr := s.runner.Run(ctx, st.root, "config", "--global", "--add", "safe.directory", st.root); terr != nil {
		return "", fmt.Errorf("trust %s: %w", st.root, terr)
	}
	st.trusted = true
	s.logger.WarnContext(ctx, "added application root to git safe.directory", "root", st.root)
	return s.runner.Run(ctx, st.root, args...)
}

// Sync brings a git working tree up to date with its remote branch. Tracked
// modifications are stashed and reapplied; untracked files and preserved
// ignored files (such as .env) are kept. A stash that cannot be reapplied
// leaves the tree at its previous commit with the changes restored and
// returns a sync conflict.
//
// A tree extracted from an archive is extracted again from tree.Source, with
// files matching the preserve globs carried over.
func (s *Syncer) Sync(ctx context.Context, tree *model.WorkingTree) (*model.SyncResult, error) {
	if tree == nil {
		return nil, apperrors.Validationf("no working tree to sync")
	}
	if !tree.IsGit {
		if !IsArchive(tree.Source) {
			return nil, apperrors.Validationf("application source is neither a git repository nor an archive")
		}
		return s.syncArchive(ctx, tree)
	}
	st := &syncState{root: tree.Root}
	log := s.logger.With("root", tree.Root)

	prev, err := s.git(ctx, st, "rev-parse", "HEAD")
	if err != nil {
		return nil, gitFailure("git rev-parse", err)
	}
	branch := tree.Branch
	if branch == "" {
		if branch, err = s.git(ctx, st, "rev-parse", "--abbrev-ref", "HEAD"); err != nil {
			return nil, gitFailure("git rev-parse", err)
		}
	}
	res := &model.SyncResult{PreviousRef: prev}

	kept, err := s.preserveFiles(ctx, st)
	if err != nil {
		return nil, err
	}
	defer kept.cleanup()
	res.PreservedPaths = kept.paths

	dirty, err := s.git(ctx, st, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return nil, s.abort(ctx, st, kept, false, gitFailure("git status", err))
	}
	if dirty != "" {
		msg := "wasm-autostash-" + strconv.FormatInt(time.Now().UTC().Unix(), 10)
		if _, err := s.git(ctx, st, "stash", "push", "-m", msg); err != nil {
			return nil, s.abort(ctx, st, kept, false, gitFailure("git stash", err))
		}
		res.Stashed = true
		if res.StashRef, err = s.git(ctx, st, "rev-parse", "stash@{0}"); err != nil {
			return nil, s.abort(ctx, st, kept, true, gitFailure("git rev-parse", err))
		}
		log.InfoContext(ctx, "stashed local changes", "stash", res.StashRef)
	}

	if res.Diverged, err = s.advance(ctx, st, branch); err != nil {
		return nil, s.abort(ctx, st, kept, res.Stashed, err)
	}
	if err := kept.restore(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "restore preserved files")
	}

	if res.Stashed {
		if _, err := s.git(ctx, st, "stash", "pop"); err != nil {
			return nil, s.resolveConflict(ctx, st, kept, prev, err)
		}
		res.Restored = true
	}

	if res.NewRef, err = s.git(ctx, st, "rev-parse", "HEAD"); err != nil {
		return nil, gitFailure("git rev-parse", err)
	}
	res.TrustAdded = st.trusted
	tree.Ref = res.NewRef
	tree.Branch = branch

	log.InfoContext(ctx, "synced source",
		"previous_ref", res.PreviousRef,
		"new_ref", res.NewRef,
		"stashed", res.Stashed,
		"diverged", res.Diverged,
		"preserved", len(res.PreservedPaths),
	)
	return res, nil
}

// advance fetches branch and moves HEAD to the remote tip, fast-forwarding
// when possible. It reports whether the local history had diverged.
func (s *Syncer) advance(ctx context.Context, st *syncState, branch string) (bool, error) {
	if _, err := s.git(ctx, st, "fetch", "origin", branch); err != nil {
		return false, gitFailure("git fetch", err)
	}
	remote := "origin/" + branch

	_, err := s.git(ctx, st, "merge-base", "--is-ancestor", "HEAD", remote)
	if err == nil {
		if _, err := s.git(ctx, st, "merge", "--ff-only", remote); err != nil {
			return false, gitFailure("git merge", err)
		}
		return false, nil
	}
	if exitCode(err) != 1 {
		return false, gitFailure("git merge-base", err)
	}

	s.logger.WarnContext(ctx, "local history diverged from remote, resetting", "root", st.root, "remote", remote)
	if _, err := s.git(ctx, st, "reset", "--hard", remote); err != nil {
		return true, gitFailure("git reset", err)
	}
	return true, nil
}

// abort puts user files back after a failure before the tree was advanced.
func (s *Syncer) abort(ctx context.Context, st *syncState, kept *preserved, stashed bool, cause error) error {
	var errs []error
	if err := kept.restore(); err != nil {
		errs = append(errs, fmt.Errorf("restore preserved files: %w", err))
	}
	if stashed {
		if _, err := s.git(ctx, st, "stash", "pop"); err != nil {
			errs = append(errs, fmt.Errorf("reapply stash: %w", err))
		}
	}
	if len(errs) > 0 {
		s.logger.ErrorContext(ctx, "could not fully undo source sync", "root", st.root, "error", errs)
	}
	return cause
}

// resolveConflict handles a stash that does not apply on the new tip: the
// tree goes back to prev, where the stash applies cleanly, and the caller gets
// the conflicting files.
func (s *Syncer) resolveConflict(ctx context.Context, st *syncState, kept *preserved, prev string, popErr error) error {
	files := s.conflictedFiles(ctx, st)
	diag := popOutput(popErr)
	if patch, err := s.git(ctx, st, "stash", "show", "-p", "stash@{0}"); err == nil {
		if summary := summarizePatch(patch); summary != "" {
			diag = strings.TrimSpace(diag + "\n" + summary)
		}
	}
	if len(files) == 0 {
		files = s.stashFiles(ctx, st)
	}

	if _, err := s.git(ctx, st, "reset", "--hard", prev); err != nil {
		return apperrors.Integration("git reset", popOutput(err), fmt.Errorf("recover from stash conflict: %w", err))
	}
	kept.again()
	if err := kept.restore(); err != nil {
		s.logger.ErrorContext(ctx, "restore preserved files after conflict", "root", st.root, "error", err)
	}
	if _, err := s.git(ctx, st, "stash", "pop"); err != nil {
		diag = strings.TrimSpace(diag + "\nlocal changes kept in stash@{0}")
		s.logger.ErrorContext(ctx, "stash kept after conflict", "root", st.root, "error", err)
	}

	s.logger.WarnContext(ctx, "local changes conflict with remote update",
		"root", st.root, "files", files, "previous_ref", prev)
	return apperrors.SyncConflict(files, diag)
}

func (s *Syncer) conflictedFiles(ctx context.Context, st *syncState) []string {
	out, err := s.git(ctx, st, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil
	}
	return splitLines(out)
}

func (s *Syncer) stashFiles(ctx context.Context, st *syncState) []string {
	out, err := s.git(ctx, st, "stash", "show", "--name-only", "stash@{0}")
	if err != nil {
		return nil
	}
	return splitLines(out)
}

func popOutput(err error) string {
	if ce, ok := err.(*CommandError); ok { //nolint:errorlint // runner returns the concrete type
		return ce.Output()
	}
	return err.Error()
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// syncArchive swaps an extracted tree for a fresh extraction of tree.Source.
// Preserved files are put back even when the extraction fails.
func (s *Syncer) syncArchive(ctx context.Context, tree *model.WorkingTree) (*model.SyncResult, error) {
	kept, err := s.preserveMatching(tree.Root)
	if err != nil {
		return nil, err
	}
	defer kept.cleanup()

	if err := os.RemoveAll(tree.Root); err != nil {
		return nil, s.abortArchive(ctx, kept, apperrors.Wrap(err, apperrors.ErrCodeInternal, "clear archive tree"))
	}
	if _, err := s.fetchArchive(ctx, model.SourceSpec{URL: tree.Source, Branch: tree.Branch, Root: tree.Root}); err != nil {
		return nil, s.abortArchive(ctx, kept, err)
	}
	if err := kept.restore(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "restore preserved files")
	}

	s.logger.InfoContext(ctx, "refreshed source archive",
		"root", tree.Root,
		"source", tree.Source,
		"preserved", len(kept.paths),
	)
	return &model.SyncResult{PreservedPaths: kept.paths}, nil
}

func (s *Syncer) abortArchive(ctx context.Context, kept *preserved, cause error) error {
	if err := kept.restore(); err != nil {
		s.logger.ErrorContext(ctx, "preserved files not restored", "dir", kept.dir, "error", err)
	}
	return cause
}

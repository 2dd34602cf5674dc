package gitsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	apperrors "github.com/Perkybeet/wasm/internal/errors"
)

// preserved holds user files moved out of the tree while it is updated.
type preserved struct {
	root  string
	dir   string
	paths []string
	// restored guards against double restores, which would clobber edits made in between.
	restored bool
}

// preserveFiles copies untracked files and ignored files matching the
// preserve globs to a temporary directory and removes them from the tree so
// that neither fast-forward nor reset trips over them.
func (s *Syncer) preserveFiles(ctx context.Context, st *syncState) (*preserved, error) {
	untracked, err := s.git(ctx, st, "ls-files", "-z", "--others", "--exclude-standard")
	if err != nil {
		return nil, gitFailure("git ls-files", err)
	}
	ignored, err := s.git(ctx, st, "ls-files", "-z", "--others", "--ignored", "--exclude-standard", "--directory")
	if err != nil {
		return nil, gitFailure("git ls-files", err)
	}

	paths := splitNUL(untracked)
	for _, rel := range splitNUL(ignored) {
		if strings.HasSuffix(rel, "/") {
			continue
		}
		if matchAny(s.preserve, rel) {
			paths = append(paths, rel)
		}
	}
	return moveAside(&preserved{root: st.root}, paths)
}

// unsearched directories are regenerated by an install or build, so files in
// them are never preserved from an extracted tree.
var unsearched = map[string]bool{".git": true, "node_modules": true, ".next": true}

// preserveMatching moves files matching the preserve globs out of a tree
// that is not under version control. A missing root preserves nothing.
func (s *Syncer) preserveMatching(root string) (*preserved, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && unsearched[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel = filepath.ToSlash(rel); matchAny(s.preserve, rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "scan application tree")
	}
	return moveAside(&preserved{root: root}, paths)
}

// moveAside copies paths into a temporary directory and removes them from
// p.root. Nothing is removed unless every copy succeeded.
func moveAside(p *preserved, paths []string) (*preserved, error) {
	if len(paths) == 0 {
		p.restored = true
		return p, nil
	}

	var err error
	if p.dir, err = os.MkdirTemp("", "wasm-preserve-*"); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "create preserve dir")
	}
	for _, rel := range paths {
		if err := copyEntry(filepath.Join(p.root, rel), filepath.Join(p.dir, rel)); err != nil {
			_ = os.RemoveAll(p.dir)
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "preserve %s", rel)
		}
	}
	p.paths = paths
	for _, rel := range paths {
		if err := os.Remove(filepath.Join(p.root, rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
			_ = p.restore()
			p.cleanup()
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "move %s aside", rel)
		}
	}
	return p, nil
}

// restore copies preserved files back into the tree, overwriting whatever the
// update put at the same path. It is a no-op once it has succeeded.
func (p *preserved) restore() error {
	if p == nil || p.restored {
		return nil
	}
	var errs []error
	for _, rel := range p.paths {
		dst := filepath.Join(p.root, rel)
		if err := os.RemoveAll(dst); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := copyEntry(filepath.Join(p.dir, rel), dst); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rel, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.restored = true
	return nil
}

// again re-arms restore after the tree has been reset once more.
func (p *preserved) again() {
	if p != nil && len(p.paths) > 0 {
		p.restored = false
	}
}

// cleanup removes the temporary copy unless files are still waiting to be restored.
func (p *preserved) cleanup() {
	if p == nil || p.dir == "" || !p.restored {
		return
	}
	_ = os.RemoveAll(p.dir)
}

func copyEntry(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// matchAny matches rel, or its base name, against shell globs.
func matchAny(globs []string, rel string) bool {
	base := path.Base(rel)
	for _, g := range globs {
		if ok, _ := path.Match(g, rel); ok {
			return true
		}
		if ok, _ := path.Match(g, base); ok {
			return true
		}
	}
	return false
}

func splitNUL(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "\x00") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

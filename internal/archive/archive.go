// Package archive writes and reads the gzip-compressed tarballs used for
// application backups and archive sources.
package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ExcludeFunc reports whether the entry at rel (slash separated, relative to
// the archive root) is left out. Excluding a directory skips its subtree.
type ExcludeFunc func(rel string, d fs.DirEntry) bool

// Result describes a written archive.
type Result struct {
	Path     string
	Checksum string // hex sha256 of the compressed file
	Size     int64
	Files    int
}

// Entry is an in-memory file added to an archive ahead of the tree.
type Entry struct {
	Name string
	Data []byte
}

// ErrUnsafePath is returned when an archive entry would escape the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// CreateTarGz archives srcDir into destPath. The file is written beside
// destPath and renamed into place once complete, so readers never see a
// partial archive. The checksum is computed while writing. Extra entries are
// written first and do not count towards Result.Files.
func CreateTarGz(ctx context.Context, srcDir, destPath string, exclude ExcludeFunc, extra ...Entry) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return Result{}, fmt.Errorf("create archive directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".partial-*")
	if err != nil {
		return Result{}, fmt.Errorf("create archive: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hasher := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, hasher)}
	gz, err := gzip.NewWriterLevel(counter, gzip.DefaultCompression)
	if err != nil {
		return Result{}, fmt.Errorf("gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	for _, e := range extra {
		if err := writeEntry(tw, e); err != nil {
			return Result{}, err
		}
	}
	files, err := writeTree(ctx, tw, srcDir, exclude)
	if err != nil {
		return Result{}, err
	}
	if err := tw.Close(); err != nil {
		return Result{}, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return Result{}, fmt.Errorf("close gzip: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return Result{}, fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		return Result{}, fmt.Errorf("move archive into place: %w", err)
	}
	committed = true

	return Result{
		Path:     destPath,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
		Size:     counter.n,
		Files:    files,
	}, nil
}

func writeTree(ctx context.Context, tw *tar.Writer, srcDir string, exclude ExcludeFunc) (int, error) {
	files := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if exclude != nil && exclude(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("header for %s: %w", rel, err)
		}
		hdr.Name = rel
		if d.IsDir() {
			hdr.Name += "/"
		}
		// Ownership is re-applied by the host on restore.
		hdr.Uname, hdr.Gname = "", ""
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", rel, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if err := copyFileInto(tw, path); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		files++
		return nil
	})
	return files, err
}

func writeEntry(tw *tar.Writer, e Entry) error {
	hdr := &tar.Header{
		Name:     e.Name,
		Mode:     0o600,
		Size:     int64(len(e.Data)),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", e.Name, err)
	}
	if _, err := tw.Write(e.Data); err != nil {
		return fmt.Errorf("write %s: %w", e.Name, err)
	}
	return nil
}

func copyFileInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(w, f)
	return err
}

// ChecksumFile returns the hex sha256 and size of the file at path.
func ChecksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ListTarGz reads the whole archive and returns its entry names. It fails if
// the archive is truncated or not a gzip tarball.
func ListTarGz(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip.NewReader failed: %w", err)
	}
	defer func() { _ = gz.Close() }()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return nil, err
		}
		names = append(names, strings.TrimSuffix(hdr.Name, "/"))
	}
}

// ReadEntry returns the contents of the named regular file in the archive.
func ReadEntry(path, name string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip.NewReader failed: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name == name && hdr.Typeflag == tar.TypeReg {
			return io.ReadAll(tr)
		}
	}
}

// ExtractTarGz unpacks the archive into destDir, which must already exist.
// Entries that would land outside destDir are rejected; entries named in skip
// are left out.
func ExtractTarGz(ctx context.Context, archivePath, destDir string, skip ...string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("gzip.NewReader failed: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	files := 0
	for {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return files, err
		}
		if slices.Contains(skip, hdr.Name) {
			continue
		}
		n, err := extractEntry(hdr, tr, destDir)
		if err != nil {
			return files, err
		}
		files += n
	}
}

func extractEntry(hdr *tar.Header, r io.Reader, destDir string) (int, error) {
	target, err := safeJoin(destDir, hdr.Name)
	if err != nil {
		return 0, err
	}
	mode := os.FileMode(hdr.Mode).Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		return 0, os.MkdirAll(target, mode|0o700)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return 0, err
		}
		if err := writeFile(target, r, mode); err != nil {
			return 0, err
		}
		return 1, nil
	case tar.TypeSymlink:
		if err := checkLink(destDir, target, hdr.Linkname); err != nil {
			return 0, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return 0, err
		}
		_ = os.Remove(target)
		return 0, os.Symlink(hdr.Linkname, target)
	default:
		// Devices, fifos and hard links never occur in application trees.
		return 0, nil
	}
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func safeJoin(destDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(destDir, clean), nil
}

func checkLink(destDir, target, linkname string) error {
	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), linkname)
	}
	rel, err := filepath.Rel(destDir, filepath.Clean(resolved))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: link %q -> %q", ErrUnsafePath, target, linkname)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

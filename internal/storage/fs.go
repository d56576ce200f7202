package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/models"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the repository directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute repository directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a repository path against the root and rejects any
// result that escapes it.
func (f *FS) safePath(p string) (string, error) {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return "", fmt.Errorf("storage: path escapes repository root: %s", p)
		}
	}
	r := rel(p)
	if r == "" {
		return f.root, nil
	}
	abs := filepath.Join(f.root, filepath.FromSlash(r))
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes repository root: %s", p)
	}
	return abs, nil
}

// toRepoPath converts an absolute file path back into a "/a/b" repository path.
func (f *FS) toRepoPath(abs string) string {
	r, err := filepath.Rel(f.root, abs)
	if err != nil {
		return Clean(abs)
	}
	return Clean(filepath.ToSlash(r))
}

func wrapNotExist(op, p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w", op, p, apperr.ErrNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w", op, p, err)
}

// ReadFile returns the raw bytes of a repository file.
func (f *FS) ReadFile(_ context.Context, p string) ([]byte, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrapNotExist("read", p, err)
	}
	return data, nil
}

// ReadDir lists the regular files directly inside dir.
func (f *FS) ReadDir(_ context.Context, dir string) ([]models.FileInfo, error) {
	abs, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, wrapNotExist("read dir", dir, err)
	}
	out := make([]models.FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, wrapNotExist("stat", dir, err)
		}
		out = append(out, models.FileInfo{
			Path:    f.toRepoPath(filepath.Join(abs, e.Name())),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// Walk returns every regular file under dir, recursively. Hidden
// directories such as .git are skipped.
func (f *FS) Walk(_ context.Context, dir string) ([]models.FileInfo, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.FileInfo
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() && p != base && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), TempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, models.FileInfo{
			Path:    f.toRepoPath(p),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, wrapNotExist("walk", dir, err)
	}
	return out, nil
}

// ExistsFile reports whether a regular file exists at p.
func (f *FS) ExistsFile(_ context.Context, p string) (bool, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat %s: %w", p, err)
	}
	return info.Mode().IsRegular(), nil
}

// TempPrefix names the scratch files of atomic writes.
const TempPrefix = ".editor-tmp-"

// WriteFile atomically writes content: tmp file → fsync → rename.
func (f *FS) WriteFile(_ context.Context, p string, content []byte) error {
	abs, tmpName, err := f.writeTemp(p, content)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// CreateFile writes content to p only if p does not exist yet. The fully
// written temp file is hard-linked into place, which fails when p exists.
func (f *FS) CreateFile(_ context.Context, p string, content []byte) error {
	abs, tmpName, err := f.writeTemp(p, content)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpName) }()
	if err := os.Link(tmpName, abs); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("storage: create %s: %w", p, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("storage: link: %w", err)
	}
	return nil
}

// writeTemp writes content to a synced temp file next to p and returns the
// resolved target and the temp file name.
func (f *FS) writeTemp(p string, content []byte) (abs, tmpName string, err error) {
	abs, err = f.safePath(p)
	if err != nil {
		return "", "", err
	}
	if abs == f.root {
		return "", "", fmt.Errorf("storage: cannot write to repository root")
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return "", "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName = tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("storage: close temp: %w", err)
	}
	success = true
	return abs, tmpName, nil
}

// DeleteFile removes a file from the repository.
func (f *FS) DeleteFile(_ context.Context, p string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return wrapNotExist("delete", p, err)
	}
	return nil
}

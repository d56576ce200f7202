// Package storage defines the repository file-system abstraction used by connectors.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/starford/editor-server/internal/models"
)

// Provider is the interface for repository file operations.
//
// All paths are relative to a single repository root; a leading "/" is
// accepted and ignored. A missing file or directory yields an error that
// wraps apperr.ErrNotFound.
type Provider interface {
	// ReadFile returns the raw bytes of the file at path.
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// ReadDir lists the regular files directly inside dir.
	ReadDir(ctx context.Context, dir string) ([]models.FileInfo, error)
	// ExistsFile reports whether a regular file exists at path.
	ExistsFile(ctx context.Context, path string) (bool, error)
	// WriteFile writes content to path, creating parent directories.
	WriteFile(ctx context.Context, path string, content []byte) error
	// DeleteFile removes the file at path.
	DeleteFile(ctx context.Context, path string) error
}

// Lister is implemented by providers that can enumerate every file under a
// directory in one call.
type Lister interface {
	Walk(ctx context.Context, dir string) ([]models.FileInfo, error)
}

// Creator is implemented by providers that can write a file only while its
// path is free. An existing file yields an error wrapping
// apperr.ErrAlreadyExists.
type Creator interface {
	CreateFile(ctx context.Context, path string, content []byte) error
}

// Clean normalises a repository path to the "/a/b.txt" form used in
// listings and editor responses.
func Clean(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

// rel converts a repository path into a root-relative key without a
// leading slash ("" for the root itself).
func rel(p string) string {
	return strings.TrimPrefix(Clean(p), "/")
}

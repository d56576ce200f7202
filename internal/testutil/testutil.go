// Package testutil provides shared test helpers for setting up projects and
// history databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/editor-server/internal/history"
	"github.com/starford/editor-server/internal/storage"
)

// TestHistory creates a temporary history database that is automatically cleaned up.
func TestHistory(t *testing.T) *history.DB {
	t.Helper()
	db, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// WriteProject writes files, keyed by slash-separated paths, into a
// temporary directory and returns its root.
func WriteProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// TestProject writes files into a temporary project and returns a
// storage.FS over it.
func TestProject(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	root := WriteProject(t, files)
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

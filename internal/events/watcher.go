package events

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/editor-server/internal/storage"
)

// Callback receives a change kind and the repository path ("/content/a.md").
type Callback func(kind, path string)

// Watcher reports file changes below a local project root.
type Watcher struct {
	root   string
	accept func(string) bool
	log    *slog.Logger
}

// NewWatcher creates a watcher for root. accept filters repository paths;
// nil accepts everything.
func NewWatcher(root string, accept func(string) bool, logger *slog.Logger) *Watcher {
	if accept == nil {
		accept = func(string) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: root, accept: accept, log: logger}
}

// repoPath maps an absolute path onto a repository path.
func (w *Watcher) repoPath(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return storage.Clean(filepath.ToSlash(rel)), true
}

func (w *Watcher) emit(cb Callback, kind, abs string) {
	if strings.HasPrefix(filepath.Base(abs), storage.TempPrefix) {
		return
	}
	p, ok := w.repoPath(abs)
	if !ok || !w.accept(p) {
		return
	}
	w.log.Debug("watcher: change", slog.String("path", p), slog.String("op", kind))
	cb(kind, p)
}

// Run watches the root until ctx is cancelled. Directories created while
// running are watched too, and the files already inside them are reported
// as created.
func (w *Watcher) Run(ctx context.Context, cb Callback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}

	w.log.Info("watcher: started", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher: stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						w.log.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					w.reportDir(ev.Name, cb)
					continue
				}
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				w.emit(cb, KindCreated, ev.Name)
			case ev.Op&fsnotify.Write != 0:
				w.emit(cb, KindUpdated, ev.Name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path; the new path arrives as Create.
				w.emit(cb, KindDeleted, ev.Name)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reportDir reports every file of a newly created directory as created.
func (w *Watcher) reportDir(dir string, cb Callback) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		w.emit(cb, KindCreated, p)
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping hidden directories such as .git.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(path.Base(filepath.ToSlash(p)), ".") {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

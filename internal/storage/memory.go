package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/models"
)

// Memory is an in-process Provider, used for dry runs and tests.
type Memory struct {
	mu    sync.RWMutex
	files map[string]memFile
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns a Memory provider seeded with files (path → content).
func NewMemory(files map[string]string) *Memory {
	m := &Memory{files: make(map[string]memFile, len(files))}
	now := time.Now()
	for p, content := range files {
		m.files[Clean(p)] = memFile{data: []byte(content), modTime: now}
	}
	return m
}

func (m *Memory) ReadFile(_ context.Context, p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[Clean(p)]
	if !ok {
		return nil, fmt.Errorf("storage: read %s: %w", p, apperr.ErrNotFound)
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

func (m *Memory) ReadDir(ctx context.Context, dir string) ([]models.FileInfo, error) {
	all, err := m.Walk(ctx, dir)
	if err != nil {
		return nil, err
	}
	base := Clean(dir)
	out := all[:0]
	for _, f := range all {
		if path.Dir(f.Path) == base {
			out = append(out, f)
		}
	}
	if len(out) == 0 && !m.hasDir(base) {
		return nil, fmt.Errorf("storage: read dir %s: %w", dir, apperr.ErrNotFound)
	}
	return out, nil
}

func (m *Memory) Walk(_ context.Context, dir string) ([]models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := strings.TrimSuffix(Clean(dir), "/") + "/"
	var out []models.FileInfo
	for p, f := range m.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, models.FileInfo{Path: p, Size: int64(len(f.data)), ModTime: f.modTime})
		}
	}
	SortByPath(out)
	return out, nil
}

func (m *Memory) hasDir(dir string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if dir == "/" {
		return true
	}
	prefix := dir + "/"
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (m *Memory) ExistsFile(_ context.Context, p string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[Clean(p)]
	return ok, nil
}

func (m *Memory) WriteFile(_ context.Context, p string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := make([]byte, len(content))
	copy(data, content)
	m.files[Clean(p)] = memFile{data: data, modTime: time.Now()}
	return nil
}

func (m *Memory) CreateFile(_ context.Context, p string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Clean(p)
	if _, ok := m.files[key]; ok {
		return fmt.Errorf("storage: create %s: %w", p, apperr.ErrAlreadyExists)
	}
	data := make([]byte, len(content))
	copy(data, content)
	m.files[key] = memFile{data: data, modTime: time.Now()}
	return nil
}

func (m *Memory) DeleteFile(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Clean(p)
	if _, ok := m.files[key]; !ok {
		return fmt.Errorf("storage: delete %s: %w", p, apperr.ErrNotFound)
	}
	delete(m.files, key)
	return nil
}

var (
	_ Provider = (*Memory)(nil)
	_ Lister   = (*Memory)(nil)
	_ Creator  = (*Memory)(nil)
	_ Provider = (*FS)(nil)
	_ Lister   = (*FS)(nil)
	_ Creator  = (*FS)(nil)
)

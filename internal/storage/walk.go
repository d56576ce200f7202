package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/starford/editor-server/internal/models"
)

// Walk returns every file under dir. Providers implementing Lister answer
// in one call; anything else is only listed one level deep.
func Walk(ctx context.Context, p Provider, dir string) ([]models.FileInfo, error) {
	if l, ok := p.(Lister); ok {
		return l.Walk(ctx, dir)
	}
	files, err := p.ReadDir(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("storage: walk %s: %w", dir, err)
	}
	return files, nil
}

// SortByPath orders listings deterministically.
func SortByPath(files []models.FileInfo) {
	sort.Slice(files, func(i, j int) bool {
		return strings.Compare(files[i].Path, files[j].Path) < 0
	})
}

// Package partials enumerates the partial templates of a Grow project and
// their editor field schemas.
package partials

import (
	"context"
	"fmt"
	"path"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/starford/editor-server/internal/frontmatter"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/storage"
	"github.com/starford/editor-server/internal/yamlschema"
)

// Dir is where partial templates live.
const Dir = "/views/partials/"

// DefaultConcurrency bounds concurrent reads.
const DefaultConcurrency = 8

// EditorKey is the metadata key holding a field schema.
const EditorKey = "editor"

type options struct {
	concurrency int
}

// Option configures List.
type Option func(*options)

// WithConcurrency overrides DefaultConcurrency. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// Name derives a partial name from a file path: the base name up to its first dot.
func Name(p string) string {
	name, _, _ := strings.Cut(path.Base(p), ".")
	return name
}

// List reads every file in Dir and returns the partials keyed by name, in
// directory listing order. A later file with the same name replaces an
// earlier one. Any read or parse failure fails the whole call.
func List(ctx context.Context, store storage.Provider, schema *yamlschema.Schema, opts ...Option) (*orderedmap.OrderedMap[string, models.GrowPartialData], error) {
	o := options{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}

	files, err := store.ReadDir(ctx, Dir)
	if err != nil {
		return nil, fmt.Errorf("partials: list %s: %w", Dir, err)
	}

	results := make([]models.GrowPartialData, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, f := range files {
		g.Go(func() error {
			p, err := load(gctx, store, schema, f.Path)
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := orderedmap.New[string, models.GrowPartialData]()
	for _, p := range results {
		out.Set(p.Partial, p)
	}
	return out, nil
}

func load(ctx context.Context, store storage.Provider, schema *yamlschema.Schema, p string) (models.GrowPartialData, error) {
	desc := models.GrowPartialData{Partial: Name(p)}

	raw, err := store.ReadFile(ctx, p)
	if err != nil {
		return desc, fmt.Errorf("partials: read %s: %w", p, err)
	}
	parts := frontmatter.Split(raw)
	if !parts.HasFrontMatter {
		return desc, nil
	}
	meta, err := schema.DecodeValue(ctx, parts.FrontMatter)
	if err != nil {
		return desc, fmt.Errorf("partials: parse %s: %w", p, err)
	}
	// Front matter that is not a mapping carries no schema.
	fields, ok := meta.(*orderedmap.OrderedMap[string, any])
	if !ok {
		return desc, nil
	}
	if editor, ok := fields.Get(EditorKey); ok && present(editor) {
		desc.Editor = editor
	}
	return desc, nil
}

// present reports whether an editor value is set: null, false, zero and the
// empty string count as absent.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case float64:
		return t != 0
	}
	return true
}

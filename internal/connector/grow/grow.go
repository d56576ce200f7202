// Package grow implements the connector for Grow static-site projects.
package grow

import (
	"context"
	"fmt"
	"log/slog"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/editor-server/internal/connector"
	"github.com/starford/editor-server/internal/history"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/partials"
	"github.com/starford/editor-server/internal/storage"
	"github.com/starford/editor-server/internal/yamlschema"
)

const (
	// Name identifies the connector in logs and responses.
	Name = "grow"
	// PodspecPath is the project configuration file and the marker of a Grow project.
	PodspecPath = "/podspec.yaml"
)

// Option configures a Connector.
type Option func(*Connector)

// WithPartialsConcurrency bounds concurrent partial reads.
func WithPartialsConcurrency(n int) Option {
	return func(c *Connector) { c.partialsConcurrency = n }
}

// WithHistoryLimit bounds the history entries attached to a file response.
func WithHistoryLimit(n int) Option {
	return func(c *Connector) { c.historyLimit = n }
}

// WithImportDepth bounds nested !import resolution.
func WithImportDepth(n int) Option {
	return func(c *Connector) { c.importDepth = n }
}

// WithFilter replaces DefaultFilter for file listings. A nil filter keeps
// the default.
func WithFilter(f *Filter) Option {
	return func(c *Connector) {
		if f != nil {
			c.filter = f
		}
	}
}

// Connector serves a Grow project from a storage provider.
type Connector struct {
	store   storage.Provider
	schema  *yamlschema.Schema
	history history.Recorder
	log     *slog.Logger
	filter  *Filter

	partialsConcurrency int
	historyLimit        int
	importDepth         int
}

var (
	_ connector.Connector      = (*Connector)(nil)
	_ connector.PartialsLister = (*Connector)(nil)
)

// New creates a Grow connector.
func New(env connector.Env, opts ...Option) *Connector {
	c := &Connector{
		store:               env.Store,
		history:             env.History,
		log:                 env.Logger,
		filter:              DefaultFilter(),
		partialsConcurrency: partials.DefaultConcurrency,
		historyLimit:        10,
		importDepth:         yamlschema.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.history == nil {
		c.history = history.Nop{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With(slog.String("connector", Name))
	c.schema = yamlschema.New(c.store, yamlschema.WithMaxDepth(c.importDepth))
	return c
}

// CanApply reports whether store holds a Grow project.
func CanApply(ctx context.Context, store storage.Provider) (bool, error) {
	return store.ExistsFile(ctx, PodspecPath)
}

// NewFactory returns the factory used for connector selection.
func NewFactory(opts ...Option) connector.Factory {
	return connector.Factory{
		Name:     Name,
		CanApply: CanApply,
		New: func(env connector.Env) connector.Connector {
			return New(env, opts...)
		},
	}
}

// Filter returns the filter applied to file listings.
func (c *Connector) Filter() *Filter { return c.filter }

// GetProject reads the project title from the podspec.
func (c *Connector) GetProject(ctx context.Context, _ models.GetProjectRequest) (*models.ProjectData, error) {
	raw, err := c.store.ReadFile(ctx, PodspecPath)
	if err != nil {
		return nil, fmt.Errorf("grow: read podspec: %w", err)
	}
	pod, err := c.schema.Decode(ctx, string(raw))
	if err != nil {
		return nil, fmt.Errorf("grow: decode podspec: %w", err)
	}
	project := &models.ProjectData{}
	if title, ok := pod.Get("title"); ok && title != nil {
		project.Title = fmt.Sprint(title)
	}
	return project, nil
}

// GetPartials lists the project's partial templates.
func (c *Connector) GetPartials(ctx context.Context, _ models.GetPartialsRequest) (*orderedmap.OrderedMap[string, models.GrowPartialData], error) {
	return partials.List(ctx, c.store, c.schema, partials.WithConcurrency(c.partialsConcurrency))
}

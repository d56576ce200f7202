// Package yamlschema decodes YAML documents whose custom tags pull in content
// from other files of the same storage.
package yamlschema

import (
	"context"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/storage"
)

// DefaultMaxDepth bounds nested imports.
const DefaultMaxDepth = 8

// Resolver replaces a tagged node with the node it stands for. Returned
// nodes must already be fully resolved.
type Resolver func(ctx context.Context, s *Schema, node *yaml.Node) (*yaml.Node, error)

// Schema is a registry of custom tags bound to a storage.
type Schema struct {
	store    storage.Provider
	maxDepth int
	tags     map[string]Resolver
}

// Option configures a Schema.
type Option func(*Schema)

// WithMaxDepth overrides DefaultMaxDepth. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(s *Schema) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// New returns a schema with the built-in tags !import, !g.yaml and !g.string.
func New(store storage.Provider, opts ...Option) *Schema {
	s := &Schema{
		store:    store,
		maxDepth: DefaultMaxDepth,
		tags:     make(map[string]Resolver),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Register("!import", importYAML)
	s.Register("!g.yaml", importYAML)
	s.Register("!g.string", importString)
	return s
}

// Register binds tag to r, replacing any previous binding.
func (s *Schema) Register(tag string, r Resolver) {
	s.tags[tag] = r
}

type depthKey struct{}

func depthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Parse parses text and resolves every registered tag in place. Empty input
// yields a zero node.
func (s *Schema) Parse(ctx context.Context, text string) (*yaml.Node, error) {
	if d := depthFrom(ctx); d > s.maxDepth {
		return nil, fmt.Errorf("yamlschema: import depth exceeds %d: %w", s.maxDepth, apperr.ErrParse)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("yamlschema: %w: %v", apperr.ErrParse, err)
	}
	if err := s.resolve(ctx, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Schema) resolve(ctx context.Context, node *yaml.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r, ok := s.tags[node.Tag]; ok {
		repl, err := r(ctx, s, node)
		if err != nil {
			return err
		}
		*node = *repl
		return nil
	}
	for _, child := range node.Content {
		if err := s.resolve(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses text into key-ordered metadata. Empty documents decode to an
// empty map; any other non-mapping root is a parse error.
func (s *Schema) Decode(ctx context.Context, text string) (*orderedmap.OrderedMap[string, any], error) {
	doc, err := s.Parse(ctx, text)
	if err != nil {
		return nil, err
	}
	root := documentRoot(doc)
	if root == nil || isNull(root) {
		return orderedmap.New[string, any](), nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("yamlschema: document root is not a mapping: %w", apperr.ErrParse)
	}
	v, err := toValue(root)
	if err != nil {
		return nil, err
	}
	return v.(*orderedmap.OrderedMap[string, any]), nil
}

// DecodeValue parses text into a plain value of any shape. Empty documents
// decode to nil.
func (s *Schema) DecodeValue(ctx context.Context, text string) (any, error) {
	doc, err := s.Parse(ctx, text)
	if err != nil {
		return nil, err
	}
	root := documentRoot(doc)
	if root == nil {
		return nil, nil
	}
	return toValue(root)
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc == nil || doc.Kind == 0 {
		return nil
	}
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return doc.Content[0]
	}
	return doc
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

// isCustomTag reports local tags such as !foo, as opposed to !!str.
func isCustomTag(tag string) bool {
	return strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!")
}

package yamlschema

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/storage"
)

// splitRef splits "path?a.b" into the storage path and the key path.
func splitRef(value string) (string, string) {
	ref, query, _ := strings.Cut(strings.TrimSpace(value), "?")
	return strings.TrimSpace(ref), strings.TrimSpace(query)
}

func (s *Schema) readRef(ctx context.Context, node *yaml.Node, ref string) ([]byte, error) {
	if node.Kind != yaml.ScalarNode || ref == "" {
		return nil, fmt.Errorf("yamlschema: line %d: %s expects a file path: %w", node.Line, node.Tag, apperr.ErrParse)
	}
	raw, err := s.store.ReadFile(ctx, storage.Clean(ref))
	if err != nil {
		return nil, fmt.Errorf("yamlschema: line %d: %s %s: %w: %w", node.Line, node.Tag, ref, apperr.ErrParse, err)
	}
	return raw, nil
}

// loadRef reads and resolves the YAML file behind node one level deeper.
func (s *Schema) loadRef(ctx context.Context, node *yaml.Node, ref string) (*yaml.Node, error) {
	raw, err := s.readRef(ctx, node, ref)
	if err != nil {
		return nil, err
	}
	doc, err := s.Parse(context.WithValue(ctx, depthKey{}, depthFrom(ctx)+1), string(raw))
	if err != nil {
		return nil, fmt.Errorf("yamlschema: %s: %w", ref, err)
	}
	root := documentRoot(doc)
	if root == nil {
		return nullNode(), nil
	}
	return root, nil
}

// importYAML handles !import and !g.yaml: the node becomes the root of the
// referenced document, or the value at ?key.path inside it.
func importYAML(ctx context.Context, s *Schema, node *yaml.Node) (*yaml.Node, error) {
	ref, query := splitRef(node.Value)
	root, err := s.loadRef(ctx, node, ref)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return root, nil
	}
	return lookup(root, query), nil
}

// importString handles !g.string: the whole file as a string, or the scalar
// at ?key.path of a YAML file.
func importString(ctx context.Context, s *Schema, node *yaml.Node) (*yaml.Node, error) {
	ref, query := splitRef(node.Value)
	if query == "" {
		raw, err := s.readRef(ctx, node, ref)
		if err != nil {
			return nil, err
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(raw)}, nil
	}

	root, err := s.loadRef(ctx, node, ref)
	if err != nil {
		return nil, err
	}
	found := lookup(root, query)
	if isNull(found) {
		return found, nil
	}
	if found.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("yamlschema: line %d: %s %s?%s is not a string: %w", node.Line, node.Tag, ref, query, apperr.ErrParse)
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: found.Value}, nil
}

// lookup follows a dotted key path through mappings. Missing keys yield null.
func lookup(root *yaml.Node, keyPath string) *yaml.Node {
	cur := root
	for _, key := range strings.Split(keyPath, ".") {
		for cur.Kind == yaml.AliasNode {
			cur = cur.Alias
		}
		if cur.Kind != yaml.MappingNode {
			return nullNode()
		}
		var next *yaml.Node
		for i := 0; i+1 < len(cur.Content); i += 2 {
			if cur.Content[i].Value == key {
				next = cur.Content[i+1]
			}
		}
		if next == nil {
			return nullNode()
		}
		cur = next
	}
	return cur
}

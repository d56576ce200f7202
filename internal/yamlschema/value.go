package yamlschema

import (
	"bytes"
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/starford/editor-server/internal/apperr"
)

// maxAliasNodes bounds the nodes reached through aliases in one document.
// Anchors nested inside each other expand exponentially.
const maxAliasNodes = 100_000

// decoder converts resolved nodes into plain Go values. Mappings become
// ordered maps so that key order survives into JSON responses.
type decoder struct {
	// expanding holds the anchors whose alias is being expanded.
	expanding map[*yaml.Node]bool
	// aliasDepth is non-zero while decoding inside an alias.
	aliasDepth int
	aliasNodes int
}

func toValue(n *yaml.Node) (any, error) {
	d := &decoder{expanding: make(map[*yaml.Node]bool)}
	return d.value(n)
}

func (d *decoder) value(n *yaml.Node) (any, error) {
	if d.aliasDepth > 0 {
		d.aliasNodes++
		if d.aliasNodes > maxAliasNodes {
			return nil, fmt.Errorf("yamlschema: line %d: aliases expand to more than %d nodes: %w", n.Line, maxAliasNodes, apperr.ErrParse)
		}
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return d.value(n.Content[0])
	case yaml.AliasNode:
		return d.alias(n)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := d.value(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		m := orderedmap.New[string, any]()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.ShortTag() == "!!merge" {
				if err := d.merge(m, v); err != nil {
					return nil, err
				}
				continue
			}
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("yamlschema: line %d: mapping key is not a scalar: %w", k.Line, apperr.ErrParse)
			}
			val, err := d.value(v)
			if err != nil {
				return nil, err
			}
			m.Set(k.Value, val)
		}
		return m, nil
	case yaml.ScalarNode:
		if isCustomTag(n.Tag) {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("yamlschema: line %d: %w: %v", n.Line, apperr.ErrParse, err)
		}
		return v, nil
	}
	return nil, nil
}

// alias decodes the anchored node behind n. An anchor referenced from inside
// itself is a parse error.
func (d *decoder) alias(n *yaml.Node) (any, error) {
	target := n.Alias
	if target == nil {
		return nil, fmt.Errorf("yamlschema: line %d: unknown alias %q: %w", n.Line, n.Value, apperr.ErrParse)
	}
	if d.expanding[target] {
		return nil, fmt.Errorf("yamlschema: line %d: alias %q refers to itself: %w", n.Line, n.Value, apperr.ErrParse)
	}
	d.expanding[target] = true
	d.aliasDepth++
	defer func() {
		delete(d.expanding, target)
		d.aliasDepth--
	}()
	return d.value(target)
}

// merge applies a "<<" merge. Keys already present win.
func (d *decoder) merge(m *orderedmap.OrderedMap[string, any], n *yaml.Node) error {
	var (
		v   any
		err error
	)
	switch n.Kind {
	case yaml.AliasNode:
		v, err = d.alias(n)
	case yaml.MappingNode:
		v, err = d.value(n)
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if err := d.merge(m, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("yamlschema: line %d: merge value is not a mapping: %w", n.Line, apperr.ErrParse)
	}
	if err != nil {
		return err
	}
	src, ok := v.(*orderedmap.OrderedMap[string, any])
	if !ok {
		return fmt.Errorf("yamlschema: line %d: merge value is not a mapping: %w", n.Line, apperr.ErrParse)
	}
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := m.Get(pair.Key); !ok {
			m.Set(pair.Key, pair.Value)
		}
	}
	return nil
}

// Encode serialises v as YAML. Ordered maps keep their key order; plain maps
// are written with sorted keys.
func Encode(v any) ([]byte, error) {
	node, err := toNode(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("yamlschema: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yamlschema: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func toNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *yaml.Node:
		return t, nil
	case *orderedmap.OrderedMap[string, any]:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if t == nil {
			return n, nil
		}
		for pair := t.Oldest(); pair != nil; pair = pair.Next() {
			if err := appendPair(n, pair.Key, pair.Value); err != nil {
				return nil, err
			}
		}
		return n, nil
	case map[string]any:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := appendPair(n, k, t[k]); err != nil {
				return nil, err
			}
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			child, err := toNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	}

	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, fmt.Errorf("yamlschema: encode %T: %w", v, err)
	}
	return n, nil
}

func appendPair(n *yaml.Node, key string, value any) error {
	child, err := toNode(value)
	if err != nil {
		return err
	}
	n.Content = append(n.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		child,
	)
	return nil
}

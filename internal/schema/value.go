package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	jsonpatch "github.com/evanphx/json-patch"

	"hseb5/internal/domain"
)

// Value is a JSON tree: a Leaf holds a scalar, array or null; a Node holds
// keyed children.
type Value interface {
	isValue()
}

type Leaf struct {
	Type  domain.FieldType
	Value any
}

type Node struct {
	Children map[string]Value
}

func (Leaf) isValue() {}
func (Node) isValue() {}

// FromJSON converts decoded JSON (map[string]any etc.) into a Value tree.
func FromJSON(v any) Value {
	switch t := v.(type) {
	case map[string]any:
		n := Node{Children: make(map[string]Value, len(t))}
		for k, c := range t {
			n.Children[k] = FromJSON(c)
		}
		return n
	case []any:
		return Leaf{Type: domain.FieldArray, Value: t}
	case string:
		return Leaf{Type: domain.FieldString, Value: t}
	case float64, int, int64, json.Number:
		return Leaf{Type: domain.FieldNumber, Value: t}
	case bool:
		return Leaf{Type: domain.FieldBoolean, Value: t}
	default:
		return Leaf{Value: nil}
	}
}

// ToJSON converts a Value tree back to plain decoded JSON.
func ToJSON(v Value) any {
	switch t := v.(type) {
	case Node:
		out := make(map[string]any, len(t.Children))
		for k, c := range t.Children {
			out[k] = ToJSON(c)
		}
		return out
	case Leaf:
		return t.Value
	}
	return nil
}

// Get returns the value at path.
func Get(v Value, path Path) (Value, bool) {
	for _, key := range path {
		n, ok := v.(Node)
		if !ok {
			return nil, false
		}
		v, ok = n.Children[key]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

// SetAt returns a copy of v with val stored at path, creating intermediate
// nodes as needed.
func SetAt(v Value, path Path, val Value) (Value, error) {
	if len(path) == 0 {
		return val, nil
	}
	n, ok := v.(Node)
	if !ok {
		if v != nil {
			if l, isLeaf := v.(Leaf); !isLeaf || l.Value != nil {
				return nil, fmt.Errorf("cannot descend into leaf at %s", path[0])
			}
		}
		n = Node{}
	}
	out := copyNode(n)
	child, err := SetAt(out.Children[path[0]], path[1:], val)
	if err != nil {
		return nil, err
	}
	out.Children[path[0]] = child
	return out, nil
}

// DeleteAt returns a copy of v without the value at path.
func DeleteAt(v Value, path Path) (Value, error) {
	if len(path) == 0 {
		return nil, ErrPathNotFound
	}
	n, ok := v.(Node)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	child, ok := n.Children[path[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	out := copyNode(n)
	if len(path) == 1 {
		delete(out.Children, path[0])
		return out, nil
	}
	updated, err := DeleteAt(child, path[1:])
	if err != nil {
		return nil, err
	}
	out.Children[path[0]] = updated
	return out, nil
}

// Keys returns a node's keys sorted.
func Keys(n Node) []string {
	keys := make([]string, 0, len(n.Children))
	for k := range n.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyNode(n Node) Node {
	out := Node{Children: make(map[string]Value, len(n.Children)+1)}
	for k, c := range n.Children {
		out.Children[k] = c
	}
	return out
}

// ApplyPatch applies an RFC 6902 JSON patch to extraction data.
func ApplyPatch(data map[string]any, patch []byte) (map[string]any, error) {
	if data == nil {
		data = map[string]any{}
	}
	doc, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	p, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("invalid json patch: %w", err)
	}
	patched, err := p.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply json patch: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, fmt.Errorf("patched document is not an object: %w", err)
	}
	return out, nil
}

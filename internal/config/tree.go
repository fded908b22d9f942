package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tree is the processor configuration read from the import YAML file.
// Values are addressed by "/" separated paths such as
// "product/csv/processor/property/max-count". A path segment may also be
// written as one key containing slashes, e.g. "lists/text:".
//
// A Tree is read-only after loading and safe for concurrent use.
type Tree struct {
	root map[string]any
}

// LoadTree reads and parses the YAML file at path.
func LoadTree(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import config: %w", err)
	}
	return ParseTree(data)
}

// ParseTree parses YAML data. Empty data gives an empty tree.
func ParseTree(data []byte) (*Tree, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse import config: %w", err)
	}
	return NewTree(root), nil
}

// NewTree wraps an already decoded tree.
func NewTree(root map[string]any) *Tree {
	if root == nil {
		root = map[string]any{}
	}
	return &Tree{root: root}
}

// Get returns the raw value at path.
func (t *Tree) Get(path string) (any, bool) {
	if t == nil {
		return nil, false
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return t.root, true
	}
	return lookup(t.root, strings.Split(path, "/"))
}

// lookup walks segs down from node. Longer joined keys win, so "lists/text"
// matches before "lists".
func lookup(node any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return node, true
	}
	for n := len(segs); n > 0; n-- {
		child, ok := childOf(node, strings.Join(segs[:n], "/"))
		if !ok {
			continue
		}
		if v, ok := lookup(child, segs[n:]); ok {
			return v, true
		}
	}
	return nil, false
}

func childOf(node any, key string) (any, bool) {
	switch m := node.(type) {
	case map[string]any:
		v, ok := m[key]
		return v, ok
	case map[any]any:
		for k, v := range m {
			if fmt.Sprint(k) == key {
				return v, true
			}
		}
	}
	return nil, false
}

// String returns the scalar at path or def.
func (t *Tree) String(path, def string) string {
	v, ok := t.Get(path)
	if !ok || v == nil {
		return def
	}
	switch v.(type) {
	case map[string]any, map[any]any, []any:
		return def
	}
	return fmt.Sprint(v)
}

// Int returns the integer at path or def if it is missing or not a number.
func (t *Tree) Int(path string, def int) int {
	v, ok := t.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// Bool returns the boolean at path or def. "1", "yes" and "on" count as true.
func (t *Tree) Bool(path string, def bool) bool {
	v, ok := t.Get(path)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off", "":
			return false
		}
	}
	return def
}

// Strings returns the list at path or def. A scalar gives a one element list.
func (t *Tree) Strings(path string, def []string) []string {
	v, ok := t.Get(path)
	if !ok || v == nil {
		return def
	}
	switch l := v.(type) {
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case map[string]any, map[any]any:
		return def
	default:
		return []string{fmt.Sprint(l)}
	}
}

// PositionMap returns the column mapping at path. Non-numeric keys are
// skipped.
func (t *Tree) PositionMap(path string) map[int]string {
	v, ok := t.Get(path)
	if !ok {
		return nil
	}
	out := make(map[int]string)
	add := func(k any, val any) {
		var pos int
		switch n := k.(type) {
		case int:
			pos = n
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return
			}
			pos = i
		default:
			return
		}
		out[pos] = fmt.Sprint(val)
	}
	switch m := v.(type) {
	case map[string]any:
		for k, val := range m {
			add(k, val)
		}
	case map[any]any:
		for k, val := range m {
			add(k, val)
		}
	case []any:
		for i, val := range m {
			out[i] = fmt.Sprint(val)
		}
	}
	return out
}

// Keys returns the sorted child keys of the map at path.
func (t *Tree) Keys(path string) []string {
	v, ok := t.Get(path)
	if !ok {
		return nil
	}
	var keys []string
	switch m := v.(type) {
	case map[string]any:
		for k := range m {
			keys = append(keys, k)
		}
	case map[any]any:
		for k := range m {
			keys = append(keys, fmt.Sprint(k))
		}
	}
	sort.Strings(keys)
	return keys
}

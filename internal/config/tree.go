package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// pathSeparator splits config node paths such as "graphkeep.storage".
const pathSeparator = "."

// Tree is a parsed configuration document. Nodes are addressed by dotted
// paths. It is safe for concurrent use.
type Tree struct {
	mu   sync.RWMutex
	root map[string]any
}

// NewTree wraps an in-memory document. Nested maps may be map[string]any or
// map[any]any; both are normalized.
func NewTree(doc map[string]any) *Tree {
	root, _ := normalize(doc).(map[string]any)
	if root == nil {
		root = make(map[string]any)
	}
	return &Tree{root: root}
}

// LoadTree reads a YAML (.yaml, .yml) or TOML (.toml) document from path.
func LoadTree(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	doc := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("parse toml config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}

	return NewTree(doc), nil
}

// Node returns the node at path. The returned node reports Exists() == false
// when nothing is configured there. An empty path addresses the root.
func (t *Tree) Node(path string) Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if path == "" {
		return Node{path: "", value: t.root}
	}

	var cur any = t.root
	for _, part := range strings.Split(path, pathSeparator) {
		m, ok := cur.(map[string]any)
		if !ok {
			return Node{path: path}
		}
		cur, ok = m[part]
		if !ok {
			return Node{path: path}
		}
	}
	return Node{path: path, value: cur}
}

// Set stores value at path, creating intermediate maps as needed.
func (t *Tree) Set(path string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts := strings.Split(path, pathSeparator)
	cur := t.root
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = normalize(value)
}

// Node is a read-only view of one configuration subtree.
type Node struct {
	path  string
	value any
}

// Path returns the dotted path this node was resolved from.
func (n Node) Path() string { return n.path }

// Exists reports whether the node is configured.
func (n Node) Exists() bool { return n.value != nil }

// Get returns the child node at the relative path key.
func (n Node) Get(key string) Node {
	full := key
	if n.path != "" {
		full = n.path + pathSeparator + key
	}
	cur := n.value
	for _, part := range strings.Split(key, pathSeparator) {
		m, ok := cur.(map[string]any)
		if !ok {
			return Node{path: full}
		}
		cur = m[part]
	}
	return Node{path: full, value: cur}
}

// String returns the scalar at key rendered as a string.
func (n Node) String(key string) (string, bool) {
	v := n.Get(key).value
	switch v := v.(type) {
	case nil:
		return "", false
	case map[string]any, []any:
		return "", false
	case string:
		return v, true
	default:
		return fmt.Sprint(v), true
	}
}

// Bool returns the boolean at key, or def when unset or unparsable.
func (n Node) Bool(key string, def bool) bool {
	switch v := n.Get(key).value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Int returns the integer at key, or def when unset or unparsable.
func (n Node) Int(key string, def int64) int64 {
	switch v := n.Get(key).value.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return def
		}
		return i
	default:
		return def
	}
}

// Duration returns the duration at key. Strings use time.ParseDuration
// syntax; bare numbers are milliseconds.
func (n Node) Duration(key string, def time.Duration) time.Duration {
	switch v := n.Get(key).value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return def
		}
		return d
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v * float64(time.Millisecond))
	default:
		return def
	}
}

// Strings returns the list at key. A scalar string is split on commas.
func (n Node) Strings(key string) []string {
	var out []string
	switch v := n.Get(key).value.(type) {
	case []any:
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
	case []string:
		out = append(out, v...)
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Keys returns the sorted child keys of a map node.
func (n Node) Keys() []string {
	m, ok := n.value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map flattens the subtree into dotted keys relative to this node.
func (n Node) Map() map[string]string {
	out := make(map[string]string)
	flatten("", n.value, out)
	return out
}

// Decode copies the subtree into out, which should be a pointer to a struct
// carrying yaml tags.
func (n Node) Decode(out any) error {
	if !n.Exists() {
		return nil
	}
	data, err := yaml.Marshal(n.value)
	if err != nil {
		return fmt.Errorf("encode config node %s: %w", n.path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode config node %s: %w", n.path, err)
	}
	return nil
}

func flatten(prefix string, v any, out map[string]string) {
	switch v := v.(type) {
	case nil:
	case map[string]any:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + pathSeparator + k
			}
			flatten(key, child, out)
		}
	default:
		if prefix != "" {
			out[prefix] = fmt.Sprint(v)
		}
	}
}

func normalize(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = normalize(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = normalize(child)
		}
		return out
	default:
		return v
	}
}

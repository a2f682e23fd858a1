package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Memory is an in-process JSON tree with the same semantics as the remote
// database: writing a nested path creates parents, and removing the last
// child of a node removes the node.
type Memory struct {
	mu   sync.RWMutex
	root map[string]any
}

// NewMemory creates an empty tree.
func NewMemory() *Memory {
	return &Memory{root: make(map[string]any)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, path string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.lookup(split(path))
	if !ok {
		return nil, ErrNotFound
	}
	return json.Marshal(node)
}

// GetAll implements Store.
func (m *Memory) GetAll(_ context.Context, path string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.lookup(split(path))
	if !ok {
		return []Entry{}, nil
	}

	children, ok := node.(map[string]any)
	if !ok {
		return []Entry{}, nil
	}

	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(children[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %s/%s: %w", path, k, err)
		}
		entries = append(entries, Entry{Key: k, Value: raw})
	}
	return entries, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if decoded == nil {
		return m.Delete(ctx, path)
	}

	parts := split(path)
	if len(parts) == 0 {
		return fmt.Errorf("put: empty path")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node := m.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = normalize(decoded)
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, path string) error {
	parts := split(path)
	if len(parts) == 0 {
		m.mu.Lock()
		m.root = make(map[string]any)
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	remove(m.root, parts)
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) lookup(parts []string) (any, bool) {
	var node any = m.root
	for _, p := range parts {
		children, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = children[p]
		if !ok {
			return nil, false
		}
	}
	if children, ok := node.(map[string]any); ok && len(children) == 0 {
		return nil, false
	}
	return node, true
}

// remove deletes parts from node and reports whether node became empty.
func remove(node map[string]any, parts []string) bool {
	key := parts[0]
	if len(parts) == 1 {
		delete(node, key)
		return len(node) == 0
	}
	child, ok := node[key].(map[string]any)
	if !ok {
		return false
	}
	if remove(child, parts[1:]) {
		delete(node, key)
	}
	return len(node) == 0
}

// normalize turns JSON arrays into index keyed objects so that every
// container in the tree is addressable by path segment.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, c := range t {
			if c == nil {
				delete(t, k)
				continue
			}
			t[k] = normalize(c)
		}
		return t
	case []any:
		out := make(map[string]any, len(t))
		for i, c := range t {
			if c != nil {
				out[strconv.Itoa(i)] = normalize(c)
			}
		}
		return out
	}
	return v
}

package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Validation failures for dotted-path mutation. The wrapped messages are shown
// to the user verbatim, prefixed with a color code by the command layer.
var (
	ErrInvalidPath = errors.New("invalid config path")
	ErrInvalidKey  = errors.New("invalid config key")
	ErrNotNumber   = errors.New("must be a number value")
	ErrNotBool     = errors.New("must be a boolean value")
	ErrObjectLeaf  = errors.New("is an object and cannot be assigned")
)

// Store is the mutable runtime configuration tree. Leaves keep the native
// types yaml gave them; Set preserves those types. Mutations are in-memory
// only and are lost at process restart.
type Store struct {
	mu   sync.RWMutex
	tree map[string]any
}

func NewStore(tree map[string]any) *Store {
	if tree == nil {
		tree = make(map[string]any)
	}
	return &Store{tree: tree}
}

// Get resolves a dotted path to its current value.
func (s *Store) Get(path string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node := s.tree
	keys := strings.Split(path, ".")
	for _, k := range keys[:len(keys)-1] {
		child, ok := node[k].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s not found", ErrInvalidPath, k)
		}
		node = child
	}
	v, ok := node[keys[len(keys)-1]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, keys[len(keys)-1])
	}
	return v, nil
}

// Set validates and applies a dotted-path mutation. The raw value is coerced
// to the existing leaf's type; on any failure the tree is left unchanged.
// Returns the coerced value that was stored.
func (s *Store) Set(path, raw string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.tree
	keys := strings.Split(path, ".")
	for _, k := range keys[:len(keys)-1] {
		child, ok := node[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s not found", ErrInvalidPath, k)
		}
		m, ok := child.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s not found", ErrInvalidPath, k)
		}
		node = m
	}

	last := keys[len(keys)-1]
	cur, ok := node[last]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, last)
	}

	switch cur.(type) {
	case int, int64, float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%s %w", path, ErrNotNumber)
		}
		var v any = f
		if _, isInt := cur.(int); isInt && f == math.Trunc(f) {
			v = int(f)
		}
		node[last] = v
		return v, nil
	case bool:
		switch strings.TrimSpace(raw) {
		case "true":
			node[last] = true
			return true, nil
		case "false":
			node[last] = false
			return false, nil
		default:
			return nil, fmt.Errorf("%s %w", path, ErrNotBool)
		}
	case string:
		node[last] = raw
		return raw, nil
	default:
		return nil, fmt.Errorf("%s %w", path, ErrObjectLeaf)
	}
}

// Typed read helpers. Missing or mistyped leaves yield zero values; the
// embedded defaults guarantee every key a component reads exists.

func (s *Store) Int(path string) int {
	v, err := s.Get(path)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func (s *Store) Float(path string) float64 {
	v, err := s.Get(path)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func (s *Store) Bool(path string) bool {
	v, err := s.Get(path)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (s *Store) Str(path string) string {
	v, err := s.Get(path)
	if err != nil {
		return ""
	}
	str, _ := v.(string)
	return str
}

func (s *Store) Strs(path string) []string {
	v, err := s.Get(path)
	if err != nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if str, ok := it.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

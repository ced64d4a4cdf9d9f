package statcache

import (
	"context"
	"sync"
)

// Memory is the default in-process cache. It dies with the session.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry)}
}

func (m *Memory) Get(_ context.Context, username string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[username]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (m *Memory) Put(_ context.Context, username string, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[username] = e
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	return nil
}

package cache

import (
	"context"
	"strings"
	"sync"
)

// MemoryStorage is a process-local Storage for tests and ephemeral use.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]Entry)}
}

func (m *MemoryStorage) Find(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNoEntry
	}
	return &e, nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = *entry
	return nil
}

func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStorage) RemovePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len reports the number of stored entries.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

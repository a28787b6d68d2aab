package settings

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by the daemon when
// it runs without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) GetOption(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) SetOption(_ context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[name] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) AddOption(_ context.Context, name string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[name]; ok {
		return false, nil
	}
	m.data[name] = append([]byte(nil), value...)
	return true, nil
}

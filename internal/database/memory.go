package database

import (
	"context"
	"sync"
)

// MemoryKV keeps values in process memory. Contents are lost on exit.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ KV = (*MemoryKV)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (m *MemoryKV) Close() error { return nil }
func (m *MemoryKV) Backend() string { return "memory" }

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

package storage

import (
	"context"
	"errors"
	"sync"
)

var ErrQuotaExceeded = errors.New("storage quota exceeded")

// KV is the durable key-value collaborator. Implementations must be safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryKV keeps values in process memory.
// With a positive quota, a Put that would grow the total size of keys and values past it fails.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
	size   int
	quota  int
}

func NewMemoryKV(quota int) *MemoryKV {
	return &MemoryKV{
		values: make(map[string][]byte),
		quota:  quota,
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.size + len(key) + len(value)
	if old, ok := m.values[key]; ok {
		size -= len(key) + len(old)
	}

	if m.quota > 0 && size > m.quota {
		return ErrQuotaExceeded
	}

	m.values[key] = append([]byte(nil), value...)
	m.size = size

	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.values[key]; ok {
		m.size -= len(key) + len(old)
		delete(m.values, key)
	}

	return nil
}

// Size returns the bytes currently accounted against the quota.
func (m *MemoryKV) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.size
}

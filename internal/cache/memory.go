package cache

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

// MemoryBackend keeps values in process memory. A positive quota bounds the total
// number of stored bytes.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
	quota  int
}

// NewMemoryBackend creates an in-memory backend; quota <= 0 means unbounded.
func NewMemoryBackend(quota int) *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string][]byte),
		quota:  quota,
	}
}

// Get returns a copy of the stored value.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, apperrors.NotFound("cache key", key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value, failing with ErrQuotaExceeded if the quota would be exceeded.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		used := 0
		for k, v := range m.values {
			if k != key {
				used += len(v)
			}
		}
		if used+len(value) > m.quota {
			return fmt.Errorf("set %s (%d bytes): %w", key, len(value), ErrQuotaExceeded)
		}
	}

	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

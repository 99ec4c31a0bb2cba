package cache

import (
	"context"
	"strings"
	"sync"
)

// MemKV is a pure in-process KV for local/dev use and tests.
type MemKV struct {
	mu    sync.RWMutex
	lists map[string][]string
}

func NewMemKV() *MemKV {
	return &MemKV{lists: make(map[string][]string)}
}

func (m *MemKV) PushTrim(_ context.Context, key, value string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	arr := append(m.lists[key], value)
	if keep > 0 && len(arr) > keep {
		arr = arr[len(arr)-keep:]
	}
	m.lists[key] = arr
	return nil
}

func (m *MemKV) Range(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arr := m.lists[key]
	out := make([]string, len(arr))
	copy(out, arr)
	return out, nil
}

func (m *MemKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lists[key]
	return ok, nil
}

func (m *MemKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, key)
	return nil
}

func (m *MemKV) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.lists))
	for k := range m.lists {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *MemKV) Close() error { return nil }

package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is an in-process Client. Entries expire after the TTL given to
// NewMemory; there is no size bound.
type Memory struct {
	mu    sync.RWMutex
	cache *expirable.LRU[string, []byte]
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{cache: expirable.NewLRU[string, []byte](0, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *Memory) SetMany(_ context.Context, entries map[string][]byte, del []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range del {
		m.cache.Remove(k)
	}
	for k, v := range entries {
		m.cache.Add(k, v)
	}
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for _, k := range m.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
	return nil
}

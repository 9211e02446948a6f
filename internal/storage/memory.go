package storage

import (
	"context"
	"sync"
)

// Memory is an in-process LocalStore.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]string
	closed bool
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

// GetItem returns the stored value.
func (m *Memory) GetItem(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}
	v, ok := m.items[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

// SetItem stores a value.
func (m *Memory) SetItem(ctx context.Context, key, value string) error {
	return m.SetItems(ctx, map[string]string{key: value})
}

// SetItems stores all values under one lock.
func (m *Memory) SetItems(_ context.Context, items map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for k, v := range items {
		m.items[k] = v
	}
	return nil
}

// RemoveItem removes a key.
func (m *Memory) RemoveItem(ctx context.Context, key string) error {
	return m.RemoveItems(ctx, key)
}

// RemoveItems removes all keys under one lock.
func (m *Memory) RemoveItems(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Close marks the store closed. Further calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

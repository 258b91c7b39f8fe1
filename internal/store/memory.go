package store

import (
	"context"
	"sync"
)

// Memory is a process-wide store. Its contents vanish with the process.
type Memory struct {
	origin string
	mu     sync.RWMutex
	data   map[string]string
}

// NewMemory creates an empty in-memory store scoped to origin.
func NewMemory(origin string) *Memory {
	return &Memory{origin: origin, data: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[scopedKey(m.origin, key)]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[scopedKey(m.origin, key)] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, scopedKey(m.origin, key))
	return nil
}

func (m *Memory) Close() error { return nil }

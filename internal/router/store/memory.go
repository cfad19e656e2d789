package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store for tests and single-node development.
type Memory struct {
	mu      sync.RWMutex
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	lists   map[string][]string
	strings map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		lists:   make(map[string][]string),
		strings: make(map[string]string),
	}
}

// HGetAll implements Store.
func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

// HSet implements Store.
func (m *Memory) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

// SAdd implements Store.
func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{}, len(members))
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
	return nil
}

// SRem implements Store.
func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.sets[key], member)
	}
	return nil
}

// SMembers implements Store.
func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

// RPush implements Store.
func (m *Memory) RPush(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], value)
	return nil
}

// LPop implements Store.
func (m *Memory) LPop(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	if len(list) == 0 {
		return "", ErrNil
	}
	head := list[0]
	m.lists[key] = list[1:]
	return head, nil
}

// LRem implements Store.
func (m *Memory) LRem(_ context.Context, key, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	kept := m.lists[key][:0]
	for _, v := range m.lists[key] {
		if v == value {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	m.lists[key] = kept
	return removed, nil
}

// LRange implements Store.
func (m *Memory) LRange(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.lists[key]))
	copy(out, m.lists[key])
	return out, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.strings[key]
	if !ok {
		return "", ErrNil
	}
	return val, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(_ context.Context) error {
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

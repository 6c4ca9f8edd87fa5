// ABOUTME: In-memory Store implementation backed by maps and a local Broadcaster
// ABOUTME: Used by tests and by the "memory" backend for single-process sessions

package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	scalars map[string]string
	sets    map[string]map[string]struct{}
	hashes  map[string]map[string]string
	closed  bool

	bus    *Broadcaster
	logger *slog.Logger
}

// NewMemoryStore creates a new MemoryStore. Pass nil logger for default.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		scalars: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		hashes:  make(map[string]map[string]string),
		bus:     NewBroadcaster(0, logger),
		logger:  logger.With("component", "store", "backend", "memory"),
	}
}

// Get returns the scalar at key.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}
	v, ok := m.scalars[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores a scalar, replacing any previous value.
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.scalars[key] = value
	m.logger.Debug("SET", "key", key)
	return nil
}

// SetNX stores a scalar only if the key is absent.
func (m *MemoryStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.scalars[key]; ok {
		return false, nil
	}
	m.scalars[key] = value
	m.logger.Debug("SETNX", "key", key)
	return true, nil
}

// Del removes keys of any type and returns how many existed.
func (m *MemoryStore) Del(ctx context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	var n int64
	for _, key := range keys {
		found := false
		if _, ok := m.scalars[key]; ok {
			delete(m.scalars, key)
			found = true
		}
		if _, ok := m.sets[key]; ok {
			delete(m.sets, key)
			found = true
		}
		if _, ok := m.hashes[key]; ok {
			delete(m.hashes, key)
			found = true
		}
		if found {
			n++
		}
	}
	m.logger.Debug("DEL", "keys", keys, "deleted", n)
	return n, nil
}

// SAdd adds members to the set at key and returns how many were new.
func (m *MemoryStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	var added int64
	for _, member := range members {
		if _, exists := set[member]; !exists {
			set[member] = struct{}{}
			added++
		}
	}
	m.logger.Debug("SADD", "key", key, "added", added)
	return added, nil
}

// SRem removes members from the set at key and returns how many were present.
func (m *MemoryStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	set, ok := m.sets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, member := range members {
		if _, exists := set[member]; exists {
			delete(set, member)
			removed++
		}
	}
	if len(set) == 0 {
		delete(m.sets, key)
	}
	return removed, nil
}

// SMembers returns the members of the set at key, sorted. Absent sets are empty.
func (m *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	m.logger.Debug("SMEMBERS", "key", key, "count", len(members))
	return members, nil
}

// HGet returns a single hash field.
func (m *MemoryStore) HGet(ctx context.Context, key, field string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}
	v, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// HSet writes a single hash field.
func (m *MemoryStore) HSet(ctx context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.hashLocked(key)[field] = value
	m.logger.Debug("HSET", "key", key, "field", field)
	return nil
}

// HSetNX writes a hash field only if it is absent.
func (m *MemoryStore) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}
	h := m.hashLocked(key)
	if _, ok := h[field]; ok {
		return false, nil
	}
	h[field] = value
	m.logger.Debug("HSETNX", "key", key, "field", field)
	return true, nil
}

// hashLocked returns the hash at key, creating it. Must be called with mu held.
func (m *MemoryStore) hashLocked(key string) map[string]string {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	return h
}

// HKeys returns the field names of the hash at key, sorted.
func (m *MemoryStore) HKeys(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	fields := make([]string, 0, len(m.hashes[key]))
	for field := range m.hashes[key] {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields, nil
}

// HDel removes hash fields and returns how many existed.
func (m *MemoryStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	h, ok := m.hashes[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, field := range fields {
		if _, exists := h[field]; exists {
			delete(h, field)
			removed++
		}
	}
	if len(h) == 0 {
		delete(m.hashes, key)
	}
	return removed, nil
}

// Publish delivers payload to local subscribers of channel.
func (m *MemoryStore) Publish(ctx context.Context, channel, payload string) (int64, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}

	n := m.bus.Publish(channel, payload)
	m.logger.Debug("PUBLISH", "channel", channel, "receivers", n)
	return n, nil
}

// Subscribe attaches to channel until ctx is cancelled or the subscription is closed.
func (m *MemoryStore) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	return m.bus.Subscribe(ctx, channel)
}

// Close drops all data and ends every subscription.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.bus.Close()
	return nil
}

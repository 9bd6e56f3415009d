// Package cache provides a small concurrency-safe TTL map for callers that
// need lightweight expiring state without a full store.
package cache

import (
	"sync"
	"time"
)

// TTLMap maps string keys to values with per-key expiry and an optional
// capacity bound. Expired keys are reclaimed lazily on writes.
type TTLMap struct {
	mu       sync.RWMutex
	data     map[string]item
	capacity int
}

type item struct {
	value     interface{}
	expiresAt time.Time
}

func (it item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

// NewTTLMap builds a TTLMap. capacity <= 0 means unbounded.
func NewTTLMap(capacity int) *TTLMap {
	return &TTLMap{data: make(map[string]item), capacity: capacity}
}

// Get returns the live value for key, if any.
func (m *TTLMap) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.data[key]
	if !ok || it.expired(time.Now()) {
		return nil, false
	}
	return it.value, true
}

// Set stores value under key. ttl <= 0 means no expiry.
func (m *TTLMap) Set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeLocked(key, value, ttl)
}

// SetOnce stores value only if key holds no live entry, reporting whether the
// write happened. This is the dedupe primitive: the first writer wins for the
// lifetime of the TTL.
func (m *TTLMap) SetOnce(key string, value interface{}, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if it, ok := m.data[key]; ok && !it.expired(time.Now()) {
		return false
	}
	m.storeLocked(key, value, ttl)
	return true
}

// Delete removes an entry.
func (m *TTLMap) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Len counts live entries.
func (m *TTLMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	return len(m.data)
}

func (m *TTLMap) storeLocked(key string, value interface{}, ttl time.Duration) {
	if m.capacity > 0 && len(m.data) >= m.capacity {
		m.purgeLocked()
		if len(m.data) >= m.capacity {
			m.evictSoonestLocked()
		}
	}

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.data[key] = item{value: value, expiresAt: expires}
}

func (m *TTLMap) purgeLocked() {
	now := time.Now()
	for key, it := range m.data {
		if it.expired(now) {
			delete(m.data, key)
		}
	}
}

// evictSoonestLocked drops the entry closest to expiry to make room.
// Unbounded entries count as furthest away.
func (m *TTLMap) evictSoonestLocked() {
	var victim string
	var victimAt time.Time
	first := true
	for key, it := range m.data {
		at := it.expiresAt
		if at.IsZero() {
			continue
		}
		if first || at.Before(victimAt) {
			victim, victimAt, first = key, at, false
		}
	}
	if first {
		// All entries are unbounded; drop an arbitrary one.
		for key := range m.data {
			victim = key
			break
		}
	}
	delete(m.data, victim)
}

package storage

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value   []byte
	expires time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryDB implements ExpiringDB using an in-memory map. Safe for
// concurrent use.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string]memEntry
	now  func() time.Time
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string]memEntry),
		now:  time.Now,
	}
}

// Get retrieves a copy of the value stored under key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.data[string(key)]
	m.mu.RUnlock()
	if !ok || e.expired(m.now()) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	return m.put(key, value, time.Time{})
}

// PutWithTTL stores a key-value pair that expires after ttl.
func (m *MemoryDB) PutWithTTL(key, value []byte, ttl time.Duration) error {
	return m.put(key, value, m.now().Add(ttl))
}

func (m *MemoryDB) put(key, value []byte, expires time.Time) error {
	m.mu.Lock()
	m.data[string(key)] = memEntry{value: append([]byte(nil), value...), expires: expires}
	m.mu.Unlock()
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	delete(m.data, string(key))
	m.mu.Unlock()
	return nil
}

// Has checks if a live key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	e, ok := m.data[string(key)]
	m.mu.RUnlock()
	return ok && !e.expired(m.now()), nil
}

// ForEach iterates over live keys with the given prefix in key order.
// fn runs without the lock held and may write to the database.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	now := m.now()

	m.mu.RLock()
	keys := make([]string, 0)
	values := make(map[string][]byte)
	for k, e := range m.data {
		if strings.HasPrefix(k, p) && !e.expired(now) {
			keys = append(keys, k)
			values[k] = append([]byte(nil), e.value...)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

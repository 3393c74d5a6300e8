// Package storage provides the key-value store behind history and the
// metadata cache.
package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// ExpiringDB is a DB whose entries can carry a time-to-live.
type ExpiringDB interface {
	DB
	PutWithTTL(key, value []byte, ttl time.Duration) error
}

// PutWithTTL stores value under key with ttl when db supports expiry,
// and without expiry otherwise. A non-positive ttl never expires.
func PutWithTTL(db DB, key, value []byte, ttl time.Duration) error {
	if e, ok := db.(ExpiringDB); ok && ttl > 0 {
		return e.PutWithTTL(key, value, ttl)
	}
	return db.Put(key, value)
}

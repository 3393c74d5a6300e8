// Package cache provides read-through caching for explorer metadata
// lookups, backed by redis or the local key-value store.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/Klingon-tech/klingdrop/internal/storage"
)

// Cache stores opaque values with a time-to-live.
type Cache interface {
	// Get returns the value under key; found is false on a miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Backend names the cache for metrics labels.
	Backend() string
}

// StoreCache is a Cache over a storage.DB. Expiry relies on the DB
// supporting TTLs; badger and the in-memory DB both do.
type StoreCache struct {
	db storage.DB
}

// NewStoreCache creates a cache over db.
func NewStoreCache(db storage.DB) *StoreCache {
	return &StoreCache{db: db}
}

func (c *StoreCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := c.db.Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *StoreCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return storage.PutWithTTL(c.db, []byte(key), value, ttl)
}

func (c *StoreCache) Backend() string { return "store" }

package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/internal/explorer"
	"github.com/Klingon-tech/klingdrop/internal/metrics"
)

// BoxFetcher returns the metadata box of a token.
type BoxFetcher interface {
	BoxByTokenID(ctx context.Context, tokenID string) (*explorer.Box, error)
}

// CachedFetcher wraps a BoxFetcher with a read-through cache. Cache
// failures are logged and never fail a lookup; fetch errors are not
// cached.
type CachedFetcher struct {
	Inner  BoxFetcher
	Cache  Cache
	TTL    time.Duration
	Logger zerolog.Logger
}

// BoxByTokenID returns the cached box, fetching it on a miss.
func (f *CachedFetcher) BoxByTokenID(ctx context.Context, tokenID string) (*explorer.Box, error) {
	key := "box/" + tokenID
	backend := f.Cache.Backend()

	data, found, err := f.Cache.Get(ctx, key)
	if err != nil {
		f.Logger.Warn().Err(err).Str("token", tokenID).Msg("cache read failed")
	}
	if found {
		var box explorer.Box
		if err := json.Unmarshal(data, &box); err == nil {
			metrics.CacheLookups.WithLabelValues(backend, "hit").Inc()
			return &box, nil
		}
		f.Logger.Warn().Str("token", tokenID).Msg("corrupt cache entry, refetching")
	}
	metrics.CacheLookups.WithLabelValues(backend, "miss").Inc()

	box, err := f.Inner.BoxByTokenID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(box); err == nil {
		if err := f.Cache.Set(ctx, key, data, f.TTL); err != nil {
			f.Logger.Warn().Err(err).Str("token", tokenID).Msg("cache write failed")
		}
	}
	return box, nil
}

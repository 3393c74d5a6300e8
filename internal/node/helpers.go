package node

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/cache"
	"github.com/Klingon-tech/klingdrop/internal/history"
	"github.com/Klingon-tech/klingdrop/internal/storage"
)

// Key prefixes for components sharing the daemon database.
var (
	prefixCache = []byte("c/")
)

// openCache returns the configured metadata cache, or nil for "none".
func openCache(ctx context.Context, cfg *config.Config, db storage.DB) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return nil, nil
	case config.CacheRedis:
		c, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, "klingdrop:"+string(cfg.Network)+":")
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		return c, nil
	default:
		return cache.NewStoreCache(storage.NewPrefixDB(db, prefixCache)), nil
	}
}

// openHistory returns the configured airdrop history store.
func openHistory(ctx context.Context, cfg *config.Config, db storage.DB) (history.Store, error) {
	if cfg.History.Backend == config.HistoryPostgres {
		h, err := history.NewPostgres(ctx, cfg.History.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres history: %w", err)
		}
		return h, nil
	}
	return history.NewKVStore(db), nil
}

// originChecker admits websocket upgrades from the configured CORS
// origins. Requests without an Origin header come from non-browser
// clients and are always admitted.
func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

package config

import (
	"fmt"
	"net/url"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is required")
	}
	if u, err := url.Parse(cfg.Explorer.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("explorer.url must be an http(s) URL")
	}
	if cfg.Explorer.Timeout <= 0 {
		return fmt.Errorf("explorer.timeout must be positive")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Wallet.Addresses < 1 {
		return fmt.Errorf("wallet.addresses must be at least 1")
	}
	if cfg.Wallet.Refresh < 0 {
		return fmt.Errorf("wallet.refresh must not be negative")
	}
	if cfg.Airdrop.MinBoxValue == 0 {
		return fmt.Errorf("airdrop.minboxvalue must be positive")
	}
	if cfg.Airdrop.DefaultFee < cfg.Airdrop.MinBoxValue {
		return fmt.Errorf("airdrop.defaultfee must be at least airdrop.minboxvalue")
	}
	if cfg.Discovery.Concurrency < 1 {
		return fmt.Errorf("discovery.concurrency must be at least 1")
	}

	switch cfg.Cache.Backend {
	case CacheStore, CacheNone:
	case CacheRedis:
		if cfg.Cache.RedisURL == "" {
			return fmt.Errorf("cache.backend=redis requires cache.redis")
		}
	default:
		return fmt.Errorf("cache.backend must be store, redis, or none")
	}
	if cfg.Cache.Backend != CacheNone && cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	switch cfg.History.Backend {
	case HistoryStore:
	case HistoryPostgres:
		if cfg.History.PostgresDSN == "" {
			return fmt.Errorf("history.backend=postgres requires history.postgres")
		}
	default:
		return fmt.Errorf("history.backend must be store or postgres")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

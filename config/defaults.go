package config

import "time"

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Explorer: ExplorerConfig{
			URL:     "https://api.ergoplatform.com",
			Timeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       9545,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Wallet: WalletConfig{
			Addresses: 1,
			Refresh:   2 * time.Minute,
		},
		Airdrop: AirdropConfig{
			MinBoxValue: 1_000_000,
			DefaultFee:  1_100_000,
			FeeRate:     1000,
		},
		Discovery: DiscoveryConfig{
			Concurrency: 8,
		},
		Cache: CacheConfig{
			Backend: CacheStore,
			TTL:     24 * time.Hour,
		},
		History: HistoryConfig{
			Backend: HistoryStore,
		},
		Notify: NotifyConfig{
			WebSocket: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9546",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Explorer.URL = "https://api-testnet.ergoplatform.com"
	cfg.RPC.Port = 9645
	cfg.Metrics.Addr = "127.0.0.1:9646"
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}

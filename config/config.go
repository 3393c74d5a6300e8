// Package config handles daemon configuration.
//
// Settings are layered: built-in defaults per network, then the .conf
// file in the data directory, then KLINGDROP_* environment variables
// (optionally from a .env file), then command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Cache backends.
const (
	CacheStore = "store"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// History backends.
const (
	HistoryStore    = "store"
	HistoryPostgres = "postgres"
)

// Config holds daemon runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Explorer API used for boxes, metadata and submission
	Explorer ExplorerConfig

	// RPC server
	RPC RPCConfig

	// Local keystore wallet
	Wallet WalletConfig

	// Transaction assembly
	Airdrop AirdropConfig

	// Collection discovery
	Discovery DiscoveryConfig

	// Metadata cache
	Cache CacheConfig

	// Airdrop history
	History HistoryConfig

	// Push notifications
	Notify NotifyConfig

	// Prometheus endpoint
	Metrics MetricsConfig

	// Logging
	Log LogConfig
}

// ExplorerConfig holds explorer API settings.
type ExplorerConfig struct {
	URL     string        `conf:"explorer.url"`
	Timeout time.Duration `conf:"explorer.timeout"`
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// WalletConfig holds keystore wallet settings.
type WalletConfig struct {
	Name      string `conf:"wallet.name"`      // Wallet opened by the CLI when --wallet is omitted
	Addresses int    `conf:"wallet.addresses"` // Derived addresses scanned per wallet
	// Refresh is how often the daemon re-reads the connected wallet's
	// holdings. Zero refreshes only on connect and on request.
	Refresh time.Duration `conf:"wallet.refresh"`
}

// AirdropConfig holds transaction assembly parameters, in nanoERG.
type AirdropConfig struct {
	MinBoxValue uint64 `conf:"airdrop.minboxvalue"`
	DefaultFee  uint64 `conf:"airdrop.defaultfee"`
	FeeRate     uint64 `conf:"airdrop.feerate"` // per byte
}

// DiscoveryConfig holds collection discovery settings.
type DiscoveryConfig struct {
	Concurrency int `conf:"discovery.concurrency"`
}

// CacheConfig holds metadata cache settings.
type CacheConfig struct {
	Backend  string        `conf:"cache.backend"` // store, redis or none
	RedisURL string        `conf:"cache.redis"`
	TTL      time.Duration `conf:"cache.ttl"`
}

// HistoryConfig holds airdrop history settings.
type HistoryConfig struct {
	Backend     string `conf:"history.backend"` // store or postgres
	PostgresDSN string `conf:"history.postgres"`
}

// NotifyConfig holds push notification settings.
type NotifyConfig struct {
	WebSocket bool `conf:"notify.ws"` // Serve /ws on the RPC listener
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `conf:"metrics.enabled"`
	Addr    string `conf:"metrics.addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingdrop
//	macOS:   ~/Library/Application Support/Klingdrop
//	Windows: %APPDATA%\Klingdrop
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingdrop"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingdrop")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingdrop")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingdrop")
	default:
		return filepath.Join(home, ".klingdrop")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the key-value store directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.NetworkDataDir(), "db")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// PlansDir returns the default directory for plan files.
func (c *Config) PlansDir() string {
	return filepath.Join(c.NetworkDataDir(), "plans")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingdrop.conf")
}

// RPCListenAddr returns host:port for the RPC server.
func (c *Config) RPCListenAddr() string {
	return joinHostPort(c.RPC.Addr, c.RPC.Port)
}

// Package node wires the airdrop daemon together: storage, explorer,
// metadata cache, wallet keystore, portfolio, history, notifications,
// metrics and the RPC server.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/airdrop"
	"github.com/Klingon-tech/klingdrop/internal/cache"
	"github.com/Klingon-tech/klingdrop/internal/collection"
	"github.com/Klingon-tech/klingdrop/internal/explorer"
	"github.com/Klingon-tech/klingdrop/internal/history"
	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/metrics"
	"github.com/Klingon-tech/klingdrop/internal/notify"
	"github.com/Klingon-tech/klingdrop/internal/portfolio"
	"github.com/Klingon-tech/klingdrop/internal/rpc"
	"github.com/Klingon-tech/klingdrop/internal/storage"
	"github.com/Klingon-tech/klingdrop/internal/token"
	"github.com/Klingon-tech/klingdrop/internal/wallet"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Node is a fully-initialized airdrop daemon.
type Node struct {
	cfg     *config.Config
	network types.Network
	logger  zerolog.Logger

	// Core
	db        storage.DB
	explorer  *explorer.Client
	cache     cache.Cache
	keystore  *wallet.Keystore
	portfolio *portfolio.Portfolio
	history   history.Store

	// Outer surfaces
	hub       *notify.Hub
	rpcServer *rpc.Server
	metrics   *metrics.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node. It opens storage and builds
// every component but does NOT start listeners or background loops.
// Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "klingdrop.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	network, err := wallet.ParseNetwork(string(cfg.Network))
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("explorer", cfg.Explorer.URL).
		Str("datadir", cfg.NetworkDataDir()).
		Msg("Starting klingdrop daemon")

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:     cfg,
		network: network,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	ok := false
	defer func() {
		if !ok {
			n.close()
		}
	}()

	// ── 2. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DBDir(), err)
	}
	n.db = db
	logger.Info().Str("path", cfg.DBDir()).Msg("Database opened")

	// ── 3. Explorer and metadata cache ──────────────────────────────
	n.explorer = explorer.NewWithTimeout(cfg.Explorer.URL, cfg.Explorer.Timeout)

	n.cache, err = openCache(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	var fetcher collection.Fetcher = n.explorer
	if n.cache != nil {
		fetcher = &cache.CachedFetcher{
			Inner:  n.explorer,
			Cache:  n.cache,
			TTL:    cfg.Cache.TTL,
			Logger: klog.Explorer,
		}
		logger.Info().Str("backend", n.cache.Backend()).Dur("ttl", cfg.Cache.TTL).Msg("Metadata cache enabled")
	}

	resolver := &token.Resolver{
		Store:  token.NewStore(db),
		Source: n.explorer,
		Logger: klog.Explorer,
	}
	discovery := collection.New(fetcher)
	discovery.Concurrency = cfg.Discovery.Concurrency

	// ── 4. History and notifications ────────────────────────────────
	n.history, err = openHistory(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	sinks := notify.Multi{
		notify.LogSink{Logger: klog.Notify},
		history.Sink{Store: n.history},
	}
	if cfg.Notify.WebSocket {
		n.hub = notify.NewHub(klog.Notify, originChecker(cfg.RPC.CORSOrigins))
		sinks = append(sinks, n.hub)
	}

	// ── 5. Wallet keystore and portfolio ────────────────────────────
	n.keystore, err = wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	n.portfolio = portfolio.New(resolver, discovery, sinks)

	// ── 6. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		n.rpcServer = rpc.New(cfg.RPCListenAddr(), n.portfolio, cfg.RPC)
		n.rpcServer.SetKeystore(n.keystore, n.explorer, network)
		n.rpcServer.SetWalletDefaults(uint32(cfg.Wallet.Addresses), wallet.DefaultParams())
		n.rpcServer.SetAirdropParams(airdrop.Params{
			MinBoxValue: cfg.Airdrop.MinBoxValue,
			DefaultFee:  cfg.Airdrop.DefaultFee,
			FeeRate:     cfg.Airdrop.FeeRate,
		})
		n.rpcServer.SetSink(sinks)
		n.rpcServer.SetHistory(n.history)
		if n.hub != nil {
			n.rpcServer.SetWebSocket(n.hub)
		}
	}

	// ── 7. Metrics ──────────────────────────────────────────────────
	if cfg.Metrics.Enabled {
		n.metrics = metrics.NewServer(cfg.Metrics.Addr)
	}

	ok = true
	return n, nil
}

// Start opens the listeners and starts the holdings refresh loop.
func (n *Node) Start() error {
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start rpc: %w", err)
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Bool("ws", n.hub != nil).Msg("RPC server started")
	}
	if n.metrics != nil {
		if err := n.metrics.Start(); err != nil {
			return fmt.Errorf("start metrics: %w", err)
		}
		n.logger.Info().Str("addr", n.cfg.Metrics.Addr).Msg("Metrics server started")
	}

	if n.cfg.Wallet.Refresh > 0 {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runRefreshLoop(n.cfg.Wallet.Refresh)
		}()
	}

	n.logger.Info().
		Bool("rpc", n.rpcServer != nil).
		Bool("metrics", n.metrics != nil).
		Dur("refresh", n.cfg.Wallet.Refresh).
		Msg("Daemon started successfully")
	return nil
}

// Stop shuts down the listeners, waits for background loops and closes
// storage.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	if n.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := n.metrics.Stop(ctx); err != nil {
			n.logger.Warn().Err(err).Msg("Metrics shutdown")
		}
		cancel()
	}
	n.close()

	n.logger.Info().Msg("Goodbye!")
}

func (n *Node) close() {
	n.cancel()
	if n.hub != nil {
		n.hub.Close()
	}
	if n.history != nil {
		n.history.Close()
	}
	if c, ok := n.cache.(interface{ Close() error }); ok {
		c.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
}

// RPCAddr returns the RPC listen address, or "" if RPC is disabled.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Portfolio returns the daemon's portfolio.
func (n *Node) Portfolio() *portfolio.Portfolio {
	return n.portfolio
}

// runRefreshLoop re-reads the connected wallet's holdings every interval.
func (n *Node) runRefreshLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.refreshOnce()
		}
	}
}

func (n *Node) refreshOnce() {
	if n.portfolio.Wallet() == nil {
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.Wallet.Refresh)
	defer cancel()

	snap, err := n.portfolio.Refresh(ctx)
	switch {
	case err == nil:
		n.logger.Debug().Uint64("generation", snap.Generation).Int("boxes", snap.Boxes).Msg("Holdings refreshed")
	case errors.Is(err, portfolio.ErrStale), errors.Is(err, portfolio.ErrNotConnected), errors.Is(err, context.Canceled):
	default:
		n.logger.Warn().Err(err).Msg("Holdings refresh failed")
	}
}

package node

import (
	"net/http"
	"testing"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/cache"
	"github.com/Klingon-tech/klingdrop/internal/history"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultTestnet()
	cfg.DataDir = t.TempDir()
	cfg.RPC.Enabled = true
	cfg.RPC.Port = 0
	cfg.Log.Level = "error"
	cfg.Wallet.Refresh = 0
	if err := config.EnsureDataDirs(cfg); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestNode_StartStop(t *testing.T) {
	n, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := n.Start(); err != nil {
		n.Stop()
		t.Fatalf("Start() error: %v", err)
	}
	defer n.Stop()

	addr := n.RPCAddr()
	if addr == "" {
		t.Fatal("RPC address is empty")
	}

	c := rpcclient.New("http://" + addr + "/")
	status, err := c.WalletStatus(t.Context())
	if err != nil {
		t.Fatalf("wallet_status: %v", err)
	}
	if status.Connected {
		t.Error("fresh daemon reports a connected wallet")
	}
	wallets, err := c.WalletList(t.Context())
	if err != nil {
		t.Fatalf("wallet_list: %v", err)
	}
	if len(wallets) != 0 {
		t.Errorf("wallets = %+v, want none", wallets)
	}
	if n.Portfolio().Wallet() != nil {
		t.Error("portfolio has a wallet before connect")
	}
}

func TestNode_RPCDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.Enabled = false
	cfg.Cache.Backend = config.CacheNone

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer n.Stop()

	if n.RPCAddr() != "" {
		t.Errorf("RPCAddr() = %q, want empty", n.RPCAddr())
	}
}

func TestOpenCache(t *testing.T) {
	cfg := config.DefaultMainnet()
	db := storage.NewMemory()

	cfg.Cache.Backend = config.CacheNone
	c, err := openCache(t.Context(), cfg, db)
	if err != nil || c != nil {
		t.Errorf("none: cache = %v, err = %v", c, err)
	}

	cfg.Cache.Backend = config.CacheStore
	c, err = openCache(t.Context(), cfg, db)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*cache.StoreCache); !ok {
		t.Errorf("store: cache = %T", c)
	}

	cfg.Cache.Backend = config.CacheRedis
	cfg.Cache.RedisURL = "not a url"
	if _, err := openCache(t.Context(), cfg, db); err == nil {
		t.Error("redis with a bad url should fail")
	}
}

func TestOpenHistory_Default(t *testing.T) {
	h, err := openHistory(t.Context(), config.DefaultMainnet(), storage.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := h.(*history.KVStore); !ok {
		t.Errorf("history = %T, want *history.KVStore", h)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"none configured", nil, "http://a.com", false},
		{"listed", []string{"http://a.com"}, "http://a.com", true},
		{"not listed", []string{"http://a.com"}, "http://b.com", false},
		{"wildcard", []string{"*"}, "http://b.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "http://127.0.0.1/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.origins)(r); got != tt.want {
				t.Errorf("originChecker() = %v, want %v", got, tt.want)
			}
		})
	}
}

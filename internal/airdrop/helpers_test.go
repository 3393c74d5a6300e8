package airdrop

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingdrop/internal/distribution"
	"github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/notify"
	"github.com/Klingon-tech/klingdrop/internal/token"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

const (
	tokenT = "1111111111111111111111111111111111111111111111111111111111111111"
	nftX   = "2222222222222222222222222222222222222222222222222222222222222222"
)

func nftID(i int) string {
	return strings.Repeat(string("abcdef0123456789"[i%16]), 64)
}

func testAddress(t *testing.T, seed byte, network types.Network) types.Address {
	t.Helper()
	key, err := crypto.PrivateKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		t.Fatal(err)
	}
	addr, err := types.NewP2PKAddress(key.PublicKey(), network)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func treeOf(t *testing.T, a types.Address) string {
	t.Helper()
	tree, err := a.ErgoTreeHex()
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func recipients(t *testing.T, n int) []Recipient {
	t.Helper()
	out := make([]Recipient, n)
	for i := range out {
		out[i] = Recipient{
			ID:      "r" + string(rune('1'+i)),
			Address: testAddress(t, byte(10+i), types.Mainnet).String(),
		}
	}
	return out
}

type fakeWallet struct {
	mu        sync.Mutex
	connected bool
	boxes     []types.Box
	change    types.Address
	height    uint32
	signErr   error
	onSign    func()
	signed    int
	submitted []*tx.SignedTransaction
}

func newFakeWallet(t *testing.T, boxes ...types.Box) *fakeWallet {
	return &fakeWallet{
		connected: true,
		boxes:     boxes,
		change:    testAddress(t, 1, types.Mainnet),
		height:    900_000,
	}
}

func (w *fakeWallet) Connected() bool { return w.connected }

func (w *fakeWallet) UTXOs(context.Context) ([]types.Box, error) {
	return append([]types.Box(nil), w.boxes...), nil
}

func (w *fakeWallet) ChangeAddress(context.Context) (types.Address, error) { return w.change, nil }

func (w *fakeWallet) Height(context.Context) (uint32, error) { return w.height, nil }

func (w *fakeWallet) Sign(_ context.Context, unsigned *tx.UnsignedTransaction) (*tx.SignedTransaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signed++
	if w.onSign != nil {
		w.onSign()
	}
	if w.signErr != nil {
		return nil, w.signErr
	}
	id, err := unsigned.ID()
	if err != nil {
		return nil, err
	}
	return &tx.SignedTransaction{ID: id, DataInputs: unsigned.DataInputs, Outputs: unsigned.Outputs}, nil
}

func (w *fakeWallet) Submit(_ context.Context, signed *tx.SignedTransaction) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitted = append(w.submitted, signed)
	return signed.ID, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Publish(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func walletBox(id byte, value uint64, assets ...types.Asset) types.Box {
	return types.Box{
		BoxID:          strings.Repeat(string("0123456789abcdef"[id%16])+"e", 32),
		TransactionID:  strings.Repeat("cd", 32),
		ErgoTree:       "0008cd" + strings.Repeat("02", 33),
		CreationHeight: 800_000,
		Value:          value,
		Assets:         assets,
	}
}

func testEngine(w *fakeWallet) *Engine {
	e := New(w)
	e.Logger = log.Nop()
	return e
}

func tokenDist(t *testing.T, id string, decimals int, typ distribution.Type, amount string) distribution.TokenDistribution {
	t.Helper()
	rec, err := distribution.CreateRecord(&token.Token{ID: id, Name: "T", Decimals: decimals}, typ, decimal.RequireFromString(amount))
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}
	return rec.(distribution.TokenDistribution)
}

func collectionDist(t *testing.T, typ distribution.Type, n int, selected ...int) distribution.NFTDistribution {
	t.Helper()
	c := &token.Collection{ID: "Cats", Name: "Cats"}
	for i := 0; i < n; i++ {
		c.NFTs = append(c.NFTs, token.NFT{ID: nftID(i), Name: "cat", CollectionID: "Cats"})
	}
	for _, i := range selected {
		c.NFTs[i].Selected = true
	}
	rec, err := distribution.CreateRecord(c, typ, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("CreateRecord() error: %v", err)
	}
	return rec.(distribution.NFTDistribution)
}

// nftAssets returns one asset per collection member, amount 1.
func nftAssets(n int) []types.Asset {
	out := make([]types.Asset, n)
	for i := range out {
		out[i] = types.Asset{TokenID: nftID(i), Amount: 1}
	}
	return out
}

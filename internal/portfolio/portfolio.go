// Package portfolio holds the connected wallet's holdings and their
// collection grouping, refreshed wholesale.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/internal/airdrop"
	"github.com/Klingon-tech/klingdrop/internal/collection"
	"github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/notify"
	"github.com/Klingon-tech/klingdrop/internal/token"
	"github.com/Klingon-tech/klingdrop/internal/wallet"
)

// Errors.
var (
	// ErrStale is returned by a refresh overtaken by a newer refresh or
	// a reset. Its result was discarded.
	ErrStale        = errors.New("refresh superseded")
	ErrNotConnected = errors.New("no wallet connected")
)

// Snapshot is an immutable view of the portfolio.
type Snapshot struct {
	Generation     uint64             `json:"generation"`
	Connected      bool               `json:"connected"`
	Balance        uint64             `json:"balance"`
	Boxes          int                `json:"boxes"`
	Tokens         []token.Token      `json:"tokens"`
	Collections    []token.Collection `json:"collections"`
	StandaloneNFTs []token.NFT        `json:"standaloneNfts"`
	Holdings       []token.Holding    `json:"-"`
	RefreshedAt    time.Time          `json:"refreshedAt"`
}

// Portfolio tracks one wallet at a time. Every refresh takes a
// generation ticket; only the latest ticket may publish its result. The
// mutex is never held across I/O.
type Portfolio struct {
	resolver  *token.Resolver
	discovery *collection.Engine
	sink      notify.Sink
	logger    zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	wallet wallet.Wallet
	snap   Snapshot
}

// New creates an empty portfolio. sink may be nil.
func New(resolver *token.Resolver, discovery *collection.Engine, sink notify.Sink) *Portfolio {
	return &Portfolio{
		resolver:  resolver,
		discovery: discovery,
		sink:      sink,
		logger:    log.Wallet,
	}
}

// Connect resets the portfolio, attaches w and loads its holdings.
func (p *Portfolio) Connect(ctx context.Context, w wallet.Wallet) (*Snapshot, error) {
	if w == nil || !w.Connected() {
		return nil, airdrop.ErrWalletNotConnected
	}
	p.mu.Lock()
	p.gen++
	p.wallet = w
	p.snap = Snapshot{Generation: p.gen, Connected: true}
	p.mu.Unlock()
	return p.Refresh(ctx)
}

// Reset detaches the wallet and empties everything. In-flight refreshes
// become stale.
func (p *Portfolio) Reset() {
	p.mu.Lock()
	p.gen++
	p.wallet = nil
	p.snap = Snapshot{Generation: p.gen}
	p.mu.Unlock()
}

// Wallet returns the attached wallet, nil after Reset.
func (p *Portfolio) Wallet() wallet.Wallet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wallet
}

// Snapshot returns the current view.
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Inventory returns the holdings and discovery result a plan file is
// resolved against.
func (p *Portfolio) Inventory() airdrop.Inventory {
	s := p.Snapshot()
	return s.Inventory()
}

// Inventory returns what plans resolve against. A snapshot decoded from
// JSON carries no raw holdings; they are rebuilt from its tokens and
// NFTs.
func (s *Snapshot) Inventory() airdrop.Inventory {
	holdings := s.Holdings
	if holdings == nil {
		for _, t := range s.Tokens {
			holdings = append(holdings, token.Holding{TokenID: t.ID, Name: t.Name, Amount: t.Amount, Decimals: t.Decimals})
		}
		for _, c := range s.Collections {
			for _, n := range c.NFTs {
				holdings = append(holdings, token.Holding{TokenID: n.ID, Name: n.Name, Amount: 1})
			}
		}
		for _, n := range s.StandaloneNFTs {
			holdings = append(holdings, token.Holding{TokenID: n.ID, Name: n.Name, Amount: 1})
		}
	}
	return airdrop.Inventory{
		Holdings: holdings,
		Discovered: &collection.Result{
			Collections:    s.Collections,
			StandaloneNFTs: s.StandaloneNFTs,
		},
	}
}

// Refresh reloads boxes, holdings and collections from the wallet and
// replaces the snapshot. If a newer refresh or a Reset happened
// meanwhile, the result is dropped and ErrStale returned.
func (p *Portfolio) Refresh(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	p.gen++
	ticket, w := p.gen, p.wallet
	p.mu.Unlock()
	if w == nil {
		return nil, ErrNotConnected
	}
	done := log.Benchmark("portfolio refresh")
	defer done()

	boxes, err := w.UTXOs(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet boxes: %w", err)
	}
	holdings, err := token.Holdings(ctx, boxes, p.resolver)
	if err != nil {
		return nil, err
	}
	found, err := p.discovery.Discover(ctx, holdings)
	if err != nil {
		return nil, fmt.Errorf("discover collections: %w", err)
	}

	next := Snapshot{
		Generation:     ticket,
		Connected:      true,
		Balance:        token.Balance(boxes),
		Boxes:          len(boxes),
		Collections:    found.Collections,
		StandaloneNFTs: found.StandaloneNFTs,
		Holdings:       holdings,
		RefreshedAt:    time.Now().UTC(),
	}
	for _, h := range holdings {
		if !h.IsNFTCandidate() {
			next.Tokens = append(next.Tokens, *h.Token())
		}
	}

	p.mu.Lock()
	if p.gen != ticket {
		p.mu.Unlock()
		p.logger.Debug().Uint64("ticket", ticket).Msg("Discarding stale portfolio refresh")
		return nil, ErrStale
	}
	p.snap = next
	p.mu.Unlock()

	p.logger.Info().
		Int("boxes", next.Boxes).
		Int("tokens", len(next.Tokens)).
		Int("collections", len(next.Collections)).
		Int("nfts", len(next.StandaloneNFTs)).
		Msg("Portfolio refreshed")
	notify.Publish(ctx, p.logger, p.sink, notify.NewEvent(notify.KindPortfolio))
	return &next, nil
}

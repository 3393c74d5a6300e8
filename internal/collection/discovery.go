// Package collection discovers which NFTs in a wallet belong to a
// common collection by reading their issuance box registers.
package collection

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/klingdrop/internal/explorer"
	"github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/metrics"
	"github.com/Klingon-tech/klingdrop/internal/registers"
	"github.com/Klingon-tech/klingdrop/internal/token"
)

// Prefix marks a register value naming a collection.
const Prefix = "Collection:"

// DefaultConcurrency bounds in-flight metadata fetches.
const DefaultConcurrency = 8

// EIP-4 register layout of an issuance box.
const (
	regName        = "R4"
	regDescription = "R5"
	regMedia       = "R9"
)

// Fetcher returns the issuance box of a token.
type Fetcher interface {
	BoxByTokenID(ctx context.Context, tokenID string) (*explorer.Box, error)
}

// Result partitions NFT candidates. Both slices follow input order.
type Result struct {
	Collections    []token.Collection `json:"collections"`
	StandaloneNFTs []token.NFT        `json:"standaloneNfts"`
}

// Engine runs collection discovery.
type Engine struct {
	Fetcher     Fetcher
	Concurrency int
	Logger      zerolog.Logger
}

// New creates an engine with default concurrency.
func New(f Fetcher) *Engine {
	return &Engine{Fetcher: f, Concurrency: DefaultConcurrency, Logger: log.Discovery}
}

// candidate is the discovery outcome for one NFT, stored by input index.
type candidate struct {
	nft        token.NFT
	collection string
}

// Discover classifies holdings with Amount == 1 as NFTs and groups those
// whose metadata names a collection. A failed fetch or decode routes that
// NFT to the standalone list; it never fails the call. If ctx is done
// before every fetch has settled, Discover returns ctx.Err() and no
// result.
func (e *Engine) Discover(ctx context.Context, holdings []token.Holding) (*Result, error) {
	start := time.Now()
	defer func() { metrics.DiscoveryDuration.Observe(time.Since(start).Seconds()) }()

	var cands []token.Holding
	for _, h := range holdings {
		if h.IsNFTCandidate() {
			cands = append(cands, h)
		}
	}
	metrics.DiscoveryCandidates.Add(float64(len(cands)))

	limit := e.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	found := make([]candidate, len(cands))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, h := range cands {
		g.Go(func() error {
			found[i] = e.inspect(ctx, h)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := group(found)
	e.Logger.Debug().
		Int("candidates", len(cands)).
		Int("collections", len(res.Collections)).
		Int("standalone", len(res.StandaloneNFTs)).
		Dur("took", time.Since(start)).
		Msg("collection discovery finished")
	return res, nil
}

// inspect fetches and decodes one candidate. It never returns an error:
// any failure yields an NFT named after the holding with no collection.
func (e *Engine) inspect(ctx context.Context, h token.Holding) candidate {
	c := candidate{nft: token.NFT{ID: h.TokenID, Name: h.Name}}
	if ctx.Err() != nil {
		return c
	}

	box, err := e.Fetcher.BoxByTokenID(ctx, h.TokenID)
	if err == nil && box == nil {
		err = explorer.ErrNotFound
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			metrics.DiscoveryFailures.WithLabelValues("fetch").Inc()
			e.Logger.Warn().Err(err).Str("token", h.TokenID).Msg("NFT metadata fetch failed, treating as standalone")
		}
		return c
	}

	decoded := registers.DecodeMap(box.Registers)
	if s, ok := field(decoded, regName); ok && s != "" {
		c.nft.Name = s
	}
	if s, ok := field(decoded, regDescription); ok {
		c.nft.Description = s
	}
	if s, ok := field(decoded, regMedia); ok {
		c.nft.MediaURL = s
	}

	c.collection = collectionName(decoded)
	if c.collection == "" {
		for _, name := range registers.Names {
			if r, ok := decoded[name]; ok && !r.OK() {
				metrics.DiscoveryFailures.WithLabelValues("decode").Inc()
				e.Logger.Warn().Err(r.Err).Str("token", h.TokenID).Str("register", name).
					Msg("register decode failed, treating as standalone")
				break
			}
		}
	}
	c.nft.CollectionID = c.collection
	return c
}

// collectionName returns the first register, in R4..R9 order, whose text
// starts with Prefix, with the prefix removed.
func collectionName(decoded map[string]registers.Result) string {
	for _, name := range registers.Names {
		s, ok := text(decoded, name)
		if !ok || !strings.HasPrefix(s, Prefix) {
			continue
		}
		if col := strings.TrimPrefix(s, Prefix); col != "" {
			return col
		}
	}
	return ""
}

// field returns a display register's text unless it holds the
// collection marker.
func field(decoded map[string]registers.Result, name string) (string, bool) {
	s, ok := text(decoded, name)
	if !ok || strings.HasPrefix(s, Prefix) {
		return "", false
	}
	return s, true
}

func text(decoded map[string]registers.Result, name string) (string, bool) {
	r, ok := decoded[name]
	if !ok || !r.OK() {
		return "", false
	}
	s, err := r.Value.Text()
	return s, err == nil
}

// group builds collections in first-member order.
func group(found []candidate) *Result {
	res := &Result{Collections: []token.Collection{}, StandaloneNFTs: []token.NFT{}}
	index := make(map[string]int)
	for _, c := range found {
		if c.collection == "" {
			res.StandaloneNFTs = append(res.StandaloneNFTs, c.nft)
			continue
		}
		i, ok := index[c.collection]
		if !ok {
			i = len(res.Collections)
			index[c.collection] = i
			res.Collections = append(res.Collections, token.Collection{ID: c.collection, Name: c.collection})
		}
		res.Collections[i].NFTs = append(res.Collections[i].NFTs, c.nft)
	}
	return res
}

package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/internal/explorer"
	"github.com/Klingon-tech/klingdrop/internal/storage"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Holding is one token balance aggregated across wallet boxes.
type Holding struct {
	TokenID  string `json:"tokenId"`
	Name     string `json:"name"`
	Amount   uint64 `json:"amount"`
	Decimals int    `json:"decimals"`
}

// IsNFTCandidate reports whether the holding may be an NFT. A single
// unit is the only discriminator; decimals are not consulted.
func (h Holding) IsNFTCandidate() bool {
	return h.Amount == 1
}

// Token converts the holding into a fungible token entity.
func (h Holding) Token() *Token {
	return &Token{ID: h.TokenID, Name: h.Name, Decimals: h.Decimals, Amount: h.Amount}
}

// MetadataSource fetches token issuance info.
type MetadataSource interface {
	Token(ctx context.Context, tokenID string) (*explorer.TokenInfo, error)
}

// Resolver returns token metadata from the store, falling back to the
// source and remembering what it fetched.
type Resolver struct {
	Store  *Store
	Source MetadataSource
	Logger zerolog.Logger
}

// Metadata returns metadata for id.
func (r *Resolver) Metadata(ctx context.Context, id string) (*Metadata, error) {
	if r.Store != nil {
		meta, err := r.Store.Get(id)
		if err == nil {
			return meta, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			r.Logger.Warn().Err(err).Str("token", id).Msg("token store read failed")
		}
	}
	if r.Source == nil {
		return nil, fmt.Errorf("token %s: no metadata source", id)
	}
	info, err := r.Source.Token(ctx, id)
	if err != nil {
		return nil, err
	}
	meta := &Metadata{Name: info.Name, Description: info.Description, Decimals: info.Decimals}
	if r.Store != nil {
		if err := r.Store.Put(id, meta); err != nil {
			r.Logger.Warn().Err(err).Str("token", id).Msg("token store write failed")
		}
	}
	return meta, nil
}

// Holdings sums the assets of boxes per token, in first-seen order, and
// names them from r. A token whose metadata cannot be resolved keeps a
// shortened id as its name and zero decimals. Only context cancellation
// fails the call.
func Holdings(ctx context.Context, boxes []types.Box, r *Resolver) ([]Holding, error) {
	var out []Holding
	index := make(map[string]int)
	for _, box := range boxes {
		for _, a := range box.Assets {
			i, ok := index[a.TokenID]
			if !ok {
				i = len(out)
				index[a.TokenID] = i
				out = append(out, Holding{TokenID: a.TokenID, Name: shortID(a.TokenID)})
			}
			out[i].Amount += a.Amount
		}
	}

	if r == nil {
		return out, nil
	}
	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, err := r.Metadata(ctx, out[i].TokenID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.Logger.Warn().Err(err).Str("token", out[i].TokenID).Msg("token metadata unavailable")
			continue
		}
		if meta.Name != "" {
			out[i].Name = meta.Name
		}
		out[i].Decimals = meta.Decimals
	}
	return out, nil
}

// Balance returns the total value of boxes.
func Balance(boxes []types.Box) uint64 {
	var total uint64
	for _, b := range boxes {
		total += b.Value
	}
	return total
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}

// Package token models wallet holdings as tokens, NFTs and collections,
// and caches token metadata.
package token

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Entity types.
const (
	TypeToken      = "token"
	TypeNFT        = "nft"
	TypeCollection = "collection"
)

// Entity is anything a distribution record can refer to.
type Entity interface {
	EntityID() string
	EntityType() string
}

// Token is a fungible token held by the wallet. Amount is in raw units.
type Token struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	Amount   uint64 `json:"amount"`
}

func (t *Token) EntityID() string   { return t.ID }
func (t *Token) EntityType() string { return TypeToken }

// HumanAmount returns Amount scaled down by Decimals.
func (t *Token) HumanAmount() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(t.Amount), -int32(t.Decimals))
}

// NFT is a single non-fungible token. CollectionID refers back to the
// owning collection; it does not own it.
type NFT struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	MediaURL     string `json:"mediaUrl,omitempty"`
	CollectionID string `json:"collectionId,omitempty"`
	Selected     bool   `json:"selected"`
}

func (n *NFT) EntityID() string   { return n.ID }
func (n *NFT) EntityType() string { return TypeNFT }

// Collection groups NFTs sharing a collection name. ID equals Name.
type Collection struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	NFTs        []NFT  `json:"nfts"`
	Selected    bool   `json:"selected"`
}

func (c *Collection) EntityID() string   { return c.ID }
func (c *Collection) EntityType() string { return TypeCollection }

// SelectedNFTs returns the members marked selected, in collection order.
// With nothing selected the whole collection is returned.
func (c *Collection) SelectedNFTs() []NFT {
	var out []NFT
	for _, n := range c.NFTs {
		if n.Selected {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		out = append(out, c.NFTs...)
	}
	return out
}

// Select marks the members whose ids are listed and clears the rest.
// It reports how many members matched.
func (c *Collection) Select(ids ...string) int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var n int
	for i := range c.NFTs {
		c.NFTs[i].Selected = want[c.NFTs[i].ID]
		if c.NFTs[i].Selected {
			n++
		}
	}
	return n
}

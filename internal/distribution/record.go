// Package distribution holds entity-tagged records describing how much
// of which token or NFT goes to the recipients of an airdrop.
package distribution

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingdrop/internal/token"
)

// Type is a distribution rule.
type Type string

// Token rules.
const (
	Total   Type = "total"
	PerUser Type = "per-user"
)

// NFT rules.
const (
	OneToOne Type = "1-to-1"
	Set      Type = "set"
	Random   Type = "random"
)

// ForTokens reports whether t applies to fungible tokens.
func (t Type) ForTokens() bool { return t == Total || t == PerUser }

// ForNFTs reports whether t applies to NFTs and collections.
func (t Type) ForNFTs() bool { return t == OneToOne || t == Set || t == Random }

// Errors.
var (
	ErrRecordNotFound    = errors.New("distribution record not found")
	ErrTypeMismatch      = errors.New("distribution type does not fit entity")
	ErrUnsupportedEntity = errors.New("unsupported entity")
	ErrNegativeAmount    = errors.New("negative amount")
	ErrAmountOverflow    = errors.New("amount exceeds the chain maximum")
	ErrNoRecipients      = errors.New("no recipients")
)

// Record is a distribution record located by its entity id.
type Record interface {
	// Key returns the tagged entity id; empty for untagged records.
	Key() string
	// NestedID returns the id of the embedded entity.
	NestedID() string
	Kind() Type
}

// Amendable is a Record whose amount can be replaced by value.
type Amendable[R any] interface {
	Record
	WithAmount(decimal.Decimal) R
}

// TokenDistribution sends a fungible token to every recipient.
type TokenDistribution struct {
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Token      *token.Token    `json:"token"`
	Type       Type            `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
}

func (d TokenDistribution) Key() string { return d.EntityID }
func (d TokenDistribution) Kind() Type  { return d.Type }

func (d TokenDistribution) NestedID() string {
	if d.Token == nil {
		return ""
	}
	return d.Token.ID
}

// WithAmount returns a copy of d carrying amount.
func (d TokenDistribution) WithAmount(amount decimal.Decimal) TokenDistribution {
	d.Amount = amount
	return d
}

// PerRecipient returns the raw token amount each of recipients outputs
// carries:
//
//	total:    floor(Amount * 10^decimals / recipients)
//	per-user: floor(Amount * 10^decimals)
//
// Scaling before dividing gives the same integer as dividing the human
// amount first, without intermediate rounding. The residual left by
// flooring is not redistributed.
func (d TokenDistribution) PerRecipient(recipients int) (uint64, error) {
	if recipients <= 0 {
		return 0, ErrNoRecipients
	}
	if d.Amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	var decimals int32
	if d.Token != nil {
		decimals = int32(d.Token.Decimals)
	}
	scaled := d.Amount.Shift(decimals)

	var raw decimal.Decimal
	switch d.Type {
	case Total:
		raw, _ = scaled.QuoRem(decimal.NewFromInt(int64(recipients)), 0)
	case PerUser:
		raw = scaled.Floor()
	default:
		return 0, fmt.Errorf("%w: %q for token", ErrTypeMismatch, d.Type)
	}
	if raw.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, raw)
	}
	return raw.BigInt().Uint64(), nil
}

// NFTDistribution sends a single NFT or members of a collection.
// Mapping (NFT id to recipient id) is used by 1-to-1 only.
type NFTDistribution struct {
	EntityID           string            `json:"entityId"`
	EntityType         string            `json:"entityType"`
	NFT                *token.NFT        `json:"nft,omitempty"`
	Collection         *token.Collection `json:"collection,omitempty"`
	Type               Type              `json:"type"`
	AmountPerRecipient *decimal.Decimal  `json:"amountPerRecipient,omitempty"`
	Mapping            map[string]string `json:"mapping,omitempty"`
}

func (d NFTDistribution) Key() string { return d.EntityID }
func (d NFTDistribution) Kind() Type  { return d.Type }

func (d NFTDistribution) NestedID() string {
	switch {
	case d.NFT != nil:
		return d.NFT.ID
	case d.Collection != nil:
		return d.Collection.ID
	}
	return ""
}

// WithAmount returns a copy of d carrying amount per recipient.
func (d NFTDistribution) WithAmount(amount decimal.Decimal) NFTDistribution {
	d.AmountPerRecipient = &amount
	return d
}

// NFTs returns the NFTs the record distributes: the selected members of
// its collection, or its single NFT as a one-member set.
func (d NFTDistribution) NFTs() []token.NFT {
	switch {
	case d.Collection != nil:
		return d.Collection.SelectedNFTs()
	case d.NFT != nil:
		return []token.NFT{*d.NFT}
	}
	return nil
}

// CreateRecord builds a tagged record for entity. Tokens accept total
// and per-user; NFTs and collections accept 1-to-1, set and random.
func CreateRecord(entity token.Entity, typ Type, amount decimal.Decimal) (Record, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	switch e := entity.(type) {
	case *token.Token:
		if !typ.ForTokens() {
			return nil, fmt.Errorf("%w: %q for token %s", ErrTypeMismatch, typ, e.ID)
		}
		return TokenDistribution{
			EntityID:   e.EntityID(),
			EntityType: e.EntityType(),
			Token:      e,
			Type:       typ,
			Amount:     amount,
		}, nil
	case *token.NFT:
		if !typ.ForNFTs() {
			return nil, fmt.Errorf("%w: %q for nft %s", ErrTypeMismatch, typ, e.ID)
		}
		return NFTDistribution{
			EntityID:           e.EntityID(),
			EntityType:         e.EntityType(),
			NFT:                e,
			Type:               typ,
			AmountPerRecipient: &amount,
		}, nil
	case *token.Collection:
		if !typ.ForNFTs() {
			return nil, fmt.Errorf("%w: %q for collection %s", ErrTypeMismatch, typ, e.ID)
		}
		return NFTDistribution{
			EntityID:           e.EntityID(),
			EntityType:         e.EntityType(),
			Collection:         e,
			Type:               typ,
			AmountPerRecipient: &amount,
		}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedEntity, entity)
}

// UpdateAmount returns a copy of records in which exactly one record,
// the one identified by entityID, carries amount. An exact entity id
// match wins; records without an entity id are matched on the id of
// their embedded entity as a fallback. Only the first match changes.
// When nothing matches, records is returned unchanged with
// ErrRecordNotFound.
func UpdateAmount[R Amendable[R]](records []R, entityID string, amount decimal.Decimal) ([]R, error) {
	if entityID == "" {
		return records, fmt.Errorf("%w: empty entity id", ErrRecordNotFound)
	}
	idx := -1
	for i, r := range records {
		if r.Key() == entityID {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i, r := range records {
			if r.Key() == "" && r.NestedID() == entityID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return records, fmt.Errorf("%w: %s", ErrRecordNotFound, entityID)
	}

	out := make([]R, len(records))
	copy(out, records)
	out[idx] = records[idx].WithAmount(amount)
	return out, nil
}

// LabelFor returns the display label of a distribution type. Unknown
// types are shown as their tag.
func LabelFor(t Type) string {
	switch t {
	case Total:
		return "Split total"
	case PerUser:
		return "Per user"
	case OneToOne:
		return "One-to-one"
	case Set:
		return "Full set"
	case Random:
		return "Random"
	}
	return string(t)
}

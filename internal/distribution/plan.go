package distribution

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrDuplicateEntity is returned when an entity is added to a plan twice.
var ErrDuplicateEntity = errors.New("entity already in plan")

// Plan keeps the distribution records of one airdrop keyed by entity id,
// in insertion order. Every edit goes through the entity id.
type Plan struct {
	tokens []TokenDistribution
	nfts   []NFTDistribution
}

// NewPlan creates a plan from existing records.
func NewPlan(tokens []TokenDistribution, nfts []NFTDistribution) (*Plan, error) {
	p := &Plan{}
	for _, t := range tokens {
		if err := p.Add(t); err != nil {
			return nil, err
		}
	}
	for _, n := range nfts {
		if err := p.Add(n); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add appends a record. Untagged records are tagged with their nested id.
func (p *Plan) Add(r Record) error {
	key := r.Key()
	if key == "" {
		key = r.NestedID()
	}
	if key == "" {
		return fmt.Errorf("%w: record has no entity", ErrUnsupportedEntity)
	}
	if p.Has(key) {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, key)
	}

	switch rec := r.(type) {
	case TokenDistribution:
		rec.EntityID = key
		p.tokens = append(p.tokens, rec)
	case NFTDistribution:
		rec.EntityID = key
		p.nfts = append(p.nfts, rec)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedEntity, r)
	}
	return nil
}

// Has reports whether the plan holds a record for entityID.
func (p *Plan) Has(entityID string) bool {
	for _, t := range p.tokens {
		if t.EntityID == entityID {
			return true
		}
	}
	for _, n := range p.nfts {
		if n.EntityID == entityID {
			return true
		}
	}
	return false
}

// Remove deletes the record for entityID and reports whether it existed.
func (p *Plan) Remove(entityID string) bool {
	for i, t := range p.tokens {
		if t.EntityID == entityID {
			p.tokens = append(p.tokens[:i:i], p.tokens[i+1:]...)
			return true
		}
	}
	for i, n := range p.nfts {
		if n.EntityID == entityID {
			p.nfts = append(p.nfts[:i:i], p.nfts[i+1:]...)
			return true
		}
	}
	return false
}

// SetAmount replaces the amount of the record for entityID.
func (p *Plan) SetAmount(entityID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	tokens, err := UpdateAmount(p.tokens, entityID, amount)
	if err == nil {
		p.tokens = tokens
		return nil
	}
	nfts, err := UpdateAmount(p.nfts, entityID, amount)
	if err != nil {
		return err
	}
	p.nfts = nfts
	return nil
}

// SetMapping sets the NFT-to-recipient mapping of a 1-to-1 record.
func (p *Plan) SetMapping(entityID string, mapping map[string]string) error {
	for i := range p.nfts {
		if p.nfts[i].EntityID != entityID {
			continue
		}
		if p.nfts[i].Type != OneToOne {
			return fmt.Errorf("%w: mapping on %q record", ErrTypeMismatch, p.nfts[i].Type)
		}
		m := make(map[string]string, len(mapping))
		for k, v := range mapping {
			m[k] = v
		}
		p.nfts[i].Mapping = m
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRecordNotFound, entityID)
}

// Tokens returns a copy of the token records.
func (p *Plan) Tokens() []TokenDistribution {
	return append([]TokenDistribution(nil), p.tokens...)
}

// NFTs returns a copy of the NFT records.
func (p *Plan) NFTs() []NFTDistribution {
	return append([]NFTDistribution(nil), p.nfts...)
}

// Len returns the number of records.
func (p *Plan) Len() int {
	return len(p.tokens) + len(p.nfts)
}

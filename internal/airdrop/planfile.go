package airdrop

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/Klingon-tech/klingdrop/internal/collection"
	"github.com/Klingon-tech/klingdrop/internal/distribution"
	"github.com/Klingon-tech/klingdrop/internal/token"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
)

// Plan file errors.
var (
	ErrInvalidPlan   = errors.New("invalid plan")
	ErrUnknownEntity = errors.New("entity not held by wallet")
)

// PlanFile is the YAML form of an airdrop plan. Entities are referenced
// by id and resolved against the wallet's holdings at load time.
//
//	recipients:
//	  - id: alice
//	    address: 9f...
//	tokens:
//	  - id: 03faf2...
//	    type: total
//	    amount: "10.5"
//	nfts:
//	  - id: Space Cats        # collection name or NFT token id
//	    type: random
//	    select: [a1b2..., c3d4...]
type PlanFile struct {
	Recipients []Recipient  `yaml:"recipients" json:"recipients"`
	Tokens     []TokenEntry `yaml:"tokens,omitempty" json:"tokens,omitempty"`
	NFTs       []NFTEntry   `yaml:"nfts,omitempty" json:"nfts,omitempty"`
}

// TokenEntry is a token distribution in a plan file.
type TokenEntry struct {
	ID     string            `yaml:"id" json:"id"`
	Type   distribution.Type `yaml:"type" json:"type"`
	Amount string            `yaml:"amount" json:"amount"`
}

// NFTEntry is an NFT or collection distribution in a plan file.
type NFTEntry struct {
	ID      string            `yaml:"id" json:"id"`
	Type    distribution.Type `yaml:"type" json:"type"`
	Select  []string          `yaml:"select,omitempty" json:"select,omitempty"`
	Mapping map[string]string `yaml:"mapping,omitempty" json:"mapping,omitempty"`
}

// Inventory is what a plan file is resolved against.
type Inventory struct {
	Holdings   []token.Holding
	Discovered *collection.Result
}

// LoadPlan reads a YAML plan file.
func LoadPlan(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes YAML plan data.
func ParsePlan(data []byte) (*PlanFile, error) {
	var pf PlanFile
	if err := yaml.UnmarshalStrict(data, &pf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return &pf, nil
}

// Save writes the plan as YAML.
func (pf *PlanFile) Save(path string) error {
	data, err := yaml.Marshal(pf)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

// Resolve turns the plan into a Config. Every referenced entity must be
// held; an entity listed twice is rejected.
func (pf *PlanFile) Resolve(inv Inventory) (Config, error) {
	plan, err := distribution.NewPlan(nil, nil)
	if err != nil {
		return Config{}, err
	}

	for i, te := range pf.Tokens {
		amount, err := decimal.NewFromString(te.Amount)
		if err != nil {
			return Config{}, fmt.Errorf("%w: tokens[%d] amount %q", ErrInvalidPlan, i, te.Amount)
		}
		h, ok := findHolding(inv.Holdings, te.ID)
		if !ok {
			return Config{}, fmt.Errorf("%w: token %s", ErrUnknownEntity, te.ID)
		}
		rec, err := distribution.CreateRecord(h.Token(), te.Type, amount)
		if err != nil {
			return Config{}, fmt.Errorf("tokens[%d]: %w", i, err)
		}
		if err := plan.Add(rec); err != nil {
			return Config{}, fmt.Errorf("tokens[%d]: %w", i, err)
		}
	}

	for i, ne := range pf.NFTs {
		entity, err := findNFTEntity(inv.Discovered, ne)
		if err != nil {
			return Config{}, fmt.Errorf("nfts[%d]: %w", i, err)
		}
		rec, err := distribution.CreateRecord(entity, ne.Type, decimal.NewFromInt(1))
		if err != nil {
			return Config{}, fmt.Errorf("nfts[%d]: %w", i, err)
		}
		if err := plan.Add(rec); err != nil {
			return Config{}, fmt.Errorf("nfts[%d]: %w", i, err)
		}
		if len(ne.Mapping) > 0 {
			if err := plan.SetMapping(rec.Key(), ne.Mapping); err != nil {
				return Config{}, fmt.Errorf("nfts[%d]: %w", i, err)
			}
		}
	}

	return Config{
		Tokens:     plan.Tokens(),
		NFTs:       plan.NFTs(),
		Recipients: append([]Recipient(nil), pf.Recipients...),
	}, nil
}

// PlanFromConfig returns the file form of cfg.
func PlanFromConfig(cfg Config) *PlanFile {
	pf := &PlanFile{Recipients: append([]Recipient(nil), cfg.Recipients...)}
	for _, d := range cfg.Tokens {
		pf.Tokens = append(pf.Tokens, TokenEntry{ID: d.NestedID(), Type: d.Type, Amount: d.Amount.String()})
	}
	for _, d := range cfg.NFTs {
		ne := NFTEntry{ID: d.NestedID(), Type: d.Type, Mapping: d.Mapping}
		if d.Collection != nil {
			for _, n := range d.Collection.NFTs {
				if n.Selected {
					ne.Select = append(ne.Select, n.ID)
				}
			}
		}
		pf.NFTs = append(pf.NFTs, ne)
	}
	return pf
}

// Digest fingerprints a plan: blake3 over its canonical JSON form. Two
// configs with the same entities, amounts, selections and recipients
// share a digest.
func Digest(cfg Config) (string, error) {
	data, err := json.Marshal(PlanFromConfig(cfg))
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return crypto.Hash(data).String(), nil
}

func findHolding(holdings []token.Holding, id string) (token.Holding, bool) {
	for _, h := range holdings {
		if h.TokenID == id {
			return h, true
		}
	}
	return token.Holding{}, false
}

func findNFTEntity(found *collection.Result, ne NFTEntry) (token.Entity, error) {
	if found == nil {
		return nil, fmt.Errorf("%w: %s (no discovery result)", ErrUnknownEntity, ne.ID)
	}
	for i := range found.Collections {
		c := found.Collections[i]
		if c.ID != ne.ID {
			continue
		}
		c.NFTs = append([]token.NFT(nil), c.NFTs...)
		if len(ne.Select) > 0 && c.Select(ne.Select...) != len(ne.Select) {
			return nil, fmt.Errorf("%w: selection in collection %q", ErrUnknownEntity, c.Name)
		}
		return &c, nil
	}
	for i := range found.StandaloneNFTs {
		if n := found.StandaloneNFTs[i]; n.ID == ne.ID {
			return &n, nil
		}
	}
	for _, c := range found.Collections {
		for _, n := range c.NFTs {
			if n.ID == ne.ID {
				return &n, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: nft %s", ErrUnknownEntity, ne.ID)
}

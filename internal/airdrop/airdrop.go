// Package airdrop turns a distribution plan and a wallet's boxes into a
// single transaction paying every recipient.
package airdrop

import (
	"errors"

	"github.com/Klingon-tech/klingdrop/internal/distribution"
	"github.com/Klingon-tech/klingdrop/internal/notify"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Protocol defaults, in nanoERG.
const (
	MinBoxValue = 1_000_000
	DefaultFee  = 1_100_000
	FeeRate     = 1000 // per byte
)

// Precondition and assembly errors.
var (
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrNoRecipients       = errors.New("no recipients")
	ErrNoFunds            = errors.New("no funds: wallet has no unspent boxes")
	ErrNothingToSend      = errors.New("plan produces no outputs")
)

// Recipient is one airdrop destination. Duplicate addresses are legal
// and each produces its own outputs.
type Recipient struct {
	ID      string `json:"id" yaml:"id"`
	Address string `json:"address" yaml:"address"`
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Config is the aggregate the engine assembles from. The engine does
// not deduplicate entities; callers edit records by entity id.
type Config struct {
	Tokens     []distribution.TokenDistribution `json:"tokens"`
	NFTs       []distribution.NFTDistribution   `json:"nfts"`
	Recipients []Recipient                      `json:"recipients"`
}

// Params are the chain constants used during assembly.
type Params struct {
	MinBoxValue uint64
	DefaultFee  uint64
	FeeRate     uint64
	Network     types.Network
}

// DefaultParams returns mainnet defaults.
func DefaultParams() Params {
	return Params{
		MinBoxValue: MinBoxValue,
		DefaultFee:  DefaultFee,
		FeeRate:     FeeRate,
		Network:     types.Mainnet,
	}
}

// Summary is the structured outcome handed to history and notification
// sinks.
type Summary = notify.Summary

// Skip records an output left out of the transaction.
type Skip struct {
	Entity    string `json:"entity"`
	Recipient string `json:"recipient,omitempty"`
	Reason    string `json:"reason"`
}

// Result is an assembled, validated, unsigned airdrop.
type Result struct {
	Tx             *tx.UnsignedTransaction `json:"tx"`
	Summary        Summary                 `json:"summary"`
	Skipped        []Skip                  `json:"skipped,omitempty"`
	Rebuilt        bool                    `json:"rebuilt"`
	RecommendedFee uint64                  `json:"recommendedFee"`
	Boxes          []types.Box             `json:"-"`
}

// Receipt describes a submitted airdrop.
type Receipt struct {
	TxID    string  `json:"txId"`
	EventID string  `json:"eventId"`
	Digest  string  `json:"digest"`
	Summary Summary `json:"summary"`
}

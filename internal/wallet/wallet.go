// Package wallet is the signing and submission gateway used by the
// airdrop engine, plus a local HD keystore implementation of it.
package wallet

import (
	"context"
	"errors"

	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Gateway errors.
var (
	ErrNotConnected    = errors.New("wallet not connected")
	ErrSigningRejected = errors.New("signing rejected by user")
	ErrSigningFailed   = errors.New("signing failed")
	ErrUnknownInput    = errors.New("input not owned by wallet")
)

// Wallet is everything the airdrop engine needs from a connected wallet.
type Wallet interface {
	Connected() bool
	UTXOs(ctx context.Context) ([]types.Box, error)
	ChangeAddress(ctx context.Context) (types.Address, error)
	Height(ctx context.Context) (uint32, error)
	Sign(ctx context.Context, unsigned *tx.UnsignedTransaction) (*tx.SignedTransaction, error)
	Submit(ctx context.Context, signed *tx.SignedTransaction) (string, error)
}

// Account is a derived address tracked by the wallet.
type Account struct {
	Index   uint32        `json:"index"`
	Address types.Address `json:"address"`
}

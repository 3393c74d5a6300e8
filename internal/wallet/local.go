package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
	"github.com/rs/zerolog"
)

// Chain is the read/submit view of the network a Local wallet needs.
// *explorer.Client satisfies it.
type Chain interface {
	UnspentByAddress(ctx context.Context, address string) ([]types.Box, error)
	Height(ctx context.Context) (uint32, error)
	Submit(ctx context.Context, signed any) (string, error)
}

// ConfirmFunc is asked before every signature. Returning false rejects.
type ConfirmFunc func(ctx context.Context, unsigned *tx.UnsignedTransaction) bool

// Local is a keystore-backed wallet that signs in process. Each input
// is signed with a Schnorr signature over the transaction id by the key
// whose P2PK tree guards the spent box.
type Local struct {
	chain    Chain
	accounts []Account
	keys     map[string]*crypto.PrivateKey // ergo tree hex -> key
	logger   zerolog.Logger

	mu        sync.RWMutex
	connected bool
	confirm   ConfirmFunc
	owned     map[string]string // box id -> ergo tree hex, from the last UTXOs call
}

// NewLocal derives count external addresses from master.
func NewLocal(master *HDKey, network types.Network, count uint32, chain Chain) (*Local, error) {
	if count == 0 {
		count = 1
	}
	w := &Local{
		chain:  chain,
		keys:   make(map[string]*crypto.PrivateKey, count),
		owned:  make(map[string]string),
		logger: log.Wallet,
	}
	for i := uint32(0); i < count; i++ {
		child, err := master.DeriveAddress(0, i)
		if err != nil {
			return nil, err
		}
		signer, err := child.Signer()
		if err != nil {
			return nil, err
		}
		addr, err := child.Address(network)
		if err != nil {
			return nil, err
		}
		tree, err := addr.ErgoTreeHex()
		if err != nil {
			return nil, err
		}
		w.keys[tree] = signer
		w.accounts = append(w.accounts, Account{Index: i, Address: addr})
	}
	return w, nil
}

// Open loads a wallet from the keystore and derives its addresses.
func Open(ks *Keystore, name string, password []byte, chain Chain) (*Local, error) {
	info, err := ks.Info(name)
	if err != nil {
		return nil, err
	}
	seed, err := ks.Load(name, password)
	if err != nil {
		return nil, err
	}
	defer wipe(seed)
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return NewLocal(master, info.Network, info.Addresses, chain)
}

// SetConfirm installs the approval callback. nil approves everything.
func (w *Local) SetConfirm(fn ConfirmFunc) {
	w.mu.Lock()
	w.confirm = fn
	w.mu.Unlock()
}

// Connect checks the chain is reachable and marks the wallet connected.
func (w *Local) Connect(ctx context.Context) error {
	height, err := w.chain.Height(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	w.logger.Info().Uint32("height", height).Int("addresses", len(w.accounts)).Msg("Wallet connected")
	return nil
}

// Disconnect marks the wallet disconnected and forgets known boxes.
func (w *Local) Disconnect() {
	w.mu.Lock()
	w.connected = false
	w.owned = make(map[string]string)
	w.mu.Unlock()
}

// Close disconnects and wipes the private keys.
func (w *Local) Close() {
	w.Disconnect()
	for _, k := range w.keys {
		k.Zero()
	}
}

// Connected implements Wallet.
func (w *Local) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// Accounts returns the derived addresses.
func (w *Local) Accounts() []Account {
	return append([]Account(nil), w.accounts...)
}

// UTXOs returns the unspent boxes of every derived address, in address
// order and explorer order within an address.
func (w *Local) UTXOs(ctx context.Context) ([]types.Box, error) {
	if !w.Connected() {
		return nil, ErrNotConnected
	}
	var boxes []types.Box
	seen := make(map[string]bool)
	for _, acct := range w.accounts {
		page, err := w.chain.UnspentByAddress(ctx, acct.Address.String())
		if err != nil {
			return nil, fmt.Errorf("unspent boxes of %s: %w", acct.Address, err)
		}
		for _, b := range page {
			if seen[b.BoxID] {
				continue
			}
			seen[b.BoxID] = true
			boxes = append(boxes, b)
		}
	}

	owned := make(map[string]string, len(boxes))
	for _, b := range boxes {
		owned[b.BoxID] = b.ErgoTree
	}
	w.mu.Lock()
	w.owned = owned
	w.mu.Unlock()
	return boxes, nil
}

// ChangeAddress returns the first derived address.
func (w *Local) ChangeAddress(context.Context) (types.Address, error) {
	if !w.Connected() {
		return types.Address{}, ErrNotConnected
	}
	return w.accounts[0].Address, nil
}

// Height implements Wallet.
func (w *Local) Height(ctx context.Context) (uint32, error) {
	if !w.Connected() {
		return 0, ErrNotConnected
	}
	return w.chain.Height(ctx)
}

// Sign implements Wallet. Inputs must come from the last UTXOs call.
func (w *Local) Sign(ctx context.Context, unsigned *tx.UnsignedTransaction) (*tx.SignedTransaction, error) {
	w.mu.RLock()
	connected, confirm, owned := w.connected, w.confirm, w.owned
	w.mu.RUnlock()
	if !connected {
		return nil, ErrNotConnected
	}
	if confirm != nil && !confirm(ctx, unsigned) {
		return nil, ErrSigningRejected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := unsigned.ID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	digest, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	signed := &tx.SignedTransaction{
		ID:         id,
		Inputs:     make([]tx.SignedInput, len(unsigned.Inputs)),
		DataInputs: unsigned.DataInputs,
		Outputs:    unsigned.Outputs,
	}
	for i, in := range unsigned.Inputs {
		key, ok := w.keys[owned[in.BoxID]]
		if !ok {
			return nil, fmt.Errorf("%w: input %d (%s): %w", ErrSigningFailed, i, in.BoxID, ErrUnknownInput)
		}
		sig, err := key.Sign(digest)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %w", ErrSigningFailed, i, err)
		}
		signed.Inputs[i] = tx.SignedInput{
			BoxID: in.BoxID,
			SpendingProof: tx.SpendingProof{
				ProofBytes: hex.EncodeToString(sig),
				Extension:  in.Extension,
			},
		}
	}
	w.logger.Debug().Str("tx", id).Int("inputs", len(signed.Inputs)).Msg("Transaction signed")
	return signed, nil
}

// Submit implements Wallet.
func (w *Local) Submit(ctx context.Context, signed *tx.SignedTransaction) (string, error) {
	if !w.Connected() {
		return "", ErrNotConnected
	}
	id, err := w.chain.Submit(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", signed.ID, err)
	}
	w.logger.Info().Str("tx", id).Msg("Transaction submitted")
	return id, nil
}

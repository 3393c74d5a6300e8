package airdrop

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/internal/distribution"
	"github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/metrics"
	"github.com/Klingon-tech/klingdrop/internal/notify"
	"github.com/Klingon-tech/klingdrop/internal/token"
	"github.com/Klingon-tech/klingdrop/internal/wallet"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Skip reasons.
const (
	reasonBadAddress       = "invalid address"
	reasonWrongNetwork     = "wrong network"
	reasonZeroAmount       = "zero amount"
	reasonUnknownRecipient = "unknown recipient"
	reasonUnknownNFT       = "unknown nft"
	reasonInvalid          = "invalid distribution"
)

// Output kinds.
const (
	kindToken = "token"
	kindNFT   = "nft"
)

// Engine assembles, signs and submits airdrops.
type Engine struct {
	Wallet wallet.Wallet
	Params Params
	Rand   *rand.Rand  // shuffles random NFT distributions; nil uses the global source
	Sink   notify.Sink // receives submitted and failed events; may be nil
	Logger zerolog.Logger
}

// New returns an engine with default parameters.
func New(w wallet.Wallet) *Engine {
	return &Engine{Wallet: w, Params: DefaultParams(), Logger: log.Airdrop}
}

type plannedOutput struct {
	kind  string
	tree  string
	asset types.Asset
}

type assembly struct {
	cfg       Config
	trees     []string // per recipient, empty if unusable
	treeErr   []string // skip reason per unusable recipient
	byID      map[string]int
	outputs   []plannedOutput
	skipped   []Skip
	tokenOuts int
	nftOuts   int
	logger    zerolog.Logger
	shuffle   func(n int, swap func(i, j int))
}

// Assemble builds and validates the unsigned transaction for cfg.
//
// Every wallet box is spent, in order. Each token distribution yields
// one output per recipient; NFT distributions yield one output per
// assigned (NFT, recipient) pair. Unassigned value and tokens go to the
// wallet's change address. The transaction is built with the default
// fee, and rebuilt once with the recommended fee if that is higher.
func (e *Engine) Assemble(ctx context.Context, cfg Config) (res *Result, err error) {
	defer func() {
		metrics.Airdrops.WithLabelValues("assemble", metrics.Outcome(err)).Inc()
	}()

	if e.Wallet == nil || !e.Wallet.Connected() {
		return nil, ErrWalletNotConnected
	}
	if len(cfg.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	boxes, err := e.Wallet.UTXOs(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet boxes: %w", err)
	}
	if len(boxes) == 0 {
		return nil, ErrNoFunds
	}
	height, err := e.Wallet.Height(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet height: %w", err)
	}
	changeAddr, err := e.Wallet.ChangeAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("change address: %w", err)
	}
	changeTree, err := changeAddr.ErgoTreeHex()
	if err != nil {
		return nil, fmt.Errorf("change address: %w", err)
	}

	a := e.newAssembly(cfg)
	for _, d := range cfg.Tokens {
		a.addToken(d)
	}
	for _, d := range cfg.NFTs {
		a.addNFT(d)
	}
	if len(a.outputs) == 0 {
		return nil, fmt.Errorf("%w (%d skipped)", ErrNothingToSend, len(a.skipped))
	}

	build := func(fee uint64) (*tx.UnsignedTransaction, error) {
		b := tx.NewBuilder(height).
			SetChangeAddress(changeTree).
			SetMinChangeValue(e.Params.MinBoxValue).
			SetFee(fee)
		for _, box := range boxes {
			b.AddInput(box)
		}
		for _, out := range a.outputs {
			b.AddTokenOutput(e.Params.MinBoxValue, out.tree, out.asset)
		}
		return b.Build()
	}

	unsigned, err := build(e.Params.DefaultFee)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	recommended := tx.RequiredFee(unsigned, e.Params.FeeRate)
	rebuilt := false
	if recommended > e.Params.DefaultFee {
		if unsigned, err = build(recommended); err != nil {
			return nil, fmt.Errorf("rebuild with fee %d: %w", recommended, err)
		}
		rebuilt = true
		metrics.FeeRebuilds.Inc()
		e.Logger.Debug().Uint64("default", e.Params.DefaultFee).Uint64("fee", recommended).Msg("Rebuilt with recommended fee")
	}

	if err := tx.Validate(unsigned, boxes, e.Params.MinBoxValue); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	metrics.AirdropOutputs.WithLabelValues(kindToken).Add(float64(a.tokenOuts))
	metrics.AirdropOutputs.WithLabelValues(kindNFT).Add(float64(a.nftOuts))

	res = &Result{
		Tx:             unsigned,
		Skipped:        a.skipped,
		Rebuilt:        rebuilt,
		RecommendedFee: recommended,
		Boxes:          boxes,
		Summary: Summary{
			TokenDistributions: len(cfg.Tokens),
			NFTDistributions:   len(cfg.NFTs),
			Recipients:         len(cfg.Recipients),
			Inputs:             len(unsigned.Inputs),
			Outputs:            len(unsigned.Outputs),
			TokenOutputs:       a.tokenOuts,
			NFTOutputs:         a.nftOuts,
			Skipped:            len(a.skipped),
			Fee:                unsigned.Fee(),
		},
	}
	e.Logger.Info().
		Int("inputs", res.Summary.Inputs).
		Int("outputs", res.Summary.Outputs).
		Int("skipped", res.Summary.Skipped).
		Uint64("fee", res.Summary.Fee).
		Msg("Airdrop assembled")
	return res, nil
}

// Send assembles cfg, has the wallet sign it and submits it. Sinks get
// a submitted event on success and a failed event otherwise. A context
// cancelled while signing stops the airdrop before submission.
func (e *Engine) Send(ctx context.Context, cfg Config) (rc *Receipt, err error) {
	digest, err := Digest(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		metrics.Airdrops.WithLabelValues("send", metrics.Outcome(err)).Inc()
		if err != nil {
			ev := notify.NewEvent(notify.KindFailed)
			ev.Digest = digest
			ev.Error = err.Error()
			notify.Publish(context.WithoutCancel(ctx), e.Logger, e.Sink, ev)
		}
	}()

	res, err := e.Assemble(ctx, cfg)
	if err != nil {
		return nil, err
	}
	signed, err := e.Wallet.Sign(ctx, res.Tx)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txID, err := e.Wallet.Submit(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	ev := notify.NewEvent(notify.KindSubmitted)
	ev.TxID = txID
	ev.Digest = digest
	ev.Summary = &res.Summary
	notify.Publish(context.WithoutCancel(ctx), e.Logger, e.Sink, ev)

	l := e.Logger.With().Str("run", ev.ID).Logger()
	l.Info().Str("tx", txID).Str("digest", digest).Msg("Airdrop submitted")
	return &Receipt{TxID: txID, EventID: ev.ID, Digest: digest, Summary: res.Summary}, nil
}

func (e *Engine) newAssembly(cfg Config) *assembly {
	a := &assembly{
		cfg:     cfg,
		trees:   make([]string, len(cfg.Recipients)),
		treeErr: make([]string, len(cfg.Recipients)),
		byID:    make(map[string]int, len(cfg.Recipients)),
		logger:  e.Logger,
		shuffle: rand.Shuffle,
	}
	if e.Rand != nil {
		a.shuffle = e.Rand.Shuffle
	}
	for i, r := range cfg.Recipients {
		if _, ok := a.byID[r.ID]; !ok {
			a.byID[r.ID] = i
		}
		addr, err := types.ParseAddress(r.Address)
		if err != nil {
			a.treeErr[i] = reasonBadAddress
			e.Logger.Warn().Err(err).Str("recipient", r.ID).Msg("Recipient address rejected")
			continue
		}
		if addr.Network() != e.Params.Network {
			a.treeErr[i] = reasonWrongNetwork
			e.Logger.Warn().Str("recipient", r.ID).Msg("Recipient address is for another network")
			continue
		}
		tree, err := addr.ErgoTreeHex()
		if err != nil {
			a.treeErr[i] = reasonBadAddress
			e.Logger.Warn().Err(err).Str("recipient", r.ID).Msg("Recipient address has no spendable tree")
			continue
		}
		a.trees[i] = tree
	}
	return a
}

func (a *assembly) skip(entity, recipient, reason string) {
	a.skipped = append(a.skipped, Skip{Entity: entity, Recipient: recipient, Reason: reason})
	metrics.AirdropSkipped.WithLabelValues(reason).Inc()
	a.logger.Warn().Str("entity", entity).Str("recipient", recipient).Str("reason", reason).Msg("Output skipped")
}

// pay adds one output to recipient i, or records why it cannot.
func (a *assembly) pay(i int, kind string, asset types.Asset) {
	r := a.cfg.Recipients[i]
	if a.trees[i] == "" {
		a.skip(asset.TokenID, r.ID, a.treeErr[i])
		return
	}
	a.outputs = append(a.outputs, plannedOutput{kind: kind, tree: a.trees[i], asset: asset})
	if kind == kindToken {
		a.tokenOuts++
	} else {
		a.nftOuts++
	}
}

func (a *assembly) addToken(d distribution.TokenDistribution) {
	if d.Token == nil {
		a.skip(d.EntityID, "", reasonInvalid)
		return
	}
	amount, err := d.PerRecipient(len(a.cfg.Recipients))
	if err != nil {
		a.logger.Warn().Err(err).Str("token", d.Token.ID).Msg("Token distribution rejected")
		a.skip(d.Token.ID, "", reasonInvalid)
		return
	}
	if amount == 0 {
		a.skip(d.Token.ID, "", reasonZeroAmount)
		return
	}
	for i := range a.cfg.Recipients {
		a.pay(i, kindToken, types.Asset{TokenID: d.Token.ID, Amount: amount})
	}
}

func (a *assembly) addNFT(d distribution.NFTDistribution) {
	nfts := d.NFTs()
	switch d.Type {
	case distribution.OneToOne:
		a.addMapped(d)
	case distribution.Set:
		for i := range a.cfg.Recipients {
			for _, n := range nfts {
				a.pay(i, kindNFT, types.Asset{TokenID: n.ID, Amount: 1})
			}
		}
	case distribution.Random:
		shuffled := append([]token.NFT(nil), nfts...)
		a.shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		r := len(a.cfg.Recipients)
		for i := 0; i < min(len(shuffled), r); i++ {
			a.pay(i%r, kindNFT, types.Asset{TokenID: shuffled[i].ID, Amount: 1})
		}
	default:
		a.skip(d.EntityID, "", reasonInvalid)
	}
}

// addMapped pays each mapping entry in NFT id order. Mapped NFTs must
// belong to the record.
func (a *assembly) addMapped(d distribution.NFTDistribution) {
	members := make(map[string]bool)
	if d.NFT != nil {
		members[d.NFT.ID] = true
	}
	if d.Collection != nil {
		for _, n := range d.Collection.NFTs {
			members[n.ID] = true
		}
	}

	ids := make([]string, 0, len(d.Mapping))
	for id := range d.Mapping {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, nftID := range ids {
		recipientID := d.Mapping[nftID]
		if !members[nftID] {
			a.skip(nftID, recipientID, reasonUnknownNFT)
			continue
		}
		i, ok := a.byID[recipientID]
		if !ok {
			a.skip(nftID, recipientID, reasonUnknownRecipient)
			continue
		}
		a.pay(i, kindNFT, types.Asset{TokenID: nftID, Amount: 1})
	}
}

// IsPrecondition reports whether err is a precondition failure that
// aborted assembly before any output was built.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrWalletNotConnected) ||
		errors.Is(err, ErrNoRecipients) ||
		errors.Is(err, ErrNoFunds)
}

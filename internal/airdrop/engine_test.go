package airdrop

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingdrop/internal/distribution"
	"github.com/Klingon-tech/klingdrop/internal/metrics"
	"github.com/Klingon-tech/klingdrop/internal/notify"
	"github.com/Klingon-tech/klingdrop/internal/token"
	"github.com/Klingon-tech/klingdrop/internal/wallet"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

const tenERG = 10_000_000_000

func TestAssemble_ScenarioA_TotalSplit(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 5000}))
	rs := recipients(t, 2)
	cfg := Config{
		Tokens:     []distribution.TokenDistribution{tokenDist(t, tokenT, 2, distribution.Total, "10")},
		Recipients: rs,
	}

	res, err := testEngine(w).Assemble(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	outs := res.Tx.Outputs
	// two payouts, change, fee
	if len(outs) != 4 {
		t.Fatalf("outputs = %d, want 4", len(outs))
	}
	for i, r := range rs {
		addr, _ := types.ParseAddress(r.Address)
		if outs[i].ErgoTree != treeOf(t, addr) {
			t.Errorf("output %d not addressed to %s", i, r.ID)
		}
		if got := outs[i].TokenAmount(tokenT); got != 500 {
			t.Errorf("output %d token amount = %d, want 500", i, got)
		}
		if outs[i].Value != MinBoxValue {
			t.Errorf("output %d value = %d, want %d", i, outs[i].Value, MinBoxValue)
		}
	}
	if outs[2].ErgoTree != treeOf(t, w.change) || outs[2].TokenAmount(tokenT) != 4000 {
		t.Errorf("change output = %+v", outs[2])
	}
	if !outs[3].IsFee() || outs[3].Value != DefaultFee {
		t.Errorf("fee output = %+v", outs[3])
	}
	if res.Rebuilt {
		t.Error("default fee covers this transaction, no rebuild expected")
	}
	want := Summary{TokenDistributions: 1, Recipients: 2, Inputs: 1, Outputs: 4, TokenOutputs: 2, Fee: DefaultFee}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
}

func TestAssemble_ScenarioB_OneToOneMapping(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: nftX, Amount: 1}))
	rs := recipients(t, 2)
	rec, err := distribution.CreateRecord(&token.NFT{ID: nftX, Name: "X"}, distribution.OneToOne, decimal.NewFromInt(1))
	if err != nil {
		t.Fatal(err)
	}
	d := rec.(distribution.NFTDistribution)
	d.Mapping = map[string]string{nftX: rs[0].ID}

	res, err := testEngine(w).Assemble(context.Background(), Config{NFTs: []distribution.NFTDistribution{d}, Recipients: rs})
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if res.Summary.NFTOutputs != 1 {
		t.Fatalf("nft outputs = %d, want 1", res.Summary.NFTOutputs)
	}
	addr, _ := types.ParseAddress(rs[0].Address)
	out := res.Tx.Outputs[0]
	if out.ErgoTree != treeOf(t, addr) || out.TokenAmount(nftX) != 1 {
		t.Errorf("nft output = %+v, want nftX to r1", out)
	}
	addr2, _ := types.ParseAddress(rs[1].Address)
	for _, o := range res.Tx.Outputs {
		if o.ErgoTree == treeOf(t, addr2) {
			t.Error("unmapped recipient should receive nothing")
		}
	}
}

func TestAssemble_TotalNeverExceedsRequested(t *testing.T) {
	tests := []struct {
		amount     string
		decimals   int
		recipients int
	}{
		{"10", 2, 3},
		{"1", 0, 7},
		{"0.333", 3, 2},
		{"1000000", 6, 9},
		{"7.77", 1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 1 << 50}))
			cfg := Config{
				Tokens:     []distribution.TokenDistribution{tokenDist(t, tokenT, tt.decimals, distribution.Total, tt.amount)},
				Recipients: recipients(t, tt.recipients),
			}
			res, err := testEngine(w).Assemble(context.Background(), cfg)
			if err != nil {
				if errors.Is(err, ErrNothingToSend) {
					return // every share floored to zero
				}
				t.Fatalf("Assemble() error: %v", err)
			}
			var sum uint64
			for _, o := range res.Tx.Outputs[:res.Summary.TokenOutputs] {
				sum += o.TokenAmount(tokenT)
			}
			limit := decimal.RequireFromString(tt.amount).Shift(int32(tt.decimals)).Floor()
			if decimal.NewFromUint64(sum).GreaterThan(limit) {
				t.Errorf("sum %d exceeds floor(A*10^d) = %s", sum, limit)
			}
		})
	}
}

func TestAssemble_PerUserIdentical(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 1_000_000}))
	cfg := Config{
		Tokens:     []distribution.TokenDistribution{tokenDist(t, tokenT, 3, distribution.PerUser, "2.5009")},
		Recipients: recipients(t, 5),
	}
	res, err := testEngine(w).Assemble(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if res.Summary.TokenOutputs != 5 {
		t.Fatalf("token outputs = %d, want 5", res.Summary.TokenOutputs)
	}
	for i := 0; i < 5; i++ {
		if got := res.Tx.Outputs[i].TokenAmount(tokenT); got != 2500 {
			t.Errorf("output %d = %d, want floor(2.5009*1000) = 2500", i, got)
		}
	}
}

func TestAssemble_SetIsCartesian(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, nftAssets(3)...))
	// Both selected members go to both recipients.
	w.boxes[0].Assets[0].Amount = 2
	w.boxes[0].Assets[2].Amount = 2
	d := collectionDist(t, distribution.Set, 3, 0, 2)

	res, err := testEngine(w).Assemble(context.Background(), Config{NFTs: []distribution.NFTDistribution{d}, Recipients: recipients(t, 2)})
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if res.Summary.NFTOutputs != 4 {
		t.Fatalf("nft outputs = %d, want 2 recipients x 2 selected", res.Summary.NFTOutputs)
	}
	want := []string{nftID(0), nftID(2), nftID(0), nftID(2)}
	for i, id := range want {
		if res.Tx.Outputs[i].TokenAmount(id) != 1 {
			t.Errorf("output %d should carry %s", i, id[:4])
		}
	}
}

func TestAssemble_RandomBounds(t *testing.T) {
	tests := []struct {
		name       string
		nfts       int
		recipients int
		want       int
	}{
		{"more nfts than recipients", 5, 3, 3},
		{"fewer nfts than recipients", 2, 4, 2},
		{"equal", 3, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := uint64(0); seed < 10; seed++ {
				w := newFakeWallet(t, walletBox(1, tenERG, nftAssets(tt.nfts)...))
				e := testEngine(w)
				e.Rand = rand.New(rand.NewPCG(seed, seed+1))
				d := collectionDist(t, distribution.Random, tt.nfts)

				res, err := e.Assemble(context.Background(), Config{NFTs: []distribution.NFTDistribution{d}, Recipients: recipients(t, tt.recipients)})
				if err != nil {
					t.Fatalf("Assemble() error: %v", err)
				}
				if res.Summary.NFTOutputs != tt.want {
					t.Fatalf("seed %d: nft outputs = %d, want %d", seed, res.Summary.NFTOutputs, tt.want)
				}
				seen := make(map[string]bool)
				for _, o := range res.Tx.Outputs[:tt.want] {
					if len(o.Assets) != 1 || o.Assets[0].Amount != 1 {
						t.Fatalf("nft output assets = %+v", o.Assets)
					}
					if seen[o.Assets[0].TokenID] {
						t.Fatalf("seed %d: nft %s assigned twice", seed, o.Assets[0].TokenID[:4])
					}
					seen[o.Assets[0].TokenID] = true
				}
			}
		})
	}
}

func TestAssemble_RandomWithoutEntity(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG))
	d := distribution.NFTDistribution{EntityID: "ghost", Type: distribution.Random}
	_, err := testEngine(w).Assemble(context.Background(), Config{NFTs: []distribution.NFTDistribution{d}, Recipients: recipients(t, 2)})
	if !errors.Is(err, ErrNothingToSend) {
		t.Errorf("err = %v, want ErrNothingToSend", err)
	}
}

func counterValue(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.FeeRebuilds.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestAssemble_FeeRebuildOnce(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 100}))
	e := testEngine(w)
	e.Params.FeeRate = 50_000
	cfg := Config{
		Tokens:     []distribution.TokenDistribution{tokenDist(t, tokenT, 0, distribution.PerUser, "1")},
		Recipients: recipients(t, 3),
	}

	before := counterValue(t)
	res, err := e.Assemble(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if !res.Rebuilt {
		t.Fatal("expected a rebuild")
	}
	if res.RecommendedFee <= DefaultFee {
		t.Fatalf("recommended fee %d should exceed the default", res.RecommendedFee)
	}
	if res.Tx.Fee() != res.RecommendedFee {
		t.Errorf("fee output = %d, want recommended %d", res.Tx.Fee(), res.RecommendedFee)
	}
	if got := counterValue(t) - before; got != 1 {
		t.Errorf("rebuilds = %v, want exactly 1", got)
	}
	if err := tx.Validate(res.Tx, w.boxes, MinBoxValue); err != nil {
		t.Errorf("rebuilt transaction invalid: %v", err)
	}
}

func TestAssemble_RebuildFoldsDustIntoFee(t *testing.T) {
	cfg := Config{
		Tokens:     []distribution.TokenDistribution{tokenDist(t, tokenT, 0, distribution.PerUser, "1")},
		Recipients: recipients(t, 3),
	}
	assemble := func(value uint64) (*Result, *fakeWallet) {
		t.Helper()
		w := newFakeWallet(t, walletBox(1, value, types.Asset{TokenID: tokenT, Amount: 3}))
		e := testEngine(w)
		e.Params.FeeRate = 50_000
		res, err := e.Assemble(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Assemble() error: %v", err)
		}
		return res, w
	}

	sized, _ := assemble(3*MinBoxValue + DefaultFee + 20_000_000)
	if !sized.Rebuilt {
		t.Fatal("expected a rebuild")
	}

	// Enough for the outputs and the recommended fee plus half a box.
	res, w := assemble(3*MinBoxValue + sized.RecommendedFee + MinBoxValue/2)
	if !res.Rebuilt {
		t.Fatal("expected a rebuild")
	}
	fee := res.Tx.Fee()
	if fee < res.RecommendedFee || fee-res.RecommendedFee >= MinBoxValue {
		t.Errorf("fee = %d, want recommended %d plus less than one box of dust", fee, res.RecommendedFee)
	}
	if len(res.Tx.Outputs) == 5 {
		t.Errorf("dust below the floor should not produce a change box")
	}
	if err := tx.Validate(res.Tx, w.boxes, MinBoxValue); err != nil {
		t.Errorf("rebuilt transaction invalid: %v", err)
	}
}

func TestAssemble_Preconditions(t *testing.T) {
	funded := walletBox(1, tenERG)
	tests := []struct {
		name    string
		wallet  *fakeWallet
		cfg     Config
		wantErr error
	}{
		{
			name:    "disconnected",
			wallet:  &fakeWallet{boxes: []types.Box{funded}},
			cfg:     Config{Recipients: recipients(t, 1)},
			wantErr: ErrWalletNotConnected,
		},
		{
			name:    "no recipients",
			wallet:  newFakeWallet(t, funded),
			cfg:     Config{},
			wantErr: ErrNoRecipients,
		},
		{
			name:    "no funds",
			wallet:  newFakeWallet(t),
			cfg:     Config{Recipients: recipients(t, 1)},
			wantErr: ErrNoFunds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testEngine(tt.wallet).Assemble(context.Background(), tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if !IsPrecondition(err) {
				t.Error("IsPrecondition() = false")
			}
		})
	}

	if _, err := New(nil).Assemble(context.Background(), Config{}); !errors.Is(err, ErrWalletNotConnected) {
		t.Errorf("nil wallet: err = %v", err)
	}
}

func TestAssemble_SkipsBadOutputs(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 100}, types.Asset{TokenID: nftX, Amount: 1}))
	rs := recipients(t, 2)
	rs = append(rs,
		Recipient{ID: "bad", Address: "not-an-address"},
		Recipient{ID: "test", Address: testAddress(t, 40, types.Testnet).String()},
	)
	nft, _ := distribution.CreateRecord(&token.NFT{ID: nftX}, distribution.OneToOne, decimal.NewFromInt(1))
	mapped := nft.(distribution.NFTDistribution)
	mapped.Mapping = map[string]string{nftX: "nobody", nftID(0): rs[0].ID}

	cfg := Config{
		Tokens: []distribution.TokenDistribution{
			tokenDist(t, tokenT, 0, distribution.PerUser, "2"),
			tokenDist(t, nftID(5), 0, distribution.PerUser, "0.4"), // floors to zero
		},
		NFTs:       []distribution.NFTDistribution{mapped},
		Recipients: rs,
	}
	res, err := testEngine(w).Assemble(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if res.Summary.TokenOutputs != 2 || res.Summary.NFTOutputs != 0 {
		t.Errorf("summary = %+v", res.Summary)
	}
	reasons := map[string]int{}
	for _, s := range res.Skipped {
		reasons[s.Reason]++
	}
	want := map[string]int{
		reasonBadAddress:       1,
		reasonWrongNetwork:     1,
		reasonZeroAmount:       1,
		reasonUnknownNFT:       1,
		reasonUnknownRecipient: 1,
	}
	for r, n := range want {
		if reasons[r] != n {
			t.Errorf("skips for %q = %d, want %d (all: %v)", r, reasons[r], n, reasons)
		}
	}
	if res.Summary.Skipped != len(res.Skipped) {
		t.Error("summary skip count should match")
	}
}

func TestAssemble_BuildErrorsAreFatal(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 10}))
	cfg := Config{
		Tokens:     []distribution.TokenDistribution{tokenDist(t, tokenT, 0, distribution.PerUser, "6")},
		Recipients: recipients(t, 2),
	}
	if _, err := testEngine(w).Assemble(context.Background(), cfg); !errors.Is(err, tx.ErrInsufficientTokens) {
		t.Errorf("err = %v, want ErrInsufficientTokens", err)
	}

	poor := newFakeWallet(t, walletBox(1, 2_000_000, types.Asset{TokenID: tokenT, Amount: 10}))
	cfg.Tokens[0] = tokenDist(t, tokenT, 0, distribution.PerUser, "1")
	if _, err := testEngine(poor).Assemble(context.Background(), cfg); !errors.Is(err, tx.ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}

	// 2^62 to four recipients wraps a uint64 token total back to zero.
	huge := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 100}))
	cfg.Tokens[0] = tokenDist(t, tokenT, 0, distribution.PerUser, "4611686018427387904")
	cfg.Recipients = recipients(t, 4)
	if _, err := testEngine(huge).Send(context.Background(), cfg); !errors.Is(err, tx.ErrOutputOverflow) {
		t.Errorf("err = %v, want ErrOutputOverflow", err)
	}
	if len(huge.submitted) != 0 || huge.signed != 0 {
		t.Error("overflowing plan must not be signed or submitted")
	}
}

func TestSend(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 5000}))
	sink := &recordingSink{}
	var logs bytes.Buffer
	e := testEngine(w)
	e.Sink = sink
	e.Logger = zerolog.New(&logs)
	cfg := Config{
		Tokens:     []distribution.TokenDistribution{tokenDist(t, tokenT, 2, distribution.Total, "10")},
		Recipients: recipients(t, 2),
	}

	rc, err := e.Send(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(w.submitted) != 1 || rc.TxID != w.submitted[0].ID {
		t.Fatalf("receipt %s, submitted %d", rc.TxID, len(w.submitted))
	}
	digest, _ := Digest(cfg)
	if rc.Digest != digest {
		t.Error("receipt digest should be the plan digest")
	}
	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Kind != notify.KindSubmitted || ev.TxID != rc.TxID || ev.Summary == nil || ev.Summary.TokenOutputs != 2 {
		t.Errorf("event = %+v", ev)
	}
	if !strings.Contains(logs.String(), `"run":"`+ev.ID+`"`) || !strings.Contains(logs.String(), rc.TxID) {
		t.Errorf("submitted log line missing run id or tx: %s", logs.String())
	}
}

func TestSend_SigningRejected(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 5000}))
	w.signErr = wallet.ErrSigningRejected
	sink := &recordingSink{}
	e := testEngine(w)
	e.Sink = sink
	cfg := Config{
		Tokens:     []distribution.TokenDistribution{tokenDist(t, tokenT, 0, distribution.PerUser, "1")},
		Recipients: recipients(t, 1),
	}

	_, err := e.Send(context.Background(), cfg)
	if !errors.Is(err, wallet.ErrSigningRejected) {
		t.Fatalf("err = %v, want ErrSigningRejected", err)
	}
	if len(w.submitted) != 0 {
		t.Error("rejected transaction must not be submitted")
	}
	if len(sink.events) != 1 || sink.events[0].Kind != notify.KindFailed || sink.events[0].Error == "" {
		t.Errorf("events = %+v, want one failed event", sink.events)
	}
}

func TestSend_CancelledWhileSigning(t *testing.T) {
	w := newFakeWallet(t, walletBox(1, tenERG, types.Asset{TokenID: tokenT, Amount: 5000}))
	ctx, cancel := context.WithCancel(context.Background())
	w.onSign = cancel
	cfg := Config{
		Tokens:     []distribution.TokenDistribution{tokenDist(t, tokenT, 0, distribution.PerUser, "1")},
		Recipients: recipients(t, 1),
	}

	_, err := testEngine(w).Send(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if w.signed != 1 || len(w.submitted) != 0 {
		t.Errorf("signed %d, submitted %d: result of a cancelled send must be discarded", w.signed, len(w.submitted))
	}
}

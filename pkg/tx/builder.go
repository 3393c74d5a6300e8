package tx

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Build errors.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrChangeBelowMinimum = errors.New("change below minimum box value")
	ErrNoChangeAddress    = errors.New("no change address")
)

// Builder assembles an unsigned transaction from wallet boxes and
// requested outputs. Unassigned value and tokens go to a single change
// output; the fee is appended last as a miner fee output.
//
// Build does not consume the builder, so a caller may adjust the fee
// and build again.
type Builder struct {
	height    uint32
	inputs    []types.Box
	outputs   []Output
	fee       uint64
	change    string
	minChange uint64
	err       error
}

// NewBuilder creates a builder stamping outputs with the given height.
func NewBuilder(height uint32) *Builder {
	return &Builder{height: height}
}

// AddInput spends a box. Inputs keep insertion order.
func (b *Builder) AddInput(box types.Box) *Builder {
	b.inputs = append(b.inputs, box)
	return b
}

// AddOutput adds a value-only output.
func (b *Builder) AddOutput(value uint64, ergoTree string) *Builder {
	return b.AddTokenOutput(value, ergoTree)
}

// AddTokenOutput adds an output carrying value and assets.
func (b *Builder) AddTokenOutput(value uint64, ergoTree string, assets ...types.Asset) *Builder {
	if _, err := hex.DecodeString(ergoTree); err != nil && b.err == nil {
		b.err = fmt.Errorf("output %d: %w", len(b.outputs), ErrInvalidErgoTree)
	}
	b.outputs = append(b.outputs, Output{
		Value:          value,
		ErgoTree:       ergoTree,
		CreationHeight: b.height,
		Assets:         append([]types.Asset(nil), assets...),
		Registers:      map[string]string{},
	})
	return b
}

// SetFee sets the miner fee.
func (b *Builder) SetFee(fee uint64) *Builder {
	b.fee = fee
	return b
}

// SetChangeAddress sets the locking script for the change output.
func (b *Builder) SetChangeAddress(ergoTree string) *Builder {
	b.change = ergoTree
	return b
}

// SetMinChangeValue sets the floor a change output must carry.
// Value-only leftovers below it are added to the fee.
func (b *Builder) SetMinChangeValue(v uint64) *Builder {
	b.minChange = v
	return b
}

// OutputCount returns the number of requested outputs so far.
func (b *Builder) OutputCount() int {
	return len(b.outputs)
}

// Build returns the assembled transaction.
func (b *Builder) Build() (*UnsignedTransaction, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.inputs) == 0 {
		return nil, ErrNoInputs
	}

	var inValue uint64
	var tokenOrder []string
	inTokens := make(map[string]uint64)
	for i, box := range b.inputs {
		if inValue > math.MaxUint64-box.Value {
			return nil, fmt.Errorf("input %d: %w", i, ErrOutputOverflow)
		}
		inValue += box.Value
		for _, a := range box.Assets {
			if _, ok := inTokens[a.TokenID]; !ok {
				tokenOrder = append(tokenOrder, a.TokenID)
			}
		}
		if err := addAssets(inTokens, box.Assets); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	outValue, err := sumOutputs(b.outputs)
	if err != nil {
		return nil, err
	}
	if outValue > math.MaxUint64-b.fee {
		return nil, ErrOutputOverflow
	}
	if outValue+b.fee > inValue {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, inValue, outValue+b.fee)
	}

	outTokens := make(map[string]uint64)
	for i, out := range b.outputs {
		if err := addAssets(outTokens, out.Assets); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}
	for id, need := range outTokens {
		if have := inTokens[id]; need > have {
			return nil, fmt.Errorf("%w: token %s: have %d, need %d", ErrInsufficientTokens, id, have, need)
		}
	}

	var leftover []types.Asset
	for _, id := range tokenOrder {
		if rest := inTokens[id] - outTokens[id]; rest > 0 {
			leftover = append(leftover, types.Asset{TokenID: id, Amount: rest})
		}
	}

	outputs := make([]Output, len(b.outputs), len(b.outputs)+2)
	copy(outputs, b.outputs)

	fee := b.fee
	rest := inValue - outValue - b.fee
	switch {
	case len(leftover) > 0:
		if b.change == "" {
			return nil, ErrNoChangeAddress
		}
		if rest < b.minChange || rest == 0 {
			return nil, fmt.Errorf("%w: %d left for %d change tokens, need %d",
				ErrChangeBelowMinimum, rest, len(leftover), b.minChange)
		}
		outputs = append(outputs, b.changeOutput(rest, leftover))
	case rest > 0 && rest >= b.minChange:
		if b.change == "" {
			return nil, ErrNoChangeAddress
		}
		outputs = append(outputs, b.changeOutput(rest, nil))
	default:
		fee += rest
	}

	if fee > 0 {
		outputs = append(outputs, Output{
			Value:          fee,
			ErgoTree:       FeeErgoTree,
			CreationHeight: b.height,
			Assets:         []types.Asset{},
			Registers:      map[string]string{},
		})
	}

	tx := &UnsignedTransaction{
		Inputs:     make([]Input, len(b.inputs)),
		DataInputs: []DataInput{},
		Outputs:    outputs,
	}
	for i, box := range b.inputs {
		tx.Inputs[i] = Input{BoxID: box.BoxID, Extension: map[string]string{}}
	}
	return tx, nil
}

func (b *Builder) changeOutput(value uint64, assets []types.Asset) Output {
	if assets == nil {
		assets = []types.Asset{}
	}
	return Output{
		Value:          value,
		ErgoTree:       b.change,
		CreationHeight: b.height,
		Assets:         assets,
		Registers:      map[string]string{},
	}
}

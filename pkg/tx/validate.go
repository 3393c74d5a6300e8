package tx

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Validation errors.
var (
	ErrNoInputs        = errors.New("transaction has no inputs")
	ErrNoOutputs       = errors.New("transaction has no outputs")
	ErrDuplicateInput  = errors.New("duplicate input")
	ErrUnknownInput    = errors.New("input box not provided")
	ErrOutputOverflow  = errors.New("output values overflow")
	ErrBelowMinimum    = errors.New("output below minimum box value")
	ErrInvalidErgoTree = errors.New("invalid ergo tree")
	ErrTooManyAssets   = errors.New("too many assets or registers in output")
	ErrValueMismatch   = errors.New("input and output values differ")
	ErrTokenMismatch   = errors.New("input and output tokens differ")
)

// Validate checks an assembled transaction against the boxes it spends:
// every input is known and spent once, every non-fee output carries at
// least minBoxValue, and value and tokens are conserved exactly.
func Validate(tx *UnsignedTransaction, boxes []types.Box, minBoxValue uint64) error {
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}

	byID := make(map[string]*types.Box, len(boxes))
	for i := range boxes {
		byID[boxes[i].BoxID] = &boxes[i]
	}

	var inValue uint64
	inTokens := make(map[string]uint64)
	seen := make(map[string]bool, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if seen[in.BoxID] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in.BoxID] = true
		box, ok := byID[in.BoxID]
		if !ok {
			return fmt.Errorf("input %d (%s): %w", i, in.BoxID, ErrUnknownInput)
		}
		if inValue > math.MaxUint64-box.Value {
			return fmt.Errorf("input %d: %w", i, ErrOutputOverflow)
		}
		inValue += box.Value
		if err := addAssets(inTokens, box.Assets); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}

	outTokens := make(map[string]uint64)
	for i, out := range tx.Outputs {
		if _, err := hex.DecodeString(out.ErgoTree); err != nil || out.ErgoTree == "" {
			return fmt.Errorf("output %d: %w", i, ErrInvalidErgoTree)
		}
		if !out.IsFee() && out.Value < minBoxValue {
			return fmt.Errorf("output %d: %w: %d < %d", i, ErrBelowMinimum, out.Value, minBoxValue)
		}
		if err := addAssets(outTokens, out.Assets); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	outValue, err := tx.TotalOutputValue()
	if err != nil {
		return err
	}
	if outValue != inValue {
		return fmt.Errorf("%w: in %d, out %d", ErrValueMismatch, inValue, outValue)
	}

	if len(inTokens) != len(outTokens) {
		return fmt.Errorf("%w: %d token ids in, %d out", ErrTokenMismatch, len(inTokens), len(outTokens))
	}
	for id, in := range inTokens {
		if out := outTokens[id]; out != in {
			return fmt.Errorf("%w: token %s: in %d, out %d", ErrTokenMismatch, id, in, out)
		}
	}
	return nil
}

// addAssets adds asset amounts into per-token totals, failing on overflow.
func addAssets(totals map[string]uint64, assets []types.Asset) error {
	for _, a := range assets {
		sum := totals[a.TokenID]
		if sum > math.MaxUint64-a.Amount {
			return fmt.Errorf("%w: token %s", ErrOutputOverflow, a.TokenID)
		}
		totals[a.TokenID] = sum + a.Amount
	}
	return nil
}

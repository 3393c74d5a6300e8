// Package tx defines box-model transaction types, the builder, fee
// estimation and structural validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// FeeErgoTree is the standard miner fee contract.
const FeeErgoTree = "1005040004000e36100204a00b08cd0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798ea02d192a39a8cc7a701730073011001020402d19683030193a38cc7b2a57300000193c2b2a57301007473027303830108cdeeac93b1a57304"

// Input spends a box.
type Input struct {
	BoxID     string            `json:"boxId"`
	Extension map[string]string `json:"extension"`
}

// DataInput references a box read-only.
type DataInput struct {
	BoxID string `json:"boxId"`
}

// Output is a box candidate created by a transaction.
type Output struct {
	Value          uint64            `json:"value"`
	ErgoTree       string            `json:"ergoTree"`
	CreationHeight uint32            `json:"creationHeight"`
	Assets         []types.Asset     `json:"assets"`
	Registers      map[string]string `json:"additionalRegisters"`
}

// TokenAmount returns the amount of tokenID carried by the output.
func (o *Output) TokenAmount(tokenID string) uint64 {
	var total uint64
	for _, a := range o.Assets {
		if a.TokenID == tokenID {
			total += a.Amount
		}
	}
	return total
}

// IsFee reports whether the output pays the miner.
func (o *Output) IsFee() bool {
	return o.ErgoTree == FeeErgoTree
}

// UnsignedTransaction is an assembled transaction awaiting signatures.
type UnsignedTransaction struct {
	Inputs     []Input     `json:"inputs"`
	DataInputs []DataInput `json:"dataInputs"`
	Outputs    []Output    `json:"outputs"`
}

// Bytes returns the serialized message covered by input proofs.
//
// Layout: inputs (box id, empty proof, extension), data inputs, the
// distinct token table, then outputs with assets indexed into the table.
func (tx *UnsignedTransaction) Bytes() ([]byte, error) {
	buf := make([]byte, 0, 256)

	buf = binary.AppendUvarint(buf, uint64(len(tx.Inputs)))
	for i, in := range tx.Inputs {
		buf = append(buf, types.IDBytes(in.BoxID)...)
		buf = append(buf, 0) // empty proof
		var err error
		if buf, err = appendExtension(buf, in.Extension); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	buf = binary.AppendUvarint(buf, uint64(len(tx.DataInputs)))
	for _, di := range tx.DataInputs {
		buf = append(buf, types.IDBytes(di.BoxID)...)
	}

	tokens, index := tx.tokenTable()
	buf = binary.AppendUvarint(buf, uint64(len(tokens)))
	for _, id := range tokens {
		buf = append(buf, types.IDBytes(id)...)
	}

	buf = binary.AppendUvarint(buf, uint64(len(tx.Outputs)))
	for i := range tx.Outputs {
		var err error
		if buf, err = appendOutput(buf, &tx.Outputs[i], index); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}
	return buf, nil
}

// ID returns the transaction id: blake2b256 over Bytes, hex-encoded.
func (tx *UnsignedTransaction) ID() (string, error) {
	b, err := tx.Bytes()
	if err != nil {
		return "", err
	}
	return crypto.Blake2b256(b).String(), nil
}

// TotalOutputValue sums output values, fee output included.
func (tx *UnsignedTransaction) TotalOutputValue() (uint64, error) {
	return sumOutputs(tx.Outputs)
}

// FeeOutput returns the miner fee output, or nil if there is none.
func (tx *UnsignedTransaction) FeeOutput() *Output {
	for i := range tx.Outputs {
		if tx.Outputs[i].IsFee() {
			return &tx.Outputs[i]
		}
	}
	return nil
}

// Fee returns the value of the fee output, zero if absent.
func (tx *UnsignedTransaction) Fee() uint64 {
	if out := tx.FeeOutput(); out != nil {
		return out.Value
	}
	return 0
}

func (tx *UnsignedTransaction) tokenTable() ([]string, map[string]int) {
	var ids []string
	index := make(map[string]int)
	for _, out := range tx.Outputs {
		for _, a := range out.Assets {
			if _, ok := index[a.TokenID]; !ok {
				index[a.TokenID] = len(ids)
				ids = append(ids, a.TokenID)
			}
		}
	}
	return ids, index
}

// SpendingProof authorizes an input.
type SpendingProof struct {
	ProofBytes string            `json:"proofBytes"`
	Extension  map[string]string `json:"extension"`
}

// SignedInput is an input with its proof attached.
type SignedInput struct {
	BoxID         string        `json:"boxId"`
	SpendingProof SpendingProof `json:"spendingProof"`
}

// SignedTransaction is ready for submission.
type SignedTransaction struct {
	ID         string        `json:"id"`
	Inputs     []SignedInput `json:"inputs"`
	DataInputs []DataInput   `json:"dataInputs"`
	Outputs    []Output      `json:"outputs"`
}

// TotalOutputValue sums output values, fee output included.
func (tx *SignedTransaction) TotalOutputValue() (uint64, error) {
	return sumOutputs(tx.Outputs)
}

func sumOutputs(outputs []Output) (uint64, error) {
	var total uint64
	for i, out := range outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		total += out.Value
	}
	return total, nil
}

func appendExtension(buf []byte, ext map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(ext))
	for k := range ext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf = binary.AppendUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		v, err := hex.DecodeString(ext[k])
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", k, err)
		}
		buf = append(buf, k...)
		buf = append(buf, v...)
	}
	return buf, nil
}

func appendOutput(buf []byte, out *Output, index map[string]int) ([]byte, error) {
	tree, err := hex.DecodeString(out.ErgoTree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidErgoTree, err)
	}
	if len(out.Assets) > math.MaxUint8 || len(out.Registers) > math.MaxUint8 {
		return nil, ErrTooManyAssets
	}

	buf = binary.AppendUvarint(buf, out.Value)
	buf = append(buf, tree...)
	buf = binary.AppendUvarint(buf, uint64(out.CreationHeight))

	buf = append(buf, byte(len(out.Assets)))
	for _, a := range out.Assets {
		buf = binary.AppendUvarint(buf, uint64(index[a.TokenID]))
		buf = binary.AppendUvarint(buf, a.Amount)
	}

	names := make([]string, 0, len(out.Registers))
	for name := range out.Registers {
		names = append(names, name)
	}
	sort.Strings(names)
	buf = append(buf, byte(len(names)))
	for _, name := range names {
		v, err := hex.DecodeString(out.Registers[name])
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		buf = append(buf, v...)
	}
	return buf, nil
}

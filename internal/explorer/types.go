package explorer

import (
	"encoding/json"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Box is an on-chain box as returned by the explorer.
type Box = types.Box

// TokenInfo describes a token's issuance.
type TokenInfo struct {
	ID             string `json:"id"`
	BoxID          string `json:"boxId"`
	EmissionAmount uint64 `json:"emissionAmount"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Type           string `json:"type"`
	Decimals       int    `json:"decimals"`
}

type boxJSON struct {
	BoxID          string                   `json:"boxId"`
	TransactionID  string                   `json:"transactionId"`
	Index          uint16                   `json:"index"`
	ErgoTree       string                   `json:"ergoTree"`
	CreationHeight uint32                   `json:"creationHeight"`
	Value          uint64                   `json:"value"`
	Assets         []types.Asset            `json:"assets"`
	Registers      map[string]registerValue `json:"additionalRegisters"`
}

func (b boxJSON) box() Box {
	out := Box{
		BoxID:          b.BoxID,
		TransactionID:  b.TransactionID,
		Index:          b.Index,
		ErgoTree:       b.ErgoTree,
		CreationHeight: b.CreationHeight,
		Value:          b.Value,
		Assets:         b.Assets,
	}
	if len(b.Registers) > 0 {
		out.Registers = make(map[string]string, len(b.Registers))
		for name, v := range b.Registers {
			out.Registers[name] = string(v)
		}
	}
	return out
}

// registerValue accepts both the node form ("0e04...") and the explorer
// form ({"serializedValue": "0e04...", ...}).
type registerValue string

func (r *registerValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = registerValue(s)
		return nil
	}
	var obj struct {
		SerializedValue string `json:"serializedValue"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = registerValue(obj.SerializedValue)
	return nil
}

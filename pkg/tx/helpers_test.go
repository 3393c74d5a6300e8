package tx

import (
	"strings"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// p2pkTree returns a P2PK ErgoTree for a fake compressed key derived from b.
func p2pkTree(b byte) string {
	return "0008cd02" + strings.Repeat(string("0123456789abcdef"[b%16])+"0", 32)
}

func boxID(b byte) string {
	return strings.Repeat(string("0123456789abcdef"[b%16])+"1", 32)
}

func testBox(id byte, value uint64, assets ...types.Asset) types.Box {
	return types.Box{
		BoxID:          boxID(id),
		TransactionID:  strings.Repeat("ab", 32),
		ErgoTree:       p2pkTree(0),
		CreationHeight: 100,
		Value:          value,
		Assets:         assets,
	}
}

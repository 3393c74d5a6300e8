package types

// Asset is a token amount carried by a box. Amounts are raw integer units.
type Asset struct {
	TokenID string `json:"tokenId"`
	Amount  uint64 `json:"amount"`
}

// Box is an unspent output owned by a wallet.
type Box struct {
	BoxID          string            `json:"boxId"`
	TransactionID  string            `json:"transactionId"`
	Index          uint16            `json:"index"`
	ErgoTree       string            `json:"ergoTree"` // hex-encoded locking script
	CreationHeight uint32            `json:"creationHeight"`
	Value          uint64            `json:"value"`
	Assets         []Asset           `json:"assets"`
	Registers      map[string]string `json:"additionalRegisters,omitempty"`
}

// TokenAmount returns the total amount of tokenID held by the box.
func (b *Box) TokenAmount(tokenID string) uint64 {
	var total uint64
	for _, a := range b.Assets {
		if a.TokenID == tokenID {
			total += a.Amount
		}
	}
	return total
}

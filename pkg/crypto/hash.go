// Package crypto provides the hashing and signing primitives used by the
// airdrop engine and the local wallet.
package crypto

import (
	"github.com/Klingon-tech/klingdrop/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Hash computes a BLAKE3-256 hash of the input data. Used for
// content digests that never leave this process (plan fingerprints).
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// Blake2b256 computes the chain's native hash. Transaction ids and
// address checksums use it.
func Blake2b256(data []byte) types.Hash {
	return blake2b.Sum256(data)
}

// AddressFromPubKey derives a pay-to-public-key address from a
// compressed public key.
func AddressFromPubKey(pubKey []byte, network types.Network) (types.Address, error) {
	return types.NewP2PKAddress(pubKey, network)
}

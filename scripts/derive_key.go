// derive_key.go prints the pubkey, P2PK addresses and ErgoTree for a
// hex-encoded private key file.
// Usage: go run scripts/derive_key.go <keyfile>
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <keyfile>")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		fail(err)
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		fail(err)
	}
	defer key.Zero()

	pub := key.PublicKey()
	mainnet, err := types.NewP2PKAddress(pub, types.Mainnet)
	if err != nil {
		fail(err)
	}
	testnet, err := types.NewP2PKAddress(pub, types.Testnet)
	if err != nil {
		fail(err)
	}
	tree, err := mainnet.ErgoTreeHex()
	if err != nil {
		fail(err)
	}
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub))
	fmt.Printf("mainnet=%s\n", mainnet)
	fmt.Printf("testnet=%s\n", testnet)
	fmt.Printf("ergotree=%s\n", tree)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

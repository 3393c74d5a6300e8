package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Network prefixes occupy the high nibble of an address header byte.
type Network byte

const (
	Mainnet Network = 0x00
	Testnet Network = 0x10
)

// AddressType occupies the low nibble of an address header byte.
type AddressType byte

const (
	P2PK AddressType = 0x01
	P2SH AddressType = 0x02
	P2S  AddressType = 0x03
)

// PubKeySize is the length of a compressed secp256k1 public key.
const PubKeySize = 33

const checksumSize = 4

// p2pkTreePrefix is ErgoTree header 0x00 followed by a SigmaProp constant
// holding a ProveDlog group element.
var p2pkTreePrefix = []byte{0x00, 0x08, 0xcd}

// Address parse errors.
var (
	ErrAddressChecksum    = errors.New("address checksum mismatch")
	ErrAddressTooShort    = errors.New("address too short")
	ErrUnsupportedAddress = errors.New("unsupported address type")
)

// Address is a decoded base58 chain address.
type Address struct {
	network Network
	kind    AddressType
	content []byte
}

// ParseAddress decodes and checksums a base58 address.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) < 1+checksumSize+1 {
		return Address{}, ErrAddressTooShort
	}
	body := raw[:len(raw)-checksumSize]
	sum := blake2b.Sum256(body)
	if !bytes.Equal(sum[:checksumSize], raw[len(raw)-checksumSize:]) {
		return Address{}, ErrAddressChecksum
	}
	a := Address{
		network: Network(body[0] & 0xf0),
		kind:    AddressType(body[0] & 0x0f),
		content: append([]byte(nil), body[1:]...),
	}
	switch a.kind {
	case P2PK:
		if len(a.content) != PubKeySize {
			return Address{}, fmt.Errorf("p2pk content must be %d bytes, got %d", PubKeySize, len(a.content))
		}
	case P2SH, P2S:
	default:
		return Address{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedAddress, byte(a.kind))
	}
	return a, nil
}

// NewP2PKAddress builds a pay-to-public-key address.
func NewP2PKAddress(pubKey []byte, network Network) (Address, error) {
	if len(pubKey) != PubKeySize {
		return Address{}, fmt.Errorf("public key must be %d bytes, got %d", PubKeySize, len(pubKey))
	}
	return Address{network: network, kind: P2PK, content: append([]byte(nil), pubKey...)}, nil
}

// NewP2SAddress builds a pay-to-script address from a serialized ErgoTree.
func NewP2SAddress(tree []byte, network Network) Address {
	return Address{network: network, kind: P2S, content: append([]byte(nil), tree...)}
}

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool {
	return len(a.content) == 0
}

// Network returns the address network prefix.
func (a Address) Network() Network {
	return a.network
}

// Type returns the address type.
func (a Address) Type() AddressType {
	return a.kind
}

// String returns the base58 encoding with checksum.
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	body := make([]byte, 0, 1+len(a.content)+checksumSize)
	body = append(body, byte(a.network)|byte(a.kind))
	body = append(body, a.content...)
	sum := blake2b.Sum256(body)
	return base58.Encode(append(body, sum[:checksumSize]...))
}

// ErgoTree returns the locking script guarding boxes sent to this address.
func (a Address) ErgoTree() ([]byte, error) {
	switch a.kind {
	case P2PK:
		tree := make([]byte, 0, len(p2pkTreePrefix)+PubKeySize)
		tree = append(tree, p2pkTreePrefix...)
		return append(tree, a.content...), nil
	case P2S:
		return append([]byte(nil), a.content...), nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedAddress, byte(a.kind))
	}
}

// ErgoTreeHex returns ErgoTree() hex-encoded.
func (a Address) ErgoTreeHex() (string, error) {
	tree, err := a.ErgoTree()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(tree), nil
}

// MarshalJSON encodes the address as its base58 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a base58 address string.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
)

const keystoreVersion = 1

// keystoreFile is the on-disk JSON format of an encrypted wallet.
type keystoreFile struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	Network       string    `json:"network"`
	EncryptedSeed []byte    `json:"encrypted_seed"`
	Addresses     uint32    `json:"addresses"` // derived external addresses
}

// Info is the unencrypted part of a wallet file.
type Info struct {
	Name      string
	CreatedAt time.Time
	Network   types.Network
	Addresses uint32
}

// Keystore keeps encrypted wallet seeds in a directory, one file each.
type Keystore struct {
	path string
}

// NewKeystore opens (creating if needed) a keystore directory.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create encrypts seed under password and writes a new wallet file.
func (ks *Keystore) Create(name string, seed, password []byte, network types.Network, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}
	sealed, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}
	return ks.writeFile(path, &keystoreFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		Network:       networkName(network),
		EncryptedSeed: sealed,
		Addresses:     1,
	})
}

// Load decrypts and returns the wallet seed.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	return seed, nil
}

// Info returns wallet metadata without decrypting.
func (ks *Keystore) Info(name string) (*Info, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	network, err := ParseNetwork(kf.Network)
	if err != nil {
		return nil, err
	}
	return &Info{Name: name, CreatedAt: kf.CreatedAt, Network: network, Addresses: kf.Addresses}, nil
}

// SetAddressCount records how many external addresses are in use.
func (ks *Keystore) SetAddressCount(name string, n uint32) error {
	kf, err := ks.readFile(name)
	if err != nil {
		return err
	}
	kf.Addresses = max(n, 1)
	return ks.writeFile(ks.walletPath(name), kf)
}

// List returns wallet names in lexical order.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".wallet" {
			names = append(names, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	err := os.Remove(ks.walletPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return err
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(name string) (*keystoreFile, error) {
	data, err := os.ReadFile(ks.walletPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}

// ParseNetwork maps "mainnet" / "testnet" to a network prefix.
func ParseNetwork(s string) (types.Network, error) {
	switch s {
	case "mainnet", "":
		return types.Mainnet, nil
	case "testnet":
		return types.Testnet, nil
	default:
		return 0, fmt.Errorf("unknown network %q", s)
	}
}

func networkName(n types.Network) string {
	if n == types.Testnet {
		return "testnet"
	}
	return "mainnet"
}

package token

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingdrop/internal/storage"
)

var prefixToken = []byte("t/") // t/<tokenID> -> Metadata JSON

// Metadata is the immutable issuance info of a token.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Decimals    int    `json:"decimals"`
}

// Store persists token metadata. Issuance info never changes, so
// entries do not expire.
type Store struct {
	db storage.DB
}

// NewStore creates a token metadata store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put stores metadata for a token.
func (s *Store) Put(id string, meta *Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("token marshal: %w", err)
	}
	return s.db.Put(tokenKey(id), data)
}

// Get retrieves metadata for a token. A missing token wraps
// storage.ErrNotFound.
func (s *Store) Get(id string) (*Metadata, error) {
	data, err := s.db.Get(tokenKey(id))
	if err != nil {
		return nil, fmt.Errorf("token get: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("token unmarshal: %w", err)
	}
	return &meta, nil
}

// Has checks if metadata exists for a token.
func (s *Store) Has(id string) (bool, error) {
	return s.db.Has(tokenKey(id))
}

// ForEach iterates over all stored metadata in token id order.
// Corrupt entries are skipped.
func (s *Store) ForEach(fn func(id string, meta *Metadata) error) error {
	return s.db.ForEach(prefixToken, func(key, value []byte) error {
		var meta Metadata
		if err := json.Unmarshal(value, &meta); err != nil {
			return nil
		}
		return fn(string(key[len(prefixToken):]), &meta)
	})
}

func tokenKey(id string) []byte {
	return append(append([]byte{}, prefixToken...), id...)
}

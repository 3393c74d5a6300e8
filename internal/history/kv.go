package history

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingdrop/internal/storage"
)

var (
	prefixEntry  = []byte("e/") // e/<unix nanos BE><id> -> entry json
	prefixID     = []byte("i/") // i/<id> -> entry key
	prefixDigest = []byte("d/") // d/<digest>/<unix nanos BE><id> -> entry key
)

// KVStore keeps history in a key-value store. Entry keys start with the
// creation time, so key order is chronological.
type KVStore struct {
	db storage.DB
	mu sync.Mutex // serializes Add's existence check and writes
}

// NewKVStore stores history under its own prefix of db.
func NewKVStore(db storage.DB) *KVStore {
	return &KVStore{db: storage.NewPrefixDB(db, []byte("h/"))}
}

func entryKey(e *Entry) []byte {
	k := make([]byte, 0, len(prefixEntry)+8+len(e.ID))
	k = append(k, prefixEntry...)
	k = binary.BigEndian.AppendUint64(k, uint64(e.CreatedAt.UnixNano()))
	return append(k, e.ID...)
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// Add stores e.
func (s *KVStore) Add(_ context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idKey := join(prefixID, []byte(e.ID))
	if ok, err := s.db.Has(idKey); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, e.ID)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	key := entryKey(&e)
	if err := s.db.Put(key, data); err != nil {
		return err
	}
	if err := s.db.Put(idKey, key); err != nil {
		return err
	}
	return s.db.Put(join(prefixDigest, []byte(e.Digest), []byte("/"), key[len(prefixEntry):]), key)
}

// Get returns the entry with id.
func (s *KVStore) Get(_ context.Context, id string) (*Entry, error) {
	key, err := s.db.Get(join(prefixID, []byte(id)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s.load(key)
}

// FindByDigest implements Store.
func (s *KVStore) FindByDigest(_ context.Context, digest string) ([]Entry, error) {
	var keys [][]byte
	err := s.db.ForEach(join(prefixDigest, []byte(digest), []byte("/")), func(_, value []byte) error {
		keys = append(keys, append([]byte(nil), value...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e, err := s.load(k)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

// List implements Store.
func (s *KVStore) List(_ context.Context, limit int) ([]Entry, error) {
	var all []Entry
	err := s.db.ForEach(prefixEntry, func(_, value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		all = append(all, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Close is a no-op; the underlying DB is owned by the caller.
func (s *KVStore) Close() error { return nil }

func (s *KVStore) load(key []byte) (*Entry, error) {
	data, err := s.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}

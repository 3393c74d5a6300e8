// Package history records submitted airdrops so a plan is not sent twice
// by accident.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/klingdrop/internal/notify"
)

// Store errors.
var (
	ErrNotFound  = errors.New("history entry not found")
	ErrDuplicate = errors.New("history entry already exists")
	ErrInvalidID = errors.New("history entry id is not a uuid")
)

// Entry is one submitted airdrop.
type Entry struct {
	ID        string         `json:"id"`
	TxID      string         `json:"txId"`
	Digest    string         `json:"digest"`
	Summary   notify.Summary `json:"summary"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewEntry returns an entry with a fresh id stamped now.
func NewEntry(txID, digest string, summary notify.Summary) Entry {
	return Entry{
		ID:        uuid.NewString(),
		TxID:      txID,
		Digest:    digest,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
}

func (e *Entry) validate() error {
	if _, err := uuid.Parse(e.ID); err != nil {
		return ErrInvalidID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Store persists history entries.
type Store interface {
	Add(ctx context.Context, e Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	// FindByDigest returns entries for a plan digest, oldest first.
	FindByDigest(ctx context.Context, digest string) ([]Entry, error)
	// List returns up to limit entries, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

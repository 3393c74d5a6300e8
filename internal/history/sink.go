package history

import (
	"context"

	"github.com/Klingon-tech/klingdrop/internal/notify"
)

// Sink records submitted airdrop events in a Store. Other events are
// ignored.
type Sink struct {
	Store Store
}

// Publish implements notify.Sink.
func (s Sink) Publish(ctx context.Context, ev notify.Event) error {
	if ev.Kind != notify.KindSubmitted {
		return nil
	}
	e := Entry{ID: ev.ID, TxID: ev.TxID, Digest: ev.Digest, CreatedAt: ev.Time}
	if ev.Summary != nil {
		e.Summary = *ev.Summary
	}
	return s.Store.Add(ctx, e)
}

// Package notify delivers airdrop outcomes to push-only sinks: logs,
// websocket subscribers and the history store.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/internal/metrics"
)

// Kind identifies an event.
type Kind string

// Event kinds.
const (
	KindSubmitted Kind = "airdrop.submitted"
	KindFailed    Kind = "airdrop.failed"
	KindPortfolio Kind = "portfolio.refreshed"
)

// Summary is the structured outcome of one airdrop.
type Summary struct {
	TokenDistributions int    `json:"tokenDistributions"`
	NFTDistributions   int    `json:"nftDistributions"`
	Recipients         int    `json:"recipients"`
	Inputs             int    `json:"inputs"`
	Outputs            int    `json:"outputs"`
	TokenOutputs       int    `json:"tokenOutputs"`
	NFTOutputs         int    `json:"nftOutputs"`
	Skipped            int    `json:"skipped"`
	Fee                uint64 `json:"fee"`
}

// Event is pushed to sinks.
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	TxID    string    `json:"txId,omitempty"`
	Digest  string    `json:"digest,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(kind Kind) Event {
	return Event{ID: uuid.NewString(), Kind: kind, Time: time.Now().UTC()}
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Multi publishes to every sink and joins their errors. One failing
// sink does not stop delivery to the rest.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Publish delivers ev to sink without failing the caller: errors are
// logged and counted.
func Publish(ctx context.Context, logger zerolog.Logger, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, ev); err != nil {
		metrics.NotifyFailures.WithLabelValues(string(ev.Kind)).Inc()
		logger.Warn().Err(err).Str("event", string(ev.Kind)).Str("tx", ev.TxID).Msg("notification delivery failed")
	}
}

// LogSink writes events to a logger.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Publish(_ context.Context, ev Event) error {
	e := s.Logger.Info()
	if ev.Kind == KindFailed {
		e = s.Logger.Warn()
	}
	e = e.Str("event", string(ev.Kind)).Str("id", ev.ID)
	if ev.TxID != "" {
		e = e.Str("tx", ev.TxID)
	}
	if ev.Summary != nil {
		e = e.Int("outputs", ev.Summary.Outputs).Uint64("fee", ev.Summary.Fee).Int("skipped", ev.Summary.Skipped)
	}
	if ev.Error != "" {
		e = e.Str("error", ev.Error)
	}
	e.Msg("airdrop event")
	return nil
}

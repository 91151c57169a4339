// Package logsink publishes ledger events as structured log lines. It is the
// default sink for local runs.
package logsink

import (
	"context"

	"card-escrow-ledger/internal/core/domain"

	"github.com/rs/zerolog"
)

// Publisher implements ports.EventPublisher on a zerolog logger.
type Publisher struct {
	log zerolog.Logger
}

// NewPublisher creates a log publisher.
func NewPublisher(log zerolog.Logger) *Publisher {
	return &Publisher{log: log}
}

// Name returns the sink name used in metrics.
func (p *Publisher) Name() string {
	return "log"
}

// Publish writes one line per event.
func (p *Publisher) Publish(_ context.Context, events []domain.Event) error {
	for _, e := range events {
		p.log.Info().
			Int64("sequence", e.Sequence).
			Str("event_type", string(e.Type)).
			Str("card_address", e.CardAddress.String()).
			Str("owner", e.Owner.String()).
			Str("card_id", e.CardID).
			RawJSON("payload", e.Payload).
			Time("occurred_at", e.OccurredAt).
			Msg("ledger event")
	}
	return nil
}

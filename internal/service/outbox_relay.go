package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"
	"card-escrow-ledger/pkg/metrics"

	"github.com/rs/zerolog"
)

const (
	defaultRelayInterval  = time.Second
	defaultRelayBatchSize = 100
)

// OutboxRelay moves committed ledger events to an EventPublisher. Events are
// claimed, published and marked in one unit of work, so a failed publish
// leaves them unpublished for the next pass. Delivery is at-least-once.
type OutboxRelay struct {
	transactor ports.Transactor
	publisher  ports.EventPublisher
	metrics    *metrics.Metrics
	interval   time.Duration
	batchSize  int
	now        func() time.Time
	log        zerolog.Logger
}

// NewOutboxRelay creates a relay polling every interval for up to batchSize
// events at a time.
func NewOutboxRelay(
	transactor ports.Transactor,
	publisher ports.EventPublisher,
	m *metrics.Metrics,
	interval time.Duration,
	batchSize int,
	log zerolog.Logger,
) *OutboxRelay {
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	if batchSize <= 0 {
		batchSize = defaultRelayBatchSize
	}
	return &OutboxRelay{
		transactor: transactor,
		publisher:  publisher,
		metrics:    m,
		interval:   interval,
		batchSize:  batchSize,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Run drains the outbox immediately and then on every tick until ctx ends.
func (r *OutboxRelay) Run(ctx context.Context) error {
	r.log.Info().
		Str("sink", r.publisher.Name()).
		Dur("interval", r.interval).
		Int("batch_size", r.batchSize).
		Msg("event relay started")

	r.drainAndLog(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("event relay stopped")
			return nil
		case <-ticker.C:
			r.drainAndLog(ctx)
		}
	}
}

func (r *OutboxRelay) drainAndLog(ctx context.Context) {
	n, err := r.Drain(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn().Err(err).Int("published", n).Msg("event relay pass failed")
		return
	}
	if n > 0 {
		r.log.Debug().Int("published", n).Msg("event relay pass")
	}
}

// Drain relays batches until the outbox is empty and returns how many events
// were published.
func (r *OutboxRelay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.RelayOnce(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

// RelayOnce publishes at most one batch.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	var published int
	err := r.transactor.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		events, err := st.Events().ClaimUnpublished(ctx, r.batchSize)
		if err != nil {
			return fmt.Errorf("claim events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		if err := r.publisher.Publish(ctx, events); err != nil {
			r.metrics.IncrementPublishFailure(r.publisher.Name())
			return fmt.Errorf("publish %d events to %s: %w", len(events), r.publisher.Name(), err)
		}

		if err := st.Events().MarkPublished(ctx, sequences(events), r.now()); err != nil {
			return fmt.Errorf("mark events published: %w", err)
		}
		published = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.metrics.AddPublished(r.publisher.Name(), published)
	return published, nil
}

func sequences(events []domain.Event) []int64 {
	seqs := make([]int64, len(events))
	for i, e := range events {
		seqs[i] = e.Sequence
	}
	return seqs
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const (
	eventColumns     = `sequence, event_type, card_address, owner, card_id, payload, occurred_at, published_at`
	defaultEventPage = 100

	// eventLogLockKey is the advisory lock that orders appends.
	eventLogLockKey int64 = 0x63656c5f6576 // "cel_ev"
)

// EventRepo implements ports.EventRepository on the ledger_events table,
// which doubles as the transactional outbox.
type EventRepo struct {
	q Querier
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(q Querier) *EventRepo {
	return &EventRepo{q: q}
}

// Append inserts e and stores the assigned sequence on it.
//
// Appends take a transaction-scoped advisory lock first, so a sequence is
// only drawn once every earlier appender has committed or rolled back. A
// reader paging with "sequence > cursor" therefore never sees a sequence
// before a smaller one becomes visible.
func (r *EventRepo) Append(ctx context.Context, e *domain.Event) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventLogLockKey); err != nil {
		return translateLockError(err, "lock event log")
	}

	query := `INSERT INTO ledger_events (event_type, card_address, owner, card_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING sequence`

	err := r.q.QueryRow(ctx, query,
		string(e.Type), idArg(e.CardAddress), idArg(e.Owner), e.CardID, []byte(e.Payload), e.OccurredAt,
	).Scan(&e.Sequence)
	if err != nil {
		return translateLockError(err, "append event")
	}
	return nil
}

// List returns events matching params in sequence order.
func (r *EventRepo) List(ctx context.Context, params ports.EventListParams) ([]domain.Event, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("sequence > $%d", argIdx))
	args = append(args, params.AfterSequence)
	argIdx++

	if params.CardAddress != nil {
		conditions = append(conditions, fmt.Sprintf("card_address = $%d", argIdx))
		args = append(args, idArg(*params.CardAddress))
		argIdx++
	}
	if params.Owner != nil {
		conditions = append(conditions, fmt.Sprintf("owner = $%d", argIdx))
		args = append(args, idArg(*params.Owner))
		argIdx++
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultEventPage
	}

	query := fmt.Sprintf(`SELECT %s FROM ledger_events WHERE %s ORDER BY sequence LIMIT $%d`,
		eventColumns, strings.Join(conditions, " AND "), argIdx)
	args = append(args, limit)

	return r.query(ctx, "list events", query, args...)
}

// ClaimUnpublished locks up to limit unpublished events. Rows already claimed
// by another relay are skipped rather than waited on.
func (r *EventRepo) ClaimUnpublished(ctx context.Context, limit int) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM ledger_events
		WHERE published_at IS NULL ORDER BY sequence LIMIT $1 FOR UPDATE SKIP LOCKED`
	return r.query(ctx, "claim unpublished events", query, limit)
}

// MarkPublished stamps the given sequences as delivered.
func (r *EventRepo) MarkPublished(ctx context.Context, sequences []int64, at time.Time) error {
	if len(sequences) == 0 {
		return nil
	}
	query := `UPDATE ledger_events SET published_at = $1 WHERE sequence = ANY($2) AND published_at IS NULL`

	if _, err := r.q.Exec(ctx, query, at, sequences); err != nil {
		return translateLockError(err, "mark events published")
	}
	return nil
}

func (r *EventRepo) query(ctx context.Context, what, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, translateLockError(err, what)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		e              domain.Event
		eventType      string
		address, owner []byte
		payload        []byte
	)
	err := row.Scan(&e.Sequence, &eventType, &address, &owner, &e.CardID, &payload, &e.OccurredAt, &e.PublishedAt)
	if err != nil {
		return nil, err
	}
	if err := scanIdentity(address, &e.CardAddress); err != nil {
		return nil, fmt.Errorf("event card address: %w", err)
	}
	if err := scanIdentity(owner, &e.Owner); err != nil {
		return nil, fmt.Errorf("event owner: %w", err)
	}
	e.Type = domain.EventType(eventType)
	e.Payload = payload
	return &e, nil
}

package ports

import (
	"context"
	"time"

	"card-escrow-ledger/internal/core/authority"
	"card-escrow-ledger/internal/core/domain"
)

// CardRepository persists cards keyed by (owner, card id).
// Missing records are reported as domain.ErrNotFound. Lock waits that outlive
// the context fail with domain.ErrLockTimeout.
type CardRepository interface {
	Get(ctx context.Context, owner domain.Identity, cardID string) (*domain.Card, error)
	// GetForUpdate locks the card until the enclosing unit of work ends.
	GetForUpdate(ctx context.Context, owner domain.Identity, cardID string) (*domain.Card, error)
	ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.Card, error)
	// IsCardAccount reports whether id is the address or escrow account of
	// any card.
	IsCardAccount(ctx context.Context, id domain.Identity) (bool, error)
	// Create fails with domain.ErrAlreadyExists for a taken (owner, card id).
	Create(ctx context.Context, card *domain.Card) error
	// Update writes the card if its Version still matches and bumps it.
	// A stale version fails with domain.ErrConflict.
	Update(ctx context.Context, card *domain.Card) error
}

// RegistryRepository persists the singleton registry. A missing registry is
// reported as domain.ErrNotInitialized.
type RegistryRepository interface {
	Get(ctx context.Context) (*domain.Registry, error)
	GetForUpdate(ctx context.Context) (*domain.Registry, error)
	// Create fails with domain.ErrAlreadyInitialized when a registry exists.
	Create(ctx context.Context, registry *domain.Registry) error
	Update(ctx context.Context, registry *domain.Registry) error
}

// EventRepository is the append-only event log and its relay cursor.
type EventRepository interface {
	// Append assigns the event its sequence number.
	Append(ctx context.Context, event *domain.Event) error
	List(ctx context.Context, params EventListParams) ([]domain.Event, error)
	// ClaimUnpublished returns up to limit unpublished events in sequence
	// order, locked against concurrent relays.
	ClaimUnpublished(ctx context.Context, limit int) ([]domain.Event, error)
	MarkPublished(ctx context.Context, sequences []int64, at time.Time) error
}

// EventListParams filters the event log. Zero values mean no filter.
type EventListParams struct {
	CardAddress   *domain.Identity
	Owner         *domain.Identity
	AfterSequence int64
	Limit         int
}

// TransferService moves fungible balances between token accounts.
type TransferService interface {
	// OpenAccount creates an empty account controlled by authority.
	OpenAccount(ctx context.Context, account, authority domain.Identity) error
	// Transfer debits from and credits to atomically. The capability must
	// control from. A missing destination is opened with itself as authority.
	Transfer(ctx context.Context, from, to domain.Identity, amount uint64, capability authority.Capability) error
	Balance(ctx context.Context, account domain.Identity) (uint64, error)
	// Deposit credits account with funds arriving from outside the ledger,
	// opening it for itself when missing.
	Deposit(ctx context.Context, account domain.Identity, amount uint64) error
}

// Stores is the set of repositories bound to one unit of work.
type Stores interface {
	Cards() CardRepository
	Registry() RegistryRepository
	Events() EventRepository
	Transfers() TransferService
}

// Transactor runs fn inside a single unit of work. fn returning an error
// discards every write made through s.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

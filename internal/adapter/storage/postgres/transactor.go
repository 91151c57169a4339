package postgres

import (
	"context"
	"fmt"
	"time"

	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// Transactor implements ports.Transactor on a pgx pool. Every unit of work
// runs in its own transaction with a bounded lock wait.
type Transactor struct {
	pool        Pool
	programID   domain.Identity
	lockTimeout time.Duration
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool, programID domain.Identity, lockTimeout time.Duration) *Transactor {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Transactor{pool: pool, programID: programID, lockTimeout: lockTimeout}
}

// RunInTx begins a transaction, runs fn and commits. Any error rolls back.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context, s ports.Stores) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// set_config with is_local=true behaves like SET LOCAL but takes a bind parameter.
	if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", lockTimeoutSetting(t.lockTimeout)); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err := fn(ctx, newTxStores(tx, t.programID)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func lockTimeoutSetting(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// txStores binds every repository to one pgx transaction.
type txStores struct {
	cards     *CardRepo
	registry  *RegistryRepo
	events    *EventRepo
	transfers *TokenLedger
}

func newTxStores(tx pgx.Tx, programID domain.Identity) *txStores {
	return &txStores{
		cards:     NewCardRepo(tx),
		registry:  NewRegistryRepo(tx),
		events:    NewEventRepo(tx),
		transfers: NewTokenLedger(tx, programID),
	}
}

func (s *txStores) Cards() ports.CardRepository       { return s.cards }
func (s *txStores) Registry() ports.RegistryRepository { return s.registry }
func (s *txStores) Events() ports.EventRepository      { return s.events }
func (s *txStores) Transfers() ports.TransferService   { return s.transfers }

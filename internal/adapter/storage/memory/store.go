// Package memory is an in-process implementation of the ledger stores. It
// keeps the same unit-of-work contract as the Postgres adapter: writes are
// staged per transaction and applied together on success, and records are
// locked per key for the life of the transaction.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"
)

const defaultLockTimeout = 5 * time.Second

type cardKey struct {
	owner domain.Identity
	id    string
}

type tokenAccount struct {
	authority domain.Identity
	balance   uint64
	frozen    bool
}

// Store holds committed ledger state.
type Store struct {
	mu       sync.RWMutex
	cards    map[cardKey]domain.Card
	registry *domain.Registry
	events   []domain.Event
	accounts map[domain.Identity]tokenAccount

	locks       *keyLocks
	programID   domain.Identity
	lockTimeout time.Duration
}

// NewStore creates an empty store. programID must match the engine's
// authority scheme so derived capabilities verify.
func NewStore(programID domain.Identity, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Store{
		cards:       make(map[cardKey]domain.Card),
		accounts:    make(map[domain.Identity]tokenAccount),
		locks:       newKeyLocks(),
		programID:   programID,
		lockTimeout: lockTimeout,
	}
}

// RunInTx implements ports.Transactor.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	t := newTx(s)
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, c := range t.cards {
		s.cards[k] = c
	}
	if t.registry != nil {
		reg := *t.registry
		s.registry = &reg
	}
	for id, acct := range t.accounts {
		s.accounts[id] = acct
	}
	for _, e := range t.events {
		e.Sequence = int64(len(s.events) + 1)
		s.events = append(s.events, *e)
	}
	for seq, at := range t.published {
		if seq < 1 || seq > int64(len(s.events)) {
			continue
		}
		published := at
		s.events[seq-1].PublishedAt = &published
	}
}

// Deposit credits account in its own unit of work.
func (s *Store) Deposit(account domain.Identity, amount uint64) error {
	return s.RunInTx(context.Background(), func(ctx context.Context, stores ports.Stores) error {
		return stores.Transfers().Deposit(ctx, account, amount)
	})
}

// SetFrozen freezes or thaws a token account.
func (s *Store) SetFrozen(account domain.Identity, frozen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[account]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acct.frozen = frozen
	s.accounts[account] = acct
	return nil
}

// tx is one unit of work. It implements ports.Stores.
type tx struct {
	s    *Store
	held []string
	have map[string]struct{}

	cards     map[cardKey]domain.Card
	registry  *domain.Registry
	accounts  map[domain.Identity]tokenAccount
	events    []*domain.Event
	published map[int64]time.Time
}

func newTx(s *Store) *tx {
	return &tx{
		s:         s,
		have:      make(map[string]struct{}),
		cards:     make(map[cardKey]domain.Card),
		accounts:  make(map[domain.Identity]tokenAccount),
		published: make(map[int64]time.Time),
	}
}

func (t *tx) Cards() ports.CardRepository        { return cardRepo{t} }
func (t *tx) Registry() ports.RegistryRepository { return registryRepo{t} }
func (t *tx) Events() ports.EventRepository      { return eventRepo{t} }
func (t *tx) Transfers() ports.TransferService   { return tokenLedger{t} }

// lock acquires key for the rest of the transaction. Re-locking a held key is
// a no-op.
func (t *tx) lock(ctx context.Context, key string) error {
	if _, ok := t.have[key]; ok {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key); err != nil {
		return fmt.Errorf("lock %s: %w", key, domain.ErrLockTimeout)
	}
	t.have[key] = struct{}{}
	t.held = append(t.held, key)
	return nil
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.release(t.held[i])
	}
	t.held = nil
}

// keyLocks is a set of context-aware mutexes created on first use.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]chan struct{})}
}

func (k *keyLocks) get(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

func (k *keyLocks) acquire(ctx context.Context, key string) error {
	select {
	case k.get(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keyLocks) release(key string) {
	<-k.get(key)
}

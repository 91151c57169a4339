package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"card-escrow-ledger/internal/core/authority"
	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"
)

const (
	registryLockKey = "registry"
	outboxLockKey   = "outbox"
	defaultPageSize = 100
)

func cardLockKey(k cardKey) string {
	return "card:" + k.owner.String() + ":" + k.id
}

func accountLockKey(id domain.Identity) string {
	return "account:" + id.String()
}

// ---- cards ----

type cardRepo struct{ t *tx }

func (r cardRepo) lookup(k cardKey) (domain.Card, bool) {
	if c, ok := r.t.cards[k]; ok {
		return c, true
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	c, ok := r.t.s.cards[k]
	return c, ok
}

func (r cardRepo) Get(_ context.Context, owner domain.Identity, cardID string) (*domain.Card, error) {
	c, ok := r.lookup(cardKey{owner, cardID})
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r cardRepo) GetForUpdate(ctx context.Context, owner domain.Identity, cardID string) (*domain.Card, error) {
	k := cardKey{owner, cardID}
	if err := r.t.lock(ctx, cardLockKey(k)); err != nil {
		return nil, err
	}
	return r.Get(ctx, owner, cardID)
}

func (r cardRepo) ListByOwner(_ context.Context, owner domain.Identity) ([]domain.Card, error) {
	merged := make(map[cardKey]domain.Card)
	r.t.s.mu.RLock()
	for k, c := range r.t.s.cards {
		if k.owner == owner {
			merged[k] = c
		}
	}
	r.t.s.mu.RUnlock()
	for k, c := range r.t.cards {
		if k.owner == owner {
			merged[k] = c
		}
	}

	cards := make([]domain.Card, 0, len(merged))
	for _, c := range merged {
		cards = append(cards, c)
	}
	sort.Slice(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		}
		return cards[i].ID < cards[j].ID
	})
	return cards, nil
}

func (r cardRepo) IsCardAccount(_ context.Context, id domain.Identity) (bool, error) {
	for _, c := range r.t.cards {
		if c.Address == id || c.EscrowAccount == id {
			return true, nil
		}
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	for _, c := range r.t.s.cards {
		if c.Address == id || c.EscrowAccount == id {
			return true, nil
		}
	}
	return false, nil
}

func (r cardRepo) Create(ctx context.Context, card *domain.Card) error {
	k := cardKey{card.Owner, card.ID}
	if err := r.t.lock(ctx, cardLockKey(k)); err != nil {
		return err
	}
	if _, exists := r.lookup(k); exists {
		return domain.ErrAlreadyExists
	}
	card.Version = 1
	r.t.cards[k] = *card
	return nil
}

func (r cardRepo) Update(ctx context.Context, card *domain.Card) error {
	k := cardKey{card.Owner, card.ID}
	if err := r.t.lock(ctx, cardLockKey(k)); err != nil {
		return err
	}
	current, ok := r.lookup(k)
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != card.Version {
		return domain.ErrConflict
	}
	card.Version++
	r.t.cards[k] = *card
	return nil
}

// ---- registry ----

type registryRepo struct{ t *tx }

func (r registryRepo) Get(_ context.Context) (*domain.Registry, error) {
	if r.t.registry != nil {
		reg := *r.t.registry
		return &reg, nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	if r.t.s.registry == nil {
		return nil, domain.ErrNotInitialized
	}
	reg := *r.t.s.registry
	return &reg, nil
}

func (r registryRepo) GetForUpdate(ctx context.Context) (*domain.Registry, error) {
	if err := r.t.lock(ctx, registryLockKey); err != nil {
		return nil, err
	}
	return r.Get(ctx)
}

func (r registryRepo) Create(ctx context.Context, registry *domain.Registry) error {
	if err := r.t.lock(ctx, registryLockKey); err != nil {
		return err
	}
	if _, err := r.Get(ctx); err == nil {
		return domain.ErrAlreadyInitialized
	}
	reg := *registry
	r.t.registry = &reg
	return nil
}

func (r registryRepo) Update(ctx context.Context, registry *domain.Registry) error {
	if err := r.t.lock(ctx, registryLockKey); err != nil {
		return err
	}
	if _, err := r.Get(ctx); err != nil {
		return err
	}
	reg := *registry
	r.t.registry = &reg
	return nil
}

// ---- events ----

type eventRepo struct{ t *tx }

// Append stages the event; its Sequence is assigned on commit.
func (r eventRepo) Append(_ context.Context, event *domain.Event) error {
	r.t.events = append(r.t.events, event)
	return nil
}

func (r eventRepo) List(_ context.Context, params ports.EventListParams) ([]domain.Event, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()

	out := make([]domain.Event, 0, limit)
	for _, e := range r.t.s.events {
		if e.Sequence <= params.AfterSequence {
			continue
		}
		if params.CardAddress != nil && e.CardAddress != *params.CardAddress {
			continue
		}
		if params.Owner != nil && e.Owner != *params.Owner {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r eventRepo) ClaimUnpublished(ctx context.Context, limit int) ([]domain.Event, error) {
	if err := r.t.lock(ctx, outboxLockKey); err != nil {
		return nil, err
	}

	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()

	var out []domain.Event
	for _, e := range r.t.s.events {
		if e.IsPublished() {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r eventRepo) MarkPublished(_ context.Context, sequences []int64, at time.Time) error {
	for _, seq := range sequences {
		r.t.published[seq] = at
	}
	return nil
}

// ---- token ledger ----

type tokenLedger struct{ t *tx }

func (l tokenLedger) lookup(id domain.Identity) (tokenAccount, bool) {
	if a, ok := l.t.accounts[id]; ok {
		return a, true
	}
	l.t.s.mu.RLock()
	defer l.t.s.mu.RUnlock()
	a, ok := l.t.s.accounts[id]
	return a, ok
}

func (l tokenLedger) OpenAccount(ctx context.Context, account, authority domain.Identity) error {
	if err := l.t.lock(ctx, accountLockKey(account)); err != nil {
		return err
	}
	if _, exists := l.lookup(account); exists {
		return domain.ErrAccountExists
	}
	l.t.accounts[account] = tokenAccount{authority: authority}
	return nil
}

func (l tokenLedger) Transfer(ctx context.Context, from, to domain.Identity, amount uint64, capability authority.Capability) error {
	if from == to {
		return domain.ErrSameAccount
	}

	// Lock both accounts in a fixed order.
	first, second := from, to
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}
	if err := l.t.lock(ctx, accountLockKey(first)); err != nil {
		return err
	}
	if err := l.t.lock(ctx, accountLockKey(second)); err != nil {
		return err
	}

	src, ok := l.lookup(from)
	if !ok {
		return domain.ErrAccountNotFound
	}
	dst, ok := l.lookup(to)
	if !ok {
		dst = tokenAccount{authority: to}
	}
	if src.frozen || dst.frozen {
		return domain.ErrAccountFrozen
	}
	if err := capability.Authorizes(l.t.s.programID, src.authority); err != nil {
		return err
	}
	if src.balance < amount {
		return domain.ErrInsufficientFunds
	}
	if amount > domain.MaxAmount-dst.balance {
		return domain.ErrInvalidAmount
	}

	src.balance -= amount
	dst.balance += amount
	l.t.accounts[from] = src
	l.t.accounts[to] = dst
	return nil
}

func (l tokenLedger) Balance(_ context.Context, account domain.Identity) (uint64, error) {
	a, ok := l.lookup(account)
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	return a.balance, nil
}

func (l tokenLedger) Deposit(ctx context.Context, account domain.Identity, amount uint64) error {
	if amount == 0 || amount > domain.MaxAmount {
		return domain.ErrInvalidAmount
	}
	if err := l.t.lock(ctx, accountLockKey(account)); err != nil {
		return err
	}
	acct, ok := l.lookup(account)
	if !ok {
		acct = tokenAccount{authority: account}
	}
	if acct.frozen {
		return domain.ErrAccountFrozen
	}
	if amount > domain.MaxAmount-acct.balance {
		return domain.ErrInvalidAmount
	}
	acct.balance += amount
	l.t.accounts[account] = acct
	return nil
}

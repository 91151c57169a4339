package postgres

import (
	"context"
	"errors"
	"fmt"

	"card-escrow-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const cardColumns = `address, escrow_account, bump, card_id, owner, balance, balance_limit,
		is_active, metadata, version, created_at, updated_at`

// CardRepo implements ports.CardRepository.
type CardRepo struct {
	q Querier
}

// NewCardRepo creates a new CardRepo.
func NewCardRepo(q Querier) *CardRepo {
	return &CardRepo{q: q}
}

// Create inserts a new card. A taken (owner, card_id) maps to ErrAlreadyExists.
func (r *CardRepo) Create(ctx context.Context, c *domain.Card) error {
	query := `INSERT INTO cards (` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	if c.Version == 0 {
		c.Version = 1
	}
	_, err := r.q.Exec(ctx, query,
		idArg(c.Address), idArg(c.EscrowAccount), int16(c.Bump), c.ID, idArg(c.Owner),
		int64(c.Balance), int64(c.BalanceLimit), c.IsActive, c.Metadata,
		c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert card %q: %w", c.ID, domain.ErrAlreadyExists)
		}
		return translateLockError(err, "insert card")
	}
	return nil
}

// Get fetches a card without locking.
func (r *CardRepo) Get(ctx context.Context, owner domain.Identity, cardID string) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE owner = $1 AND card_id = $2`
	return r.getOne(ctx, query, owner, cardID)
}

// GetForUpdate fetches a card with a row lock held until the transaction ends.
func (r *CardRepo) GetForUpdate(ctx context.Context, owner domain.Identity, cardID string) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE owner = $1 AND card_id = $2 FOR UPDATE`
	return r.getOne(ctx, query, owner, cardID)
}

func (r *CardRepo) getOne(ctx context.Context, query string, owner domain.Identity, cardID string) (*domain.Card, error) {
	c, err := scanCard(r.q.QueryRow(ctx, query, idArg(owner), cardID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("card %q: %w", cardID, domain.ErrNotFound)
		}
		return nil, translateLockError(err, "get card")
	}
	return c, nil
}

// ListByOwner returns every card of owner ordered by creation.
func (r *CardRepo) ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE owner = $1 ORDER BY created_at, card_id`

	rows, err := r.q.Query(ctx, query, idArg(owner))
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card row: %w", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card rows: %w", err)
	}
	return cards, nil
}

// IsCardAccount reports whether id is any card's address or escrow account.
func (r *CardRepo) IsCardAccount(ctx context.Context, id domain.Identity) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM cards WHERE address = $1 OR escrow_account = $1)`

	var exists bool
	if err := r.q.QueryRow(ctx, query, idArg(id)).Scan(&exists); err != nil {
		return false, translateLockError(err, "check card account")
	}
	return exists, nil
}

// Update writes the mutable card fields if the stored version still matches,
// then bumps the in-memory version.
func (r *CardRepo) Update(ctx context.Context, c *domain.Card) error {
	query := `UPDATE cards SET balance = $1, is_active = $2, updated_at = $3, version = version + 1
		WHERE owner = $4 AND card_id = $5 AND version = $6`

	tag, err := r.q.Exec(ctx, query,
		int64(c.Balance), c.IsActive, c.UpdatedAt, idArg(c.Owner), c.ID, c.Version,
	)
	if err != nil {
		return translateLockError(err, "update card")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update card %q at version %d: %w", c.ID, c.Version, domain.ErrConflict)
	}
	c.Version++
	return nil
}

func scanCard(row pgx.Row) (*domain.Card, error) {
	var (
		c                     domain.Card
		address, escrow, own  []byte
		bump                  int16
		balance, balanceLimit int64
	)
	err := row.Scan(
		&address, &escrow, &bump, &c.ID, &own, &balance, &balanceLimit,
		&c.IsActive, &c.Metadata, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := scanIdentity(address, &c.Address); err != nil {
		return nil, fmt.Errorf("card address: %w", err)
	}
	if err := scanIdentity(escrow, &c.EscrowAccount); err != nil {
		return nil, fmt.Errorf("card escrow account: %w", err)
	}
	if err := scanIdentity(own, &c.Owner); err != nil {
		return nil, fmt.Errorf("card owner: %w", err)
	}
	c.Bump = uint8(bump)
	c.Balance = uint64(balance)
	c.BalanceLimit = uint64(balanceLimit)
	return &c, nil
}

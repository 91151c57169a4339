package postgres

import (
	"context"
	"errors"
	"fmt"

	"card-escrow-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// RegistryRepo implements ports.RegistryRepository over the single-row
// registry table.
type RegistryRepo struct {
	q Querier
}

// NewRegistryRepo creates a new RegistryRepo.
func NewRegistryRepo(q Querier) *RegistryRepo {
	return &RegistryRepo{q: q}
}

// Create inserts the registry row. A second call maps to ErrAlreadyInitialized.
func (r *RegistryRepo) Create(ctx context.Context, reg *domain.Registry) error {
	query := `INSERT INTO registry (id, authority, total_cards, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.q.Exec(ctx, query,
		domain.RegistryID, idArg(reg.Authority), int64(reg.TotalCards), reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyInitialized
		}
		return translateLockError(err, "insert registry")
	}
	return nil
}

// Get fetches the registry without locking.
func (r *RegistryRepo) Get(ctx context.Context) (*domain.Registry, error) {
	query := `SELECT authority, total_cards, created_at, updated_at FROM registry WHERE id = $1`
	return r.getOne(ctx, query)
}

// GetForUpdate locks the registry row, serializing card creation.
func (r *RegistryRepo) GetForUpdate(ctx context.Context) (*domain.Registry, error) {
	query := `SELECT authority, total_cards, created_at, updated_at FROM registry WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query)
}

func (r *RegistryRepo) getOne(ctx context.Context, query string) (*domain.Registry, error) {
	var (
		reg       domain.Registry
		authority []byte
		total     int64
	)
	err := r.q.QueryRow(ctx, query, domain.RegistryID).Scan(&authority, &total, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotInitialized
		}
		return nil, translateLockError(err, "get registry")
	}
	if err := scanIdentity(authority, &reg.Authority); err != nil {
		return nil, fmt.Errorf("registry authority: %w", err)
	}
	reg.TotalCards = uint64(total)
	return &reg, nil
}

// Update persists the card counter.
func (r *RegistryRepo) Update(ctx context.Context, reg *domain.Registry) error {
	query := `UPDATE registry SET total_cards = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.q.Exec(ctx, query, int64(reg.TotalCards), reg.UpdatedAt, domain.RegistryID)
	if err != nil {
		return translateLockError(err, "update registry")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotInitialized
	}
	return nil
}

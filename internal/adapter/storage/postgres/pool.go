package postgres

import (
	"context"
	"errors"
	"fmt"

	"card-escrow-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the statement surface shared by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool abstracts pgxpool.Pool so repositories can be tested with pgxmock.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgreSQL error codes the adapter translates.
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

// translateLockError maps lock_timeout expiry to domain.ErrLockTimeout.
func translateLockError(err error, what string) error {
	if pgCode(err) == pgLockNotAvailable {
		return fmt.Errorf("%s: %w", what, domain.ErrLockTimeout)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func idArg(id domain.Identity) []byte {
	return id.Bytes()
}

func scanIdentity(raw []byte, dst *domain.Identity) error {
	id, err := domain.IdentityFromBytes(raw)
	if err != nil {
		return err
	}
	*dst = id
	return nil
}

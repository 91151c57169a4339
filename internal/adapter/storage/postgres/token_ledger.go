package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"card-escrow-ledger/internal/core/authority"
	"card-escrow-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// TokenLedger implements ports.TransferService on the token_accounts table.
// Every transfer is journaled in token_transfers.
type TokenLedger struct {
	q         Querier
	programID domain.Identity
}

// NewTokenLedger creates a TokenLedger that honours derived capabilities
// minted for programID.
func NewTokenLedger(q Querier, programID domain.Identity) *TokenLedger {
	return &TokenLedger{q: q, programID: programID}
}

type tokenAccount struct {
	authority domain.Identity
	balance   uint64
	frozen    bool
}

// OpenAccount creates an empty account controlled by auth.
func (l *TokenLedger) OpenAccount(ctx context.Context, account, auth domain.Identity) error {
	query := `INSERT INTO token_accounts (account, authority) VALUES ($1, $2)`

	if _, err := l.q.Exec(ctx, query, idArg(account), idArg(auth)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("open account %s: %w", account, domain.ErrAccountExists)
		}
		return translateLockError(err, "open token account")
	}
	return nil
}

// Balance reads the balance of account.
func (l *TokenLedger) Balance(ctx context.Context, account domain.Identity) (uint64, error) {
	var balance int64
	err := l.q.QueryRow(ctx, `SELECT balance FROM token_accounts WHERE account = $1`, idArg(account)).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("account %s: %w", account, domain.ErrAccountNotFound)
		}
		return 0, translateLockError(err, "get token balance")
	}
	return uint64(balance), nil
}

// Transfer moves amount from one account to another under capability.
// Both rows are locked in byte order so opposing transfers cannot deadlock.
func (l *TokenLedger) Transfer(ctx context.Context, from, to domain.Identity, amount uint64, capability authority.Capability) error {
	if from == to {
		return domain.ErrSameAccount
	}
	if amount > domain.MaxAmount {
		return domain.ErrInvalidAmount
	}

	keys := []domain.Identity{from, to}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	accounts := make(map[domain.Identity]*tokenAccount, 2)
	for _, key := range keys {
		acc, err := l.lockAccount(ctx, key)
		if err != nil {
			return err
		}
		accounts[key] = acc
	}

	src := accounts[from]
	if src == nil {
		return fmt.Errorf("source %s: %w", from, domain.ErrAccountNotFound)
	}
	dst := accounts[to]
	if dst == nil {
		if err := l.OpenAccount(ctx, to, to); err != nil {
			return err
		}
		dst = &tokenAccount{authority: to}
	}

	if src.frozen || dst.frozen {
		return domain.ErrAccountFrozen
	}
	if err := capability.Authorizes(l.programID, src.authority); err != nil {
		return fmt.Errorf("%s cannot move funds of %s: %w", capability, from, err)
	}
	if src.balance < amount {
		return domain.ErrInsufficientFunds
	}
	if dst.balance > domain.MaxAmount-amount {
		return domain.ErrInvalidAmount
	}

	if err := l.adjust(ctx, from, -int64(amount)); err != nil {
		return err
	}
	if err := l.adjust(ctx, to, int64(amount)); err != nil {
		return err
	}

	journal := `INSERT INTO token_transfers (from_account, to_account, amount, authority_kind) VALUES ($1, $2, $3, $4)`
	if _, err := l.q.Exec(ctx, journal, idArg(from), idArg(to), int64(amount), capability.Kind().String()); err != nil {
		return translateLockError(err, "journal transfer")
	}
	return nil
}

// lockAccount returns nil, nil for a missing account.
func (l *TokenLedger) lockAccount(ctx context.Context, account domain.Identity) (*tokenAccount, error) {
	query := `SELECT authority, balance, frozen FROM token_accounts WHERE account = $1 FOR UPDATE`

	var (
		auth    []byte
		balance int64
		acc     tokenAccount
	)
	err := l.q.QueryRow(ctx, query, idArg(account)).Scan(&auth, &balance, &acc.frozen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translateLockError(err, "lock token account")
	}
	if err := scanIdentity(auth, &acc.authority); err != nil {
		return nil, fmt.Errorf("token account authority: %w", err)
	}
	acc.balance = uint64(balance)
	return &acc, nil
}

func (l *TokenLedger) adjust(ctx context.Context, account domain.Identity, delta int64) error {
	query := `UPDATE token_accounts SET balance = balance + $1, updated_at = NOW() WHERE account = $2`

	tag, err := l.q.Exec(ctx, query, delta, idArg(account))
	if err != nil {
		return translateLockError(err, "update token balance")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", account, domain.ErrAccountNotFound)
	}
	return nil
}

// Deposit credits account from outside the ledger, opening it for itself if
// needed. It is the funding entry point for owner accounts. Frozen accounts
// refuse deposits as they refuse transfers in.
func (l *TokenLedger) Deposit(ctx context.Context, account domain.Identity, amount uint64) error {
	if amount == 0 || amount > domain.MaxAmount {
		return domain.ErrInvalidAmount
	}
	query := `INSERT INTO token_accounts (account, authority, balance) VALUES ($1, $1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = token_accounts.balance + EXCLUDED.balance, updated_at = NOW()
		WHERE NOT token_accounts.frozen`

	tag, err := l.q.Exec(ctx, query, idArg(account), int64(amount))
	if err != nil {
		return translateLockError(err, "deposit")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deposit to %s: %w", account, domain.ErrAccountFrozen)
	}
	return nil
}

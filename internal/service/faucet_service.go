package service

import (
	"context"
	"time"

	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"
	"card-escrow-ledger/pkg/apperror"
	"card-escrow-ledger/pkg/metrics"

	"github.com/rs/zerolog"
)

const opFaucet = "faucet"

// FaucetServiceImpl implements ports.FaucetService for development
// deployments. It mints funds into a caller's token account so wallets can
// top up cards without an external funding source.
type FaucetServiceImpl struct {
	transactor ports.Transactor
	metrics    *metrics.Metrics
	maxAmount  uint64
	log        zerolog.Logger
}

// NewFaucetService creates a faucet capped at maxAmount per request.
func NewFaucetService(transactor ports.Transactor, m *metrics.Metrics, maxAmount uint64, log zerolog.Logger) *FaucetServiceImpl {
	return &FaucetServiceImpl{
		transactor: transactor,
		metrics:    m,
		maxAmount:  maxAmount,
		log:        log,
	}
}

// Fund credits amount to account and returns the new balance.
func (s *FaucetServiceImpl) Fund(ctx context.Context, account domain.Identity, amount uint64) (uint64, error) {
	if account.IsZero() {
		return 0, apperror.ErrInvalidIdentity("account")
	}
	if amount == 0 || amount > s.maxAmount {
		return 0, apperror.ErrInvalidAmount().WithCause(domain.ErrInvalidAmount)
	}

	var balance uint64
	start := time.Now()
	err := s.transactor.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		if err := st.Transfers().Deposit(ctx, account, amount); err != nil {
			return err
		}
		var err error
		balance, err = st.Transfers().Balance(ctx, account)
		return err
	})
	s.metrics.ObserveOperation(opFaucet, err, time.Since(start))
	if err != nil {
		return 0, mapError(err)
	}

	s.log.Info().
		Str("account", account.String()).
		Uint64("amount", amount).
		Uint64("balance", balance).
		Msg("faucet funded account")
	return balance, nil
}

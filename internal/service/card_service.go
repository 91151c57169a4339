package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card-escrow-ledger/internal/core/authority"
	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"
	"card-escrow-ledger/pkg/apperror"
	"card-escrow-ledger/pkg/metrics"

	"github.com/rs/zerolog"
)

// Operation names used for metrics and logs.
const (
	opInitialize     = "initialize"
	opCreateCard     = "create_card"
	opTopUp          = "top_up_card"
	opProcessPayment = "process_payment"
	opDeactivate     = "deactivate_card"
	opWithdraw       = "withdraw_balance"
)

const (
	defaultEventPageSize = 100
	maxEventPageSize     = 500
)

// CardServiceConfig holds engine policy switches.
type CardServiceConfig struct {
	// AllowZeroAmount turns zero-amount top-ups and payments into no-op
	// successes. When false they fail with VAL_004.
	AllowZeroAmount bool
}

// CardServiceImpl implements ports.CardService. Every operation runs in one
// unit of work: the card row is locked, preconditions are checked, at most
// one transfer is made, and the card update and event are written together.
type CardServiceImpl struct {
	transactor ports.Transactor
	scheme     *authority.Scheme
	metrics    *metrics.Metrics
	cfg        CardServiceConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewCardService creates a new CardServiceImpl.
func NewCardService(
	transactor ports.Transactor,
	scheme *authority.Scheme,
	m *metrics.Metrics,
	cfg CardServiceConfig,
	log zerolog.Logger,
) *CardServiceImpl {
	return &CardServiceImpl{
		transactor: transactor,
		scheme:     scheme,
		metrics:    m,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Initialize creates the registry singleton.
func (s *CardServiceImpl) Initialize(ctx context.Context, req ports.InitializeRequest) (*domain.Registry, error) {
	if req.Authority.IsZero() {
		return nil, apperror.ErrInvalidIdentity("authority")
	}

	var registry *domain.Registry
	err := s.run(ctx, opInitialize, func(ctx context.Context, st ports.Stores) error {
		registry = domain.NewRegistry(req.Authority, s.now())
		return st.Registry().Create(ctx, registry)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SetTotalCards(registry.TotalCards)
	s.log.Info().
		Str("authority", registry.Authority.String()).
		Msg("registry initialized")
	return registry, nil
}

// CreateCard allocates a card, its escrow account and bumps the registry.
func (s *CardServiceImpl) CreateCard(ctx context.Context, req ports.CreateCardRequest) (*ports.Receipt, error) {
	now := s.now()
	card, err := domain.NewCard(req.Owner, req.CardID, req.BalanceLimit, req.Metadata, now)
	if err != nil {
		return nil, mapError(err)
	}

	card.Address, card.Bump, err = s.scheme.DeriveCard(card.Owner, card.ID)
	if err != nil {
		return nil, mapError(fmt.Errorf("derive card address: %w", err))
	}
	card.EscrowAccount, err = s.scheme.DeriveEscrow(card.Address)
	if err != nil {
		return nil, mapError(fmt.Errorf("derive escrow account: %w", err))
	}

	var (
		event    *domain.Event
		registry *domain.Registry
	)
	err = s.run(ctx, opCreateCard, func(ctx context.Context, st ports.Stores) error {
		var err error
		registry, err = st.Registry().GetForUpdate(ctx)
		if err != nil {
			return err
		}
		if err := st.Cards().Create(ctx, card); err != nil {
			return err
		}
		if err := st.Transfers().OpenAccount(ctx, card.EscrowAccount, card.Address); err != nil {
			return fmt.Errorf("open escrow account: %w", err)
		}

		registry.RecordCardCreated(now)
		if err := st.Registry().Update(ctx, registry); err != nil {
			return err
		}

		event, err = s.appendEvent(ctx, st, card, domain.CardCreated{
			CardAddress:  card.Address,
			Owner:        card.Owner,
			CardID:       card.ID,
			BalanceLimit: card.BalanceLimit,
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SetTotalCards(registry.TotalCards)
	s.log.Info().
		Str("card_address", card.Address.String()).
		Str("owner", card.Owner.String()).
		Str("card_id", card.ID).
		Uint64("balance_limit", card.BalanceLimit).
		Msg("card created")
	return &ports.Receipt{Card: card, Event: event}, nil
}

// TopUp moves funds from the owner's token account into the card's escrow,
// authorized by the owner.
func (s *CardServiceImpl) TopUp(ctx context.Context, req ports.TopUpRequest) (*ports.Receipt, error) {
	if err := s.checkAmount(req.Amount); err != nil {
		return nil, err
	}

	var receipt *ports.Receipt
	err := s.run(ctx, opTopUp, func(ctx context.Context, st ports.Stores) error {
		card, err := loadOwnedCard(ctx, st, req.CardRef)
		if err != nil {
			return err
		}
		if err := card.TopUp(req.Amount); err != nil {
			return err
		}

		now := s.now()
		if req.Amount > 0 {
			if err := st.Transfers().Transfer(ctx, card.Owner, card.EscrowAccount, req.Amount, authority.Signer(req.Caller)); err != nil {
				return err
			}
			card.UpdatedAt = now
			if err := st.Cards().Update(ctx, card); err != nil {
				return err
			}
		}

		event, err := s.appendEvent(ctx, st, card, domain.CardToppedUp{
			CardAddress: card.Address,
			Amount:      req.Amount,
			NewBalance:  card.Balance,
		}, now)
		if err != nil {
			return err
		}
		receipt = &ports.Receipt{Card: card, Event: event}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("card_address", receipt.Card.Address.String()).
		Uint64("amount", req.Amount).
		Uint64("balance", receipt.Card.Balance).
		Msg("card topped up")
	return receipt, nil
}

// ProcessPayment pays a merchant out of the card's escrow using the card's
// derived authority.
func (s *CardServiceImpl) ProcessPayment(ctx context.Context, req ports.PaymentRequest) (*ports.Receipt, error) {
	if err := s.checkAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Merchant.IsZero() {
		return nil, apperror.ErrInvalidIdentity("merchant")
	}

	var receipt *ports.Receipt
	err := s.run(ctx, opProcessPayment, func(ctx context.Context, st ports.Stores) error {
		card, err := loadOwnedCard(ctx, st, req.CardRef)
		if err != nil {
			return err
		}
		// Escrow balances must stay attributed to their cards.
		internal, err := st.Cards().IsCardAccount(ctx, req.Merchant)
		if err != nil {
			return err
		}
		if internal {
			return domain.ErrCardAccountDestination
		}
		if err := card.Pay(req.Amount, req.MerchantReference); err != nil {
			return err
		}

		now := s.now()
		if req.Amount > 0 {
			if err := st.Transfers().Transfer(ctx, card.EscrowAccount, req.Merchant, req.Amount, s.scheme.CardCapability(card)); err != nil {
				return err
			}
			card.UpdatedAt = now
			if err := st.Cards().Update(ctx, card); err != nil {
				return err
			}
		}

		event, err := s.appendEvent(ctx, st, card, domain.PaymentProcessed{
			CardAddress:       card.Address,
			Merchant:          req.Merchant,
			Amount:            req.Amount,
			MerchantReference: req.MerchantReference,
			RemainingBalance:  card.Balance,
			Timestamp:         now.Unix(),
		}, now)
		if err != nil {
			return err
		}
		receipt = &ports.Receipt{Card: card, Event: event}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("card_address", receipt.Card.Address.String()).
		Str("merchant", req.Merchant.String()).
		Uint64("amount", req.Amount).
		Str("merchant_reference", req.MerchantReference).
		Uint64("remaining_balance", receipt.Card.Balance).
		Msg("payment processed")
	return receipt, nil
}

// Deactivate turns the card off. Deactivating an inactive card succeeds and
// emits another event.
func (s *CardServiceImpl) Deactivate(ctx context.Context, ref ports.CardRef) (*ports.Receipt, error) {
	var receipt *ports.Receipt
	err := s.run(ctx, opDeactivate, func(ctx context.Context, st ports.Stores) error {
		card, err := loadOwnedCard(ctx, st, ref)
		if err != nil {
			return err
		}

		now := s.now()
		if card.IsActive {
			card.Deactivate()
			card.UpdatedAt = now
			if err := st.Cards().Update(ctx, card); err != nil {
				return err
			}
		}

		event, err := s.appendEvent(ctx, st, card, domain.CardDeactivated{
			CardAddress: card.Address,
			Timestamp:   now.Unix(),
		}, now)
		if err != nil {
			return err
		}
		receipt = &ports.Receipt{Card: card, Event: event}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("card_address", receipt.Card.Address.String()).
		Uint64("balance", receipt.Card.Balance).
		Msg("card deactivated")
	return receipt, nil
}

// Withdraw returns the full escrow balance of an inactive card to its owner.
func (s *CardServiceImpl) Withdraw(ctx context.Context, ref ports.CardRef) (*ports.Receipt, error) {
	var (
		receipt *ports.Receipt
		amount  uint64
	)
	err := s.run(ctx, opWithdraw, func(ctx context.Context, st ports.Stores) error {
		card, err := loadOwnedCard(ctx, st, ref)
		if err != nil {
			return err
		}
		amount, err = card.Withdraw()
		if err != nil {
			return err
		}

		if err := st.Transfers().Transfer(ctx, card.EscrowAccount, card.Owner, amount, s.scheme.CardCapability(card)); err != nil {
			return err
		}
		now := s.now()
		card.UpdatedAt = now
		if err := st.Cards().Update(ctx, card); err != nil {
			return err
		}

		event, err := s.appendEvent(ctx, st, card, domain.BalanceWithdrawn{
			CardAddress: card.Address,
			Amount:      amount,
			Timestamp:   now.Unix(),
		}, now)
		if err != nil {
			return err
		}
		receipt = &ports.Receipt{Card: card, Event: event}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("card_address", receipt.Card.Address.String()).
		Str("owner", receipt.Card.Owner.String()).
		Uint64("amount", amount).
		Msg("balance withdrawn")
	return receipt, nil
}

// GetCard reads one card.
func (s *CardServiceImpl) GetCard(ctx context.Context, owner domain.Identity, cardID string) (*domain.Card, error) {
	var card *domain.Card
	err := s.transactor.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		var err error
		card, err = st.Cards().Get(ctx, owner, cardID)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return card, nil
}

// ListCards returns every card of owner, oldest first.
func (s *CardServiceImpl) ListCards(ctx context.Context, owner domain.Identity) ([]domain.Card, error) {
	var cards []domain.Card
	err := s.transactor.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		var err error
		cards, err = st.Cards().ListByOwner(ctx, owner)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return cards, nil
}

// GetRegistry reads the registry singleton.
func (s *CardServiceImpl) GetRegistry(ctx context.Context) (*domain.Registry, error) {
	var registry *domain.Registry
	err := s.transactor.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		var err error
		registry, err = st.Registry().Get(ctx)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return registry, nil
}

// ListEvents pages through the event log in sequence order.
func (s *CardServiceImpl) ListEvents(ctx context.Context, params ports.EventListParams) ([]domain.Event, error) {
	switch {
	case params.Limit <= 0:
		params.Limit = defaultEventPageSize
	case params.Limit > maxEventPageSize:
		params.Limit = maxEventPageSize
	}
	if params.AfterSequence < 0 {
		params.AfterSequence = 0
	}

	var events []domain.Event
	err := s.transactor.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		var err error
		events, err = st.Events().List(ctx, params)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return events, nil
}

// run executes fn in a unit of work and records metrics. The returned error is
// always an *apperror.AppError.
func (s *CardServiceImpl) run(ctx context.Context, op string, fn func(ctx context.Context, st ports.Stores) error) error {
	start := time.Now()
	err := s.transactor.RunInTx(ctx, fn)
	s.metrics.ObserveOperation(op, err, time.Since(start))
	if err == nil {
		return nil
	}

	appErr := mapError(err)
	if appErr.HTTPStatus >= 500 {
		s.log.Error().Err(err).Str("operation", op).Msg("ledger operation failed")
	}
	return appErr
}

func (s *CardServiceImpl) checkAmount(amount uint64) error {
	if amount == 0 && !s.cfg.AllowZeroAmount {
		return apperror.ErrInvalidAmount().WithCause(domain.ErrInvalidAmount)
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *CardServiceImpl) appendEvent(ctx context.Context, st ports.Stores, card *domain.Card, payload domain.EventPayload, at time.Time) (*domain.Event, error) {
	event, err := domain.NewEvent(card, payload, at)
	if err != nil {
		return nil, err
	}
	if err := st.Events().Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append %s event: %w", event.Type, err)
	}
	return event, nil
}

// loadOwnedCard locks the referenced card and checks the caller owns it.
func loadOwnedCard(ctx context.Context, st ports.Stores, ref ports.CardRef) (*domain.Card, error) {
	if err := domain.ValidateCardID(ref.CardID); err != nil {
		return nil, err
	}
	card, err := st.Cards().GetForUpdate(ctx, ref.Owner, ref.CardID)
	if err != nil {
		return nil, err
	}
	if !card.IsOwnedBy(ref.Caller) {
		return nil, domain.ErrNotCardOwner
	}
	return card, nil
}

var domainErrors = []struct {
	sentinel error
	build    func() *apperror.AppError
}{
	{domain.ErrCardIDEmpty, func() *apperror.AppError { return apperror.Validation("Card id is empty") }},
	{domain.ErrCardIDTooLong, apperror.ErrCardIDTooLong},
	{domain.ErrMetadataTooLong, apperror.ErrMetadataTooLong},
	{domain.ErrMerchantReferenceTooLong, apperror.ErrMerchantReferenceTooLong},
	{domain.ErrInvalidAmount, apperror.ErrInvalidAmount},
	{domain.ErrCardAccountDestination, apperror.ErrInvalidMerchant},
	{domain.ErrCardInactive, apperror.ErrCardInactive},
	{domain.ErrCardStillActive, apperror.ErrCardStillActive},
	{domain.ErrBalanceLimitExceeded, apperror.ErrBalanceLimitExceeded},
	{domain.ErrInsufficientBalance, apperror.ErrInsufficientBalance},
	{domain.ErrNoBalanceToWithdraw, apperror.ErrNoBalanceToWithdraw},
	{domain.ErrAlreadyInitialized, apperror.ErrAlreadyInitialized},
	{domain.ErrNotInitialized, apperror.ErrRegistryNotInitialized},
	{domain.ErrNotCardOwner, apperror.ErrNotCardOwner},
	{domain.ErrNotFound, apperror.ErrCardNotFound},
	{domain.ErrAlreadyExists, apperror.ErrDuplicateCard},
	{domain.ErrInsufficientFunds, apperror.ErrTransferInsufficientFunds},
	{domain.ErrAccountFrozen, apperror.ErrAccountFrozen},
	{domain.ErrAuthorityMismatch, apperror.ErrAuthorityMismatch},
	{domain.ErrAccountNotFound, apperror.ErrAccountNotFound},
	{domain.ErrSameAccount, apperror.ErrSameAccount},
	{domain.ErrAccountExists, apperror.ErrAccountExists},
}

// mapError converts domain and store errors into AppErrors, keeping the
// original error as the cause.
func mapError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, de := range domainErrors {
		if errors.Is(err, de.sentinel) {
			return de.build().WithCause(err)
		}
	}
	switch {
	case errors.Is(err, domain.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperror.ErrLockTimeout(err)
	case errors.Is(err, domain.ErrConflict):
		return apperror.ErrConcurrentUpdate(err)
	default:
		return apperror.InternalError(err)
	}
}

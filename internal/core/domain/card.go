package domain

import (
	"math"
	"time"
)

// Wire-contract size limits, in bytes.
const (
	MaxCardIDLen            = 32
	MaxMetadataLen          = 256
	MaxMerchantReferenceLen = 64
)

// MaxAmount bounds every amount and limit so it fits a signed BIGINT column.
const MaxAmount uint64 = math.MaxInt64

// Card is a bounded-balance escrow record owned by a single identity.
type Card struct {
	Address       Identity  `json:"address"`        // derived card authority
	EscrowAccount Identity  `json:"escrow_account"` // token account holding the card's funds
	Bump          uint8     `json:"bump"`
	ID            string    `json:"id"`
	Owner         Identity  `json:"owner"`
	Balance       uint64    `json:"balance"`
	BalanceLimit  uint64    `json:"balance_limit"`
	IsActive      bool      `json:"is_active"`
	Metadata      string    `json:"metadata"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int64     `json:"-"`
}

// ValidateCardID checks the card id against the wire contract.
func ValidateCardID(id string) error {
	if id == "" {
		return ErrCardIDEmpty
	}
	if len(id) > MaxCardIDLen {
		return ErrCardIDTooLong
	}
	return nil
}

// ValidateMetadata checks the metadata length.
func ValidateMetadata(metadata string) error {
	if len(metadata) > MaxMetadataLen {
		return ErrMetadataTooLong
	}
	return nil
}

// ValidateMerchantReference checks the merchant reference length.
func ValidateMerchantReference(ref string) error {
	if len(ref) > MaxMerchantReferenceLen {
		return ErrMerchantReferenceTooLong
	}
	return nil
}

// ValidateAmount rejects amounts that cannot be stored. Zero is a policy
// decision left to the caller.
func ValidateAmount(amount uint64) error {
	if amount > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}

// NewCard builds an active, empty card. Address, escrow account and bump come
// from the derived authority scheme.
func NewCard(owner Identity, id string, balanceLimit uint64, metadata string, now time.Time) (*Card, error) {
	if err := ValidateCardID(id); err != nil {
		return nil, err
	}
	if err := ValidateMetadata(metadata); err != nil {
		return nil, err
	}
	if err := ValidateAmount(balanceLimit); err != nil {
		return nil, err
	}
	return &Card{
		ID:           id,
		Owner:        owner,
		Balance:      0,
		BalanceLimit: balanceLimit,
		IsActive:     true,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsOwnedBy reports whether caller controls the card.
func (c *Card) IsOwnedBy(caller Identity) bool {
	return c.Owner == caller
}

// IsTerminal returns true once the card is inactive and drained. The record
// stays in storage.
func (c *Card) IsTerminal() bool {
	return !c.IsActive && c.Balance == 0
}

// Headroom is how much more the card can hold.
func (c *Card) Headroom() uint64 {
	if c.Balance >= c.BalanceLimit {
		return 0
	}
	return c.BalanceLimit - c.Balance
}

// TopUp credits amount, enforcing activity and the balance limit.
// The limit check is written against Headroom so it cannot overflow.
func (c *Card) TopUp(amount uint64) error {
	if !c.IsActive {
		return ErrCardInactive
	}
	if amount > c.Headroom() {
		return ErrBalanceLimitExceeded
	}
	c.Balance += amount
	return nil
}

// Pay debits amount for a merchant payment.
func (c *Card) Pay(amount uint64, merchantReference string) error {
	if !c.IsActive {
		return ErrCardInactive
	}
	if c.Balance < amount {
		return ErrInsufficientBalance
	}
	if err := ValidateMerchantReference(merchantReference); err != nil {
		return err
	}
	c.Balance -= amount
	return nil
}

// Deactivate is idempotent; there is no way back to active.
func (c *Card) Deactivate() {
	c.IsActive = false
}

// Withdraw drains the card and returns the drained amount.
func (c *Card) Withdraw() (uint64, error) {
	if c.IsActive {
		return 0, ErrCardStillActive
	}
	if c.Balance == 0 {
		return 0, ErrNoBalanceToWithdraw
	}
	amount := c.Balance
	c.Balance = 0
	return amount, nil
}

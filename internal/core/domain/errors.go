package domain

import "errors"

// Validation.
var (
	ErrCardIDEmpty              = errors.New("card id is empty")
	ErrCardIDTooLong            = errors.New("card id is too long")
	ErrMetadataTooLong          = errors.New("metadata is too long")
	ErrMerchantReferenceTooLong = errors.New("merchant reference is too long")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrCardAccountDestination   = errors.New("destination is a card or escrow account")
)

// State preconditions.
var (
	ErrCardInactive         = errors.New("card is inactive")
	ErrCardStillActive      = errors.New("card is still active")
	ErrBalanceLimitExceeded = errors.New("balance limit exceeded")
	ErrInsufficientBalance  = errors.New("insufficient card balance")
	ErrNoBalanceToWithdraw  = errors.New("no balance to withdraw")
	ErrAlreadyInitialized   = errors.New("registry already initialized")
	ErrNotInitialized       = errors.New("registry not initialized")
)

// Authorization.
var ErrNotCardOwner = errors.New("caller is not the card owner")

// Record store contract.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrConflict      = errors.New("record version conflict")
	ErrLockTimeout   = errors.New("timed out waiting for record lock")
)

// Transfer service contract.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountFrozen     = errors.New("account frozen")
	ErrAuthorityMismatch = errors.New("authority mismatch")
	ErrAccountNotFound   = errors.New("token account not found")
	ErrAccountExists     = errors.New("token account already exists")
	ErrSameAccount       = errors.New("source and destination are the same account")
)

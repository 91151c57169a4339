package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithCause attaches the underlying error so errors.Is still sees it.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func ErrCardIDTooLong() *AppError {
	return New("VAL_001", "Card id exceeds 32 bytes", http.StatusBadRequest)
}

func ErrMetadataTooLong() *AppError {
	return New("VAL_002", "Metadata exceeds 256 bytes", http.StatusBadRequest)
}

func ErrMerchantReferenceTooLong() *AppError {
	return New("VAL_003", "Merchant reference exceeds 64 bytes", http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_004", "Invalid amount", http.StatusBadRequest)
}

func ErrInvalidIdentity(field string) *AppError {
	return New("VAL_005", fmt.Sprintf("%s is not a valid identity", field), http.StatusBadRequest)
}

func ErrInvalidMerchant() *AppError {
	return New("VAL_007", "Merchant cannot be a card or escrow account", http.StatusBadRequest)
}

// Validation returns a generic validation error.
func Validation(message string) *AppError {
	return New("VAL_006", message, http.StatusBadRequest)
}

// ---- Card state (CARD) ----

func ErrDuplicateCard() *AppError {
	return New("CARD_001", "Card already exists for this owner", http.StatusConflict)
}

func ErrCardNotFound() *AppError {
	return New("CARD_002", "Card not found", http.StatusNotFound)
}

func ErrCardInactive() *AppError {
	return New("CARD_003", "Card is inactive", http.StatusUnprocessableEntity)
}

func ErrCardStillActive() *AppError {
	return New("CARD_004", "Card is still active", http.StatusUnprocessableEntity)
}

func ErrBalanceLimitExceeded() *AppError {
	return New("CARD_005", "Balance limit exceeded", http.StatusUnprocessableEntity)
}

func ErrInsufficientBalance() *AppError {
	return New("CARD_006", "Insufficient card balance", http.StatusUnprocessableEntity)
}

func ErrNoBalanceToWithdraw() *AppError {
	return New("CARD_007", "No balance to withdraw", http.StatusUnprocessableEntity)
}

// ---- Registry (REG) ----

func ErrAlreadyInitialized() *AppError {
	return New("REG_001", "Registry already initialized", http.StatusConflict)
}

func ErrRegistryNotInitialized() *AppError {
	return New("REG_002", "Registry not initialized", http.StatusPreconditionFailed)
}

// ---- Authentication & Authorization (AUTH) ----

func ErrNotCardOwner() *AppError {
	return New("AUTH_001", "Caller is not the card owner", http.StatusForbidden)
}

func ErrInvalidSignature() *AppError {
	return New("AUTH_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("AUTH_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("AUTH_004", "Nonce has already been used", http.StatusForbidden)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_005", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrMissingCredentials() *AppError {
	return New("AUTH_006", "Missing authentication headers", http.StatusUnauthorized)
}

// ---- Transfer service (XFER) ----

func ErrTransferInsufficientFunds() *AppError {
	return New("XFER_001", "Insufficient funds in source account", http.StatusPaymentRequired)
}

func ErrAccountFrozen() *AppError {
	return New("XFER_002", "Token account is frozen", http.StatusLocked)
}

func ErrAuthorityMismatch() *AppError {
	return New("XFER_003", "Transfer authority mismatch", http.StatusForbidden)
}

func ErrAccountNotFound() *AppError {
	return New("XFER_004", "Token account not found", http.StatusUnprocessableEntity)
}

func ErrSameAccount() *AppError {
	return New("XFER_005", "Source and destination are the same account", http.StatusBadRequest)
}

func ErrAccountExists() *AppError {
	return New("XFER_006", "Token account already exists", http.StatusConflict)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrConcurrentUpdate(err error) *AppError {
	return Wrap("SYS_003", "Record was modified concurrently", http.StatusConflict, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

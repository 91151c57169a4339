package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"card-escrow-ledger/internal/core/domain"
)

// SignatureService verifies ed25519 request signatures.
type SignatureService interface {
	Verify(signer domain.Identity, payload string, signatureHex string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// TokenService issues and validates read-session JWTs.
type TokenService interface {
	Generate(subject domain.Identity) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject   domain.Identity
	ExpiresAt time.Time
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, identity domain.Identity, nonce string, ttl time.Duration) (bool, error)
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// EventPublisher delivers committed ledger events to a downstream sink.
// Delivery is at-least-once; consumers dedupe on Sequence.
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.Event) error
	Name() string
}

// --- Service Ports (Business Logic) ---

// CardService is the card lifecycle engine. Every mutating call is atomic.
type CardService interface {
	Initialize(ctx context.Context, req InitializeRequest) (*domain.Registry, error)
	CreateCard(ctx context.Context, req CreateCardRequest) (*Receipt, error)
	TopUp(ctx context.Context, req TopUpRequest) (*Receipt, error)
	ProcessPayment(ctx context.Context, req PaymentRequest) (*Receipt, error)
	Deactivate(ctx context.Context, ref CardRef) (*Receipt, error)
	Withdraw(ctx context.Context, ref CardRef) (*Receipt, error)

	GetCard(ctx context.Context, owner domain.Identity, cardID string) (*domain.Card, error)
	ListCards(ctx context.Context, owner domain.Identity) ([]domain.Card, error)
	GetRegistry(ctx context.Context) (*domain.Registry, error)
	ListEvents(ctx context.Context, params EventListParams) ([]domain.Event, error)
}

// FaucetService credits development funds to a caller's token account.
type FaucetService interface {
	Fund(ctx context.Context, account domain.Identity, amount uint64) (uint64, error)
}

// InitializeRequest creates the registry.
type InitializeRequest struct {
	Authority domain.Identity
}

// CreateCardRequest holds validated input for card creation. Owner is the
// authenticated caller.
type CreateCardRequest struct {
	Owner        domain.Identity
	CardID       string
	BalanceLimit uint64
	Metadata     string
}

// CardRef addresses an existing card on behalf of Caller.
type CardRef struct {
	Caller domain.Identity
	Owner  domain.Identity
	CardID string
}

// TopUpRequest funds a card from the owner's token account.
type TopUpRequest struct {
	CardRef
	Amount uint64
}

// PaymentRequest spends from a card's escrow to a merchant.
type PaymentRequest struct {
	CardRef
	Amount            uint64
	Merchant          domain.Identity
	MerchantReference string
}

// Receipt is the outcome of a committed card operation.
type Receipt struct {
	Card  *domain.Card
	Event *domain.Event
}

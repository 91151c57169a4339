package dto

import (
	"encoding/json"
	"time"

	"card-escrow-ledger/internal/core/domain"
)

// CreateCardRequest is the request body for card creation. The owner is the
// signer of the request.
type CreateCardRequest struct {
	CardID       string  `json:"card_id" binding:"required,card_id"`
	BalanceLimit *uint64 `json:"balance_limit" binding:"required"`
	Metadata     string  `json:"metadata"`
}

// AmountRequest is the request body for top-ups and faucet credits.
type AmountRequest struct {
	Amount *uint64 `json:"amount" binding:"required"`
}

// PaymentRequest is the request body for a card payment.
type PaymentRequest struct {
	Amount            *uint64 `json:"amount" binding:"required"`
	Merchant          string  `json:"merchant" binding:"required,identity"`
	MerchantReference string  `json:"merchant_reference"`
}

// EventListQuery holds the query parameters of the event feed.
type EventListQuery struct {
	CardAddress string `form:"card_address" binding:"omitempty,identity"`
	After       int64  `form:"after" binding:"min=0"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// SessionResponse is the response body for a new read session.
type SessionResponse struct {
	Token   string `json:"token"`
	Subject string `json:"subject"`
	Expiry  int64  `json:"expiry"` // Unix timestamp
}

// RegistryResponse is the response body for registry status.
type RegistryResponse struct {
	Authority  string `json:"authority"`
	TotalCards uint64 `json:"total_cards"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// CardResponse is the public view of a card.
type CardResponse struct {
	Address       string `json:"address"`
	EscrowAccount string `json:"escrow_account"`
	Bump          uint8  `json:"bump"`
	CardID        string `json:"card_id"`
	Owner         string `json:"owner"`
	Balance       uint64 `json:"balance"`
	BalanceLimit  uint64 `json:"balance_limit"`
	IsActive      bool   `json:"is_active"`
	Metadata      string `json:"metadata"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// EventResponse is one entry of the ledger event log.
type EventResponse struct {
	Sequence    int64           `json:"sequence"`
	Type        string          `json:"type"`
	CardAddress string          `json:"card_address"`
	Owner       string          `json:"owner"`
	CardID      string          `json:"card_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  string          `json:"occurred_at"`
}

// ReceiptResponse is returned by every card mutation.
type ReceiptResponse struct {
	Card  CardResponse   `json:"card"`
	Event *EventResponse `json:"event,omitempty"`
}

// CardListResponse wraps the caller's cards.
type CardListResponse struct {
	Items []CardResponse `json:"items"`
	Total int            `json:"total"`
}

// EventListResponse wraps a page of the event log. NextAfter is the cursor
// for the following page.
type EventListResponse struct {
	Items     []EventResponse `json:"items"`
	NextAfter int64           `json:"next_after"`
}

// FaucetResponse reports the funded account's balance.
type FaucetResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// NewRegistryResponse converts domain.Registry to DTO.
func NewRegistryResponse(r *domain.Registry) RegistryResponse {
	return RegistryResponse{
		Authority:  r.Authority.String(),
		TotalCards: r.TotalCards,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
}

// NewCardResponse converts domain.Card to DTO.
func NewCardResponse(c *domain.Card) CardResponse {
	return CardResponse{
		Address:       c.Address.String(),
		EscrowAccount: c.EscrowAccount.String(),
		Bump:          c.Bump,
		CardID:        c.ID,
		Owner:         c.Owner.String(),
		Balance:       c.Balance,
		BalanceLimit:  c.BalanceLimit,
		IsActive:      c.IsActive,
		Metadata:      c.Metadata,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     c.UpdatedAt.Format(time.RFC3339),
	}
}

// NewEventResponse converts domain.Event to DTO.
func NewEventResponse(e *domain.Event) EventResponse {
	return EventResponse{
		Sequence:    e.Sequence,
		Type:        string(e.Type),
		CardAddress: e.CardAddress.String(),
		Owner:       e.Owner.String(),
		CardID:      e.CardID,
		Payload:     e.Payload,
		OccurredAt:  e.OccurredAt.Format(time.RFC3339),
	}
}

// NewEventListResponse converts a page of events. NextAfter stays at after
// when the page is empty.
func NewEventListResponse(events []domain.Event, after int64) EventListResponse {
	resp := EventListResponse{
		Items:     make([]EventResponse, 0, len(events)),
		NextAfter: after,
	}
	for i := range events {
		resp.Items = append(resp.Items, NewEventResponse(&events[i]))
		resp.NextAfter = events[i].Sequence
	}
	return resp
}

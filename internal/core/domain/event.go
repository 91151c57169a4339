package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a ledger state change.
type EventType string

const (
	EventCardCreated      EventType = "CARD_CREATED"
	EventCardToppedUp     EventType = "CARD_TOPPED_UP"
	EventPaymentProcessed EventType = "PAYMENT_PROCESSED"
	EventCardDeactivated  EventType = "CARD_DEACTIVATED"
	EventBalanceWithdrawn EventType = "BALANCE_WITHDRAWN"
)

// Event is one entry of the append-only ledger event log. Sequence is
// assigned by the store on commit and orders the whole log.
type Event struct {
	Sequence    int64           `json:"sequence"`
	Type        EventType       `json:"type"`
	CardAddress Identity        `json:"card_address"`
	Owner       Identity        `json:"owner"`
	CardID      string          `json:"card_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// EventPayload is implemented by every typed event body.
type EventPayload interface {
	EventType() EventType
}

type CardCreated struct {
	CardAddress  Identity `json:"card_address"`
	Owner        Identity `json:"owner"`
	CardID       string   `json:"card_id"`
	BalanceLimit uint64   `json:"balance_limit"`
}

type CardToppedUp struct {
	CardAddress Identity `json:"card_address"`
	Amount      uint64   `json:"amount"`
	NewBalance  uint64   `json:"new_balance"`
}

type PaymentProcessed struct {
	CardAddress       Identity `json:"card_address"`
	Merchant          Identity `json:"merchant"`
	Amount            uint64   `json:"amount"`
	MerchantReference string   `json:"merchant_reference"`
	RemainingBalance  uint64   `json:"remaining_balance"`
	Timestamp         int64    `json:"timestamp"`
}

type CardDeactivated struct {
	CardAddress Identity `json:"card_address"`
	Timestamp   int64    `json:"timestamp"`
}

type BalanceWithdrawn struct {
	CardAddress Identity `json:"card_address"`
	Amount      uint64   `json:"amount"`
	Timestamp   int64    `json:"timestamp"`
}

func (CardCreated) EventType() EventType      { return EventCardCreated }
func (CardToppedUp) EventType() EventType     { return EventCardToppedUp }
func (PaymentProcessed) EventType() EventType { return EventPaymentProcessed }
func (CardDeactivated) EventType() EventType  { return EventCardDeactivated }
func (BalanceWithdrawn) EventType() EventType { return EventBalanceWithdrawn }

// NewEvent wraps a typed payload into a log entry for card.
func NewEvent(card *Card, payload EventPayload, at time.Time) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", payload.EventType(), err)
	}
	return &Event{
		Type:        payload.EventType(),
		CardAddress: card.Address,
		Owner:       card.Owner,
		CardID:      card.ID,
		Payload:     raw,
		OccurredAt:  at,
	}, nil
}

// Decode returns the typed payload of e.
func (e *Event) Decode() (EventPayload, error) {
	var payload EventPayload
	switch e.Type {
	case EventCardCreated:
		payload = &CardCreated{}
	case EventCardToppedUp:
		payload = &CardToppedUp{}
	case EventPaymentProcessed:
		payload = &PaymentProcessed{}
	case EventCardDeactivated:
		payload = &CardDeactivated{}
	case EventBalanceWithdrawn:
		payload = &BalanceWithdrawn{}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if err := json.Unmarshal(e.Payload, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return payload, nil
}

// IsPublished reports whether the relay has delivered e downstream.
func (e *Event) IsPublished() bool {
	return e.PublishedAt != nil
}

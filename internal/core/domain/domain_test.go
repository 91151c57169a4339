package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity(b byte) Identity {
	var id Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func TestIdentity_RoundTrip(t *testing.T) {
	id := testIdentity(7)

	parsed, err := ParseIdentity(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.False(t, parsed.IsZero())
}

func TestParseIdentity_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base58", "0OIl"},
		{"too short", "3mJr7AoUXx2Wqd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentity(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestIdentity_TextMarshalling(t *testing.T) {
	id := testIdentity(42)

	text, err := id.MarshalText()
	require.NoError(t, err)

	var out Identity
	require.NoError(t, out.UnmarshalText(text))
	assert.Equal(t, id, out)
}

func TestValidateCardID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want error
	}{
		{"empty", "", ErrCardIDEmpty},
		{"short", "card-1", nil},
		{"exactly 32", strings.Repeat("a", 32), nil},
		{"33 bytes", strings.Repeat("a", 33), ErrCardIDTooLong},
		{"multibyte counted in bytes", strings.Repeat("é", 17), ErrCardIDTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateCardID(tt.id), tt.want)
			if tt.want == nil {
				assert.NoError(t, ValidateCardID(tt.id))
			}
		})
	}
}

func TestValidateMetadataAndReference(t *testing.T) {
	assert.NoError(t, ValidateMetadata(strings.Repeat("m", 256)))
	assert.ErrorIs(t, ValidateMetadata(strings.Repeat("m", 257)), ErrMetadataTooLong)

	assert.NoError(t, ValidateMerchantReference(strings.Repeat("r", 64)))
	assert.ErrorIs(t, ValidateMerchantReference(strings.Repeat("r", 65)), ErrMerchantReferenceTooLong)
}

func TestNewCard(t *testing.T) {
	now := time.Now().UTC()
	card, err := NewCard(testIdentity(1), "card-1", 100, "travel", now)
	require.NoError(t, err)

	assert.True(t, card.IsActive)
	assert.Equal(t, uint64(0), card.Balance)
	assert.Equal(t, uint64(100), card.BalanceLimit)
	assert.Equal(t, now, card.CreatedAt)
	assert.False(t, card.IsTerminal())
}

func TestNewCard_RejectsOversizedLimit(t *testing.T) {
	_, err := NewCard(testIdentity(1), "card-1", MaxAmount+1, "", time.Now())
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCard_TopUp(t *testing.T) {
	tests := []struct {
		name    string
		card    Card
		amount  uint64
		wantErr error
		wantBal uint64
	}{
		{"within limit", Card{IsActive: true, BalanceLimit: 100}, 60, nil, 60},
		{"to exact limit", Card{IsActive: true, Balance: 40, BalanceLimit: 100}, 60, nil, 100},
		{"over limit", Card{IsActive: true, Balance: 60, BalanceLimit: 100}, 50, ErrBalanceLimitExceeded, 60},
		{"inactive", Card{IsActive: false, BalanceLimit: 100}, 10, ErrCardInactive, 0},
		{"overflowing amount", Card{IsActive: true, Balance: 10, BalanceLimit: MaxAmount}, ^uint64(0), ErrBalanceLimitExceeded, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := tt.card
			err := card.TopUp(tt.amount)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantBal, card.Balance)
		})
	}
}

func TestCard_Pay(t *testing.T) {
	tests := []struct {
		name    string
		card    Card
		amount  uint64
		ref     string
		wantErr error
		wantBal uint64
	}{
		{"success", Card{IsActive: true, Balance: 60}, 20, "order-1", nil, 40},
		{"spend to zero", Card{IsActive: true, Balance: 60}, 60, "", nil, 0},
		{"insufficient", Card{IsActive: true, Balance: 10}, 20, "order-1", ErrInsufficientBalance, 10},
		{"inactive", Card{IsActive: false, Balance: 60}, 20, "order-1", ErrCardInactive, 60},
		{"reference too long", Card{IsActive: true, Balance: 60}, 20, strings.Repeat("x", 65), ErrMerchantReferenceTooLong, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := tt.card
			err := card.Pay(tt.amount, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantBal, card.Balance)
		})
	}
}

func TestCard_DeactivateAndWithdraw(t *testing.T) {
	card := Card{IsActive: true, Balance: 40, BalanceLimit: 100}

	_, err := card.Withdraw()
	assert.ErrorIs(t, err, ErrCardStillActive)

	card.Deactivate()
	card.Deactivate()
	assert.False(t, card.IsActive)

	amount, err := card.Withdraw()
	require.NoError(t, err)
	assert.Equal(t, uint64(40), amount)
	assert.Equal(t, uint64(0), card.Balance)
	assert.True(t, card.IsTerminal())

	_, err = card.Withdraw()
	assert.ErrorIs(t, err, ErrNoBalanceToWithdraw)

	assert.ErrorIs(t, card.TopUp(1), ErrCardInactive)
}

func TestRegistry_RecordCardCreated(t *testing.T) {
	now := time.Now()
	reg := NewRegistry(testIdentity(9), now)
	reg.RecordCardCreated(now.Add(time.Second))
	reg.RecordCardCreated(now.Add(2 * time.Second))

	assert.Equal(t, uint64(2), reg.TotalCards)
	assert.Equal(t, now.Add(2*time.Second), reg.UpdatedAt)
}

func TestEvent_Decode(t *testing.T) {
	card := &Card{Address: testIdentity(3), Owner: testIdentity(4), ID: "card-1"}
	merchant := testIdentity(5)

	evt, err := NewEvent(card, PaymentProcessed{
		CardAddress:       card.Address,
		Merchant:          merchant,
		Amount:            20,
		MerchantReference: "order-9",
		RemainingBalance:  40,
		Timestamp:         1700000000,
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, EventPaymentProcessed, evt.Type)
	assert.Equal(t, "card-1", evt.CardID)

	payload, err := evt.Decode()
	require.NoError(t, err)
	pp, ok := payload.(*PaymentProcessed)
	require.True(t, ok)
	assert.Equal(t, merchant, pp.Merchant)
	assert.Equal(t, uint64(40), pp.RemainingBalance)
	assert.Equal(t, "order-9", pp.MerchantReference)
}

func TestEvent_DecodeUnknownType(t *testing.T) {
	evt := &Event{Type: "SOMETHING_ELSE", Payload: []byte(`{}`)}
	_, err := evt.Decode()
	assert.Error(t, err)
}

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("CARD_CREATED"), EventCardCreated)
	assert.Equal(t, EventType("CARD_TOPPED_UP"), EventCardToppedUp)
	assert.Equal(t, EventType("PAYMENT_PROCESSED"), EventPaymentProcessed)
	assert.Equal(t, EventType("CARD_DEACTIVATED"), EventCardDeactivated)
	assert.Equal(t, EventType("BALANCE_WITHDRAWN"), EventBalanceWithdrawn)
}

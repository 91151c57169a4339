package service

import (
	"context"
	"testing"

	"card-escrow-ledger/internal/adapter/storage/memory"
	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaucetService_Fund(t *testing.T) {
	store := memory.NewStore(programID, 0)
	svc := NewFaucetService(store, nil, 1_000, zerolog.Nop())
	ctx := context.Background()

	balance, err := svc.Fund(ctx, ownerID, 600)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), balance)

	balance, err = svc.Fund(ctx, ownerID, 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), balance)
}

func TestFaucetService_Fund_Rejects(t *testing.T) {
	store := memory.NewStore(programID, 0)
	svc := NewFaucetService(store, nil, 1_000, zerolog.Nop())

	tests := []struct {
		name     string
		account  domain.Identity
		amount   uint64
		wantCode string
	}{
		{"zero account", domain.Identity{}, 10, "VAL_005"},
		{"zero amount", ownerID, 0, "VAL_004"},
		{"over cap", ownerID, 1_001, "VAL_004"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Fund(context.Background(), tt.account, tt.amount)
			assertAppError(t, err, tt.wantCode)
		})
	}
}

func TestFaucetService_Fund_FrozenAccount(t *testing.T) {
	store := memory.NewStore(programID, 0)
	svc := NewFaucetService(store, nil, 1_000, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Fund(ctx, ownerID, 10)
	require.NoError(t, err)
	require.NoError(t, store.SetFrozen(ownerID, true))

	_, err = svc.Fund(ctx, ownerID, 10)
	assertAppError(t, err, "XFER_002")
}

func TestFaucetService_FundedOwnerCanTopUp(t *testing.T) {
	d := setupEngine(t, CardServiceConfig{})
	ctx := context.Background()
	card := setupFundedCard(t, d, 100, 0)
	faucet := NewFaucetService(d.store, nil, 500, zerolog.Nop())

	_, err := d.svc.TopUp(ctx, ports.TopUpRequest{CardRef: ref(ownerID), Amount: 30})
	assertAppError(t, err, "XFER_004")

	_, err = faucet.Fund(ctx, ownerID, 500)
	require.NoError(t, err)

	_, err = d.svc.TopUp(ctx, ports.TopUpRequest{CardRef: ref(ownerID), Amount: 30})
	require.NoError(t, err)
	assert.Equal(t, uint64(470), d.balance(t, ownerID))
	assert.Equal(t, uint64(30), d.balance(t, card.EscrowAccount))
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"card-escrow-ledger/internal/core/authority"
	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Transactor = (*Store)(nil)

func id(b byte) domain.Identity {
	var out domain.Identity
	for i := range out {
		out[i] = b
	}
	return out
}

func newCard(owner domain.Identity, cardID string) *domain.Card {
	c, _ := domain.NewCard(owner, cardID, 100, "", time.Now().UTC())
	return c
}

func TestStore_CommitAndRollback(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		return st.Cards().Create(ctx, newCard(id(1), "kept"))
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		if err := st.Cards().Create(ctx, newCard(id(1), "discarded")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_ = s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		_, err := st.Cards().Get(ctx, id(1), "kept")
		assert.NoError(t, err)
		_, err = st.Cards().Get(ctx, id(1), "discarded")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
}

func TestStore_CardCreateAndVersioning(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	ctx := context.Background()

	card := newCard(id(1), "c1")
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		return st.Cards().Create(ctx, card)
	}))
	assert.Equal(t, int64(1), card.Version)

	err := s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		return st.Cards().Create(ctx, newCard(id(1), "c1"))
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	stale := *card
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		c, err := st.Cards().GetForUpdate(ctx, id(1), "c1")
		if err != nil {
			return err
		}
		c.Balance = 10
		return st.Cards().Update(ctx, c)
	}))

	err = s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		return st.Cards().Update(ctx, &stale)
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestStore_IsCardAccount(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	ctx := context.Background()

	card := newCard(id(1), "c1")
	card.Address, card.EscrowAccount = id(5), id(6)

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		if err := st.Cards().Create(ctx, card); err != nil {
			return err
		}
		staged, err := st.Cards().IsCardAccount(ctx, id(6))
		require.NoError(t, err)
		assert.True(t, staged, "staged card is visible to its own transaction")
		return nil
	}))

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		for _, tc := range []struct {
			id   domain.Identity
			want bool
		}{
			{id(5), true},
			{id(6), true},
			{id(1), false},
			{id(7), false},
		} {
			got, err := st.Cards().IsCardAccount(ctx, tc.id)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, tc.id.String())
		}
		return nil
	}))
}

func TestStore_ListByOwner(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	ctx := context.Background()

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		for _, c := range []*domain.Card{newCard(id(1), "b"), newCard(id(1), "a"), newCard(id(2), "x")} {
			if err := st.Cards().Create(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}))

	_ = s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		cards, err := st.Cards().ListByOwner(ctx, id(1))
		require.NoError(t, err)
		assert.Len(t, cards, 2)
		return nil
	})
}

func TestStore_Registry(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		_, err := st.Registry().Get(ctx)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	create := func(ctx context.Context, st ports.Stores) error {
		return st.Registry().Create(ctx, domain.NewRegistry(id(1), time.Now()))
	}
	require.NoError(t, s.RunInTx(ctx, create))
	assert.ErrorIs(t, s.RunInTx(ctx, create), domain.ErrAlreadyInitialized)
}

func TestStore_EventsSequenceAndOutbox(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	ctx := context.Background()
	card := newCard(id(1), "c1")
	card.Address = id(7)

	var first, second *domain.Event
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		var err error
		first, err = domain.NewEvent(card, domain.CardDeactivated{CardAddress: card.Address}, time.Now())
		require.NoError(t, err)
		second, err = domain.NewEvent(card, domain.CardDeactivated{CardAddress: card.Address}, time.Now())
		require.NoError(t, err)
		if err := st.Events().Append(ctx, first); err != nil {
			return err
		}
		return st.Events().Append(ctx, second)
	}))
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)

	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		pending, err := st.Events().ClaimUnpublished(ctx, 1)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, int64(1), pending[0].Sequence)
		return st.Events().MarkPublished(ctx, []int64{1}, time.Now())
	}))

	_ = s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		pending, err := st.Events().ClaimUnpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, int64(2), pending[0].Sequence)

		after, err := st.Events().List(ctx, ports.EventListParams{AfterSequence: 1})
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, int64(2), after[0].Sequence)

		other := id(9)
		none, err := st.Events().List(ctx, ports.EventListParams{CardAddress: &other})
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	})
}

func TestTokenLedger_Transfer(t *testing.T) {
	program := id(0xAA)
	s := NewStore(program, time.Second)
	ctx := context.Background()
	alice, bob := id(1), id(2)
	require.NoError(t, s.Deposit(alice, 100))

	transfer := func(from, to domain.Identity, amount uint64, c authority.Capability) error {
		return s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
			return st.Transfers().Transfer(ctx, from, to, amount, c)
		})
	}

	assert.ErrorIs(t, transfer(alice, bob, 10, authority.Signer(bob)), domain.ErrAuthorityMismatch)
	assert.ErrorIs(t, transfer(alice, bob, 101, authority.Signer(alice)), domain.ErrInsufficientFunds)
	assert.ErrorIs(t, transfer(alice, alice, 1, authority.Signer(alice)), domain.ErrSameAccount)
	assert.ErrorIs(t, transfer(id(5), bob, 1, authority.Signer(id(5))), domain.ErrAccountNotFound)

	require.NoError(t, transfer(alice, bob, 40, authority.Signer(alice)))

	require.NoError(t, s.SetFrozen(bob, true))
	assert.ErrorIs(t, transfer(alice, bob, 1, authority.Signer(alice)), domain.ErrAccountFrozen)

	_ = s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		a, err := st.Transfers().Balance(ctx, alice)
		require.NoError(t, err)
		b, err := st.Transfers().Balance(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, uint64(60), a)
		assert.Equal(t, uint64(40), b)
		return nil
	})
}

func TestTokenLedger_Deposit(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	ctx := context.Background()

	require.NoError(t, s.Deposit(id(1), 30))
	require.NoError(t, s.Deposit(id(1), 12))
	assert.ErrorIs(t, s.Deposit(id(1), 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, s.Deposit(id(1), domain.MaxAmount), domain.ErrInvalidAmount)

	require.NoError(t, s.SetFrozen(id(1), true))
	assert.ErrorIs(t, s.Deposit(id(1), 5), domain.ErrAccountFrozen)
	require.NoError(t, s.SetFrozen(id(1), false))

	_ = s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		bal, err := st.Transfers().Balance(ctx, id(1))
		require.NoError(t, err)
		assert.Equal(t, uint64(42), bal)
		return nil
	})
}

func TestTokenLedger_OpenAccount(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	ctx := context.Background()

	open := func(ctx context.Context, st ports.Stores) error {
		return st.Transfers().OpenAccount(ctx, id(3), id(4))
	}
	require.NoError(t, s.RunInTx(ctx, open))
	assert.ErrorIs(t, s.RunInTx(ctx, open), domain.ErrAccountExists)
}

func TestStore_LockWaitHonoursContext(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	require.NoError(t, s.RunInTx(context.Background(), func(ctx context.Context, st ports.Stores) error {
		return st.Cards().Create(ctx, newCard(id(1), "c1"))
	}))

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.RunInTx(context.Background(), func(ctx context.Context, st ports.Stores) error {
			_, err := st.Cards().GetForUpdate(ctx, id(1), "c1")
			close(locked)
			<-done
			return err
		})
	}()
	<-locked
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		_, err := st.Cards().GetForUpdate(ctx, id(1), "c1")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore(id(0xAA), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID(b byte) domain.Identity {
	var id domain.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func newTestCard() *domain.Card {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Card{
		Address:       testID(1),
		EscrowAccount: testID(2),
		Bump:          254,
		ID:            "card-1",
		Owner:         testID(3),
		Balance:       40,
		BalanceLimit:  100,
		IsActive:      true,
		Metadata:      "travel",
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func cardColumnNames() []string {
	return []string{"address", "escrow_account", "bump", "card_id", "owner", "balance", "balance_limit",
		"is_active", "metadata", "version", "created_at", "updated_at"}
}

func cardRow(c *domain.Card) *pgxmock.Rows {
	return pgxmock.NewRows(cardColumnNames()).AddRow(
		c.Address.Bytes(), c.EscrowAccount.Bytes(), int16(c.Bump), c.ID, c.Owner.Bytes(),
		int64(c.Balance), int64(c.BalanceLimit), c.IsActive, c.Metadata,
		c.Version, c.CreatedAt, c.UpdatedAt,
	)
}

func TestCardRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCardRepo(mock)
	c := newTestCard()

	mock.ExpectExec("INSERT INTO cards").
		WithArgs(c.Address.Bytes(), c.EscrowAccount.Bytes(), int16(254), c.ID, c.Owner.Bytes(),
			int64(40), int64(100), true, "travel", int64(1), c.CreatedAt, c.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), c)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepo_Create_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCardRepo(mock)

	mock.ExpectExec("INSERT INTO cards").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	err = repo.Create(context.Background(), newTestCard())
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepo_GetForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCardRepo(mock)
	c := newTestCard()

	mock.ExpectQuery("SELECT .+ FROM cards WHERE owner .+ FOR UPDATE").
		WithArgs(c.Owner.Bytes(), c.ID).
		WillReturnRows(cardRow(c))

	result, err := repo.GetForUpdate(context.Background(), c.Owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCardRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM cards WHERE owner").
		WithArgs(testID(3).Bytes(), "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.Get(context.Background(), testID(3), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepo_Get_LockTimeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCardRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM cards WHERE owner .+ FOR UPDATE").
		WillReturnError(&pgconn.PgError{Code: pgLockNotAvailable})

	_, err = repo.GetForUpdate(context.Background(), testID(3), "card-1")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepo_ListByOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCardRepo(mock)
	c := newTestCard()

	mock.ExpectQuery("SELECT .+ FROM cards WHERE owner = \\$1 ORDER BY").
		WithArgs(c.Owner.Bytes()).
		WillReturnRows(cardRow(c))

	cards, err := repo.ListByOwner(context.Background(), c.Owner)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "card-1", cards[0].ID)
	assert.Equal(t, uint8(254), cards[0].Bump)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepo_IsCardAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCardRepo(mock)
	c := newTestCard()

	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM cards WHERE address = \\$1 OR escrow_account = \\$1\\)").
		WithArgs(c.EscrowAccount.Bytes()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(testID(8).Bytes()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	internal, err := repo.IsCardAccount(context.Background(), c.EscrowAccount)
	require.NoError(t, err)
	assert.True(t, internal)

	internal, err = repo.IsCardAccount(context.Background(), testID(8))
	require.NoError(t, err)
	assert.False(t, internal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCardRepo(mock)
	c := newTestCard()

	mock.ExpectExec("UPDATE cards SET balance").
		WithArgs(int64(40), true, c.UpdatedAt, c.Owner.Bytes(), c.ID, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), c))
	assert.Equal(t, int64(2), c.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepo_Update_StaleVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCardRepo(mock)
	c := newTestCard()

	mock.ExpectExec("UPDATE cards SET balance").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Update(context.Background(), c)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, int64(1), c.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryRepo_CreateTwice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistryRepo(mock)
	reg := domain.NewRegistry(testID(9), time.Now().UTC())

	mock.ExpectExec("INSERT INTO registry").
		WithArgs(domain.RegistryID, testID(9).Bytes(), int64(0), reg.CreatedAt, reg.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO registry").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	require.NoError(t, repo.Create(context.Background(), reg))
	assert.ErrorIs(t, repo.Create(context.Background(), reg), domain.ErrAlreadyInitialized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryRepo_GetForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistryRepo(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM registry WHERE id = \\$1 FOR UPDATE").
		WithArgs(domain.RegistryID).
		WillReturnRows(pgxmock.NewRows([]string{"authority", "total_cards", "created_at", "updated_at"}).
			AddRow(testID(9).Bytes(), int64(7), now, now))

	reg, err := repo.GetForUpdate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testID(9), reg.Authority)
	assert.Equal(t, uint64(7), reg.TotalCards)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryRepo_Get_NotInitialized(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistryRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM registry").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEventRepo(mock)
	evt, err := domain.NewEvent(newTestCard(), domain.CardDeactivated{CardAddress: testID(1), Timestamp: 1}, time.Now().UTC())
	require.NoError(t, err)

	mock.ExpectExec("SELECT pg_advisory_xact_lock\\(\\$1\\)").
		WithArgs(eventLogLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("INSERT INTO ledger_events .+ RETURNING sequence").
		WithArgs(string(domain.EventCardDeactivated), testID(1).Bytes(), testID(3).Bytes(), "card-1",
			[]byte(evt.Payload), evt.OccurredAt).
		WillReturnRows(pgxmock.NewRows([]string{"sequence"}).AddRow(int64(42)))

	require.NoError(t, repo.Append(context.Background(), evt))
	assert.Equal(t, int64(42), evt.Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A sequence is only drawn after the event log lock is held, so sequences
// become visible in commit order and cursor paging cannot skip one.
func TestEventRepo_Append_SerializedBeforeSequence(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.MatchExpectationsInOrder(true)
	transactor := NewTransactor(mock, testID(7), time.Second)
	card := newTestCard()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").
		WithArgs("1000ms").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	for _, seq := range []int64{10, 11} {
		mock.ExpectExec("SELECT pg_advisory_xact_lock").
			WithArgs(eventLogLockKey).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectQuery("INSERT INTO ledger_events").
			WillReturnRows(pgxmock.NewRows([]string{"sequence"}).AddRow(seq))
	}
	mock.ExpectCommit()

	var got []int64
	err = transactor.RunInTx(context.Background(), func(ctx context.Context, s ports.Stores) error {
		for i := 0; i < 2; i++ {
			evt, err := domain.NewEvent(card, domain.CardDeactivated{CardAddress: card.Address, Timestamp: 1}, time.Now().UTC())
			if err != nil {
				return err
			}
			if err := s.Events().Append(ctx, evt); err != nil {
				return err
			}
			got = append(got, evt.Sequence)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_Append_LockTimeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEventRepo(mock)
	evt, err := domain.NewEvent(newTestCard(), domain.CardDeactivated{CardAddress: testID(1), Timestamp: 1}, time.Now().UTC())
	require.NoError(t, err)

	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(eventLogLockKey).
		WillReturnError(&pgconn.PgError{Code: pgLockNotAvailable})

	err = repo.Append(context.Background(), evt)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.Zero(t, evt.Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_List_WithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEventRepo(mock)
	card := testID(1)
	owner := testID(3)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM ledger_events WHERE sequence > \\$1 AND card_address = \\$2 AND owner = \\$3 ORDER BY sequence LIMIT \\$4").
		WithArgs(int64(10), card.Bytes(), owner.Bytes(), 100).
		WillReturnRows(pgxmock.NewRows([]string{"sequence", "event_type", "card_address", "owner", "card_id",
			"payload", "occurred_at", "published_at"}).
			AddRow(int64(11), "CARD_CREATED", card.Bytes(), owner.Bytes(), "card-1", []byte(`{}`), now, &now))

	events, err := repo.List(context.Background(), ports.EventListParams{
		CardAddress:   &card,
		Owner:         &owner,
		AfterSequence: 10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCardCreated, events[0].Type)
	assert.Equal(t, card, events[0].CardAddress)
	assert.True(t, events[0].IsPublished())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_ClaimAndMarkPublished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEventRepo(mock)
	at := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM ledger_events\\s+WHERE published_at IS NULL .+ FOR UPDATE SKIP LOCKED").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"sequence", "event_type", "card_address", "owner", "card_id",
			"payload", "occurred_at", "published_at"}))
	mock.ExpectExec("UPDATE ledger_events SET published_at").
		WithArgs(at, []int64{1, 2}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	events, err := repo.ClaimUnpublished(context.Background(), 50)
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, repo.MarkPublished(context.Background(), []int64{1, 2}, at))
	require.NoError(t, repo.MarkPublished(context.Background(), nil, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_RunInTx_Commit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	transactor := NewTransactor(mock, testID(7), 2*time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").
		WithArgs("2000ms").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("UPDATE registry SET total_cards").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = transactor.RunInTx(context.Background(), func(ctx context.Context, s ports.Stores) error {
		return s.Registry().Update(ctx, &domain.Registry{TotalCards: 1})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_RunInTx_RollbackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	transactor := NewTransactor(mock, testID(7), 0)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").
		WithArgs("5000ms").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectRollback()

	err = transactor.RunInTx(context.Background(), func(ctx context.Context, s ports.Stores) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS registry").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))

	hc := NewHealthCheck(mock)
	assert.NoError(t, hc.Ping(context.Background()))
	assert.Equal(t, "postgresql", hc.Name())
	assert.NoError(t, mock.ExpectationsWereMet())
}

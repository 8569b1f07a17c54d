package flow

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	updated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT account_id, document, updated_at FROM flows").
		WithArgs("flow-res").
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "document", "updated_at"}).
			AddRow("acct-1", []byte(authoringDoc), updated))

	store := NewStore(mock)
	g, err := store.Get(context.Background(), "flow-res")
	require.NoError(t, err)
	assert.Equal(t, "flow-res", g.ID)
	assert.Equal(t, "acct-1", g.AccountID)
	assert.Equal(t, updated, g.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT account_id, document, updated_at FROM flows").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "document", "updated_at"}))

	store := NewStore(mock)
	_, err = store.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStoreListActiveByAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	updated := time.Now().UTC()
	mock.ExpectQuery("SELECT document, updated_at FROM flows").
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"document", "updated_at"}).
			AddRow([]byte(authoringDoc), updated))

	store := NewStore(mock)
	graphs, err := store.ListActiveByAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	assert.Equal(t, "flow-res", graphs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	g := reservationGraph()
	mock.ExpectExec("INSERT INTO flows").
		WithArgs(g.ID, g.AccountID, g.Name, string(g.Status), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	require.NoError(t, store.Upsert(context.Background(), g))
	assert.False(t, g.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM flows").
		WithArgs("flow-res").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	store := NewStore(mock)
	require.NoError(t, store.Delete(context.Background(), "flow-res"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

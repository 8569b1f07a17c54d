package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func conversationRows(conv *Conversation, vars string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "account_id", "sender_id", "status", "flow_id", "node_id",
		"variables", "last_message_at", "created_at", "updated_at",
	}).AddRow(conv.ID, conv.AccountID, conv.SenderID, string(conv.Status),
		conv.FlowID, conv.NodeID, []byte(vars), now, now, now)
}

func TestStoreCreateAssignsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO conversations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	conv := &Conversation{
		AccountID: "acct-1",
		SenderID:  "sender-1",
		Status:    StatusActive,
		FlowID:    "flow-1",
		NodeID:    "greet",
		Variables: Variables{},
	}
	require.NoError(t, store.Create(context.Background(), conv))
	assert.NotEmpty(t, conv.ID)
	assert.False(t, conv.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetDecodesVariables(t *testing.T) {
	store, mock := newMockStore(t)

	want := &Conversation{
		ID: "conv-1", AccountID: "acct-1", SenderID: "sender-1",
		Status: StatusActive, FlowID: "flow-1", NodeID: "ask-time",
	}
	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs("conv-1").
		WillReturnRows(conversationRows(want, `{"date":"2025-03-15","guestCount":4}`))

	got, err := store.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ask-time", got.NodeID)
	assert.Equal(t, "2025-03-15", got.Variables.String(FieldDate))
	guests, ok := got.Variables.Int(FieldGuestCount)
	assert.True(t, ok)
	assert.Equal(t, 4, guests)
}

func TestStoreGetMissingReturnsNil(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreGetOpenBySender(t *testing.T) {
	store, mock := newMockStore(t)

	want := &Conversation{
		ID: "conv-1", AccountID: "acct-1", SenderID: "sender-1",
		Status: StatusActive, FlowID: "flow-1", NodeID: "greet",
	}
	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs("acct-1", "sender-1").
		WillReturnRows(conversationRows(want, `{}`))

	got, err := store.GetOpenBySender(context.Background(), "acct-1", "sender-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "conv-1", got.ID)
	assert.NotNil(t, got.Variables)
}

func TestStoreCommitTurnIsTransactional(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE conversations SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO conversation_messages").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO conversation_messages").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	conv := &Conversation{
		ID: "conv-1", Status: StatusActive, FlowID: "flow-1", NodeID: "ask-time",
		Variables: Variables{FieldDate: "2025-03-15"},
	}
	inbound := &Message{Role: RoleUser, Text: "15.03.2025", NodeID: "ask-date"}
	outbound := &Message{Role: RoleBot, Text: "Um wie viel Uhr?", NodeID: "ask-time"}

	require.NoError(t, store.CommitTurn(context.Background(), conv, inbound, outbound))
	assert.NotEmpty(t, inbound.ID)
	assert.NotEmpty(t, outbound.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCommitTurnRollsBackOnMessageFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE conversations SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO conversation_messages").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	conv := &Conversation{ID: "conv-1", Status: StatusActive, FlowID: "flow-1", NodeID: "ask-time"}
	err := store.CommitTurn(context.Background(), conv,
		&Message{Role: RoleUser, Text: "hi"}, &Message{Role: RoleBot, Text: "hallo"})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreClose(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE conversations SET status = 'closed'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Close(context.Background(), "conv-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMessages(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "text", "node_id", "created_at"}).
		AddRow("m1", "conv-1", "user", "hallo", "greet", now).
		AddRow("m2", "conv-1", "bot", "Willkommen!", "greet", now)
	mock.ExpectQuery("SELECT (.+) FROM conversation_messages").
		WithArgs("conv-1").
		WillReturnRows(rows)

	msgs, err := store.Messages(context.Background(), "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "Willkommen!", msgs[1].Text)
}

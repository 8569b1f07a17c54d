package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resaflow/platform/internal/flow"
)

func TestHTTPReplySenderPostsPayload(t *testing.T) {
	var got outboundReply
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewHTTPReplySender(srv.URL, nil)
	err := sender.SendReply(context.Background(), "acct-1", "sender-9", Reply{
		Text: "Wann möchten Sie kommen?",
		QuickReplies: []flow.QuickReply{
			{ID: "qr-1", Label: "Heute", Payload: "today"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "acct-1", got.AccountID)
	assert.Equal(t, "sender-9", got.SenderID)
	assert.Equal(t, "Wann möchten Sie kommen?", got.Text)
	require.Len(t, got.QuickReplies, 1)
	assert.Equal(t, "Heute", got.QuickReplies[0].Label)
	assert.Equal(t, "today", got.QuickReplies[0].Payload)
}

func TestHTTPReplySenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewHTTPReplySender(srv.URL, nil)
	err := sender.SendReply(context.Background(), "acct-1", "sender-9", Reply{Text: "hallo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

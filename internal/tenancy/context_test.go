package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountIDRoundTrip(t *testing.T) {
	ctx := WithAccountID(context.Background(), "acct-1")

	got, ok := AccountIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "acct-1", got)
}

func TestAccountIDMissing(t *testing.T) {
	_, ok := AccountIDFromContext(context.Background())
	assert.False(t, ok)
}

func TestAccountIDEmptyNotOK(t *testing.T) {
	ctx := WithAccountID(context.Background(), "")
	_, ok := AccountIDFromContext(ctx)
	assert.False(t, ok)
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")

	got, ok := RequestIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-42", got)
}

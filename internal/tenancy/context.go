// Package tenancy carries per-request tenant identity through context,
// replacing any ambient globals.
package tenancy

import "context"

type ctxKey string

const (
	accountKey ctxKey = "resaflow.account_id"
	requestKey ctxKey = "resaflow.request_id"
)

// WithAccountID stores the account id in context.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey, accountID)
}

// AccountIDFromContext extracts the account id if present.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(accountKey)
	if val == nil {
		return "", false
	}
	accountID, ok := val.(string)
	return accountID, ok && accountID != ""
}

// WithRequestID stores the correlation id for the current inbound event.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestKey, requestID)
}

// RequestIDFromContext extracts the correlation id if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(requestKey)
	if val == nil {
		return "", false
	}
	requestID, ok := val.(string)
	return requestID, ok && requestID != ""
}

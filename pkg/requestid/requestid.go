// Package requestid carries a per-request correlation ID through contexts.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const key contextKey = "request_id"

// Header is the HTTP header carrying the request ID.
const Header = "X-Request-ID"

// With returns a copy of ctx carrying id.
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, key, id)
}

// From returns the request ID in ctx, or "" if none is set.
func From(ctx context.Context) string {
	if id, ok := ctx.Value(key).(string); ok {
		return id
	}
	return ""
}

// New generates a fresh request ID.
func New() string {
	return uuid.NewString()
}

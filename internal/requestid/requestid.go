package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header carries the request ID in both directions.
const Header = "X-Request-ID"

const maxLen = 128

type (
	requestIDKey struct{}
	userIDKey    struct{}
)

// New generates a random UUID v4 request ID.
func New() string {
	return uuid.NewString()
}

// Sanitize returns id when it is short printable ASCII, otherwise a fresh ID.
// Incoming IDs end up in logs, so nothing else is accepted.
func Sanitize(id string) string {
	if id == "" || len(id) > maxLen {
		return New()
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return New()
		}
	}
	return id
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithUserID attaches the authenticated user's ID.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

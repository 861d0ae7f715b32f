package auth

import (
	"context"
)

// Context keys for authentication data
type contextKey string

const (
	// ContextKeyIdentity is the context key for the authenticated identity
	ContextKeyIdentity contextKey = "identity"
)

// Identity describes the authenticated caller of a request.
// UserID is the token subject and doubles as the users table primary key.
type Identity struct {
	UserID   string
	Username string
}

// WithIdentity adds the identity to the context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// IdentityFromContext retrieves the identity from the context
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ContextKeyIdentity).(*Identity)
	return id, ok
}

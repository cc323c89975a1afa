package middleware

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// IdentityKey holds the authenticated *auth.Identity for the request.
const IdentityKey contextKey = "identity"

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity extracts the authenticated caller from context. Returns an
// error if the value is missing or has the wrong type, which means RequireAuth
// did not run on this route.
func GetIdentity(ctx context.Context) (*auth.Identity, error) {
	val := ctx.Value(IdentityKey)
	if val == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	identity, ok := val.(*auth.Identity)
	if !ok {
		return nil, fmt.Errorf("identity has wrong type: %T", val)
	}
	return identity, nil
}

// GetUserID extracts the authenticated user id from context. Service callers
// report an error: routes that accept only users use this directly.
func GetUserID(ctx context.Context) (uuid.UUID, error) {
	identity, err := GetIdentity(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if identity.Kind != auth.PrincipalKindUser {
		return uuid.Nil, fmt.Errorf("caller is not a user principal")
	}
	return identity.UserID, nil
}

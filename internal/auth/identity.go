package auth

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Identity is the authenticated caller behind a bearer token. Exactly one of
// UserID and ServiceID is set, per Kind. Permissions are the claims frozen
// into the token at issuance; the enabled flag is the only thing re-checked
// against the store per request.
type Identity struct {
	Kind        PrincipalKind
	UserID      uuid.UUID
	ServiceID   string
	Email       string
	Permissions []string
	// OnBehalfOf carries the user a delegated service token acts for, or
	// uuid.Nil.
	OnBehalfOf uuid.UUID
}

// HasPermission reports whether the token carried the named permission.
func (i *Identity) HasPermission(name string) bool {
	return slices.Contains(i.Permissions, name)
}

// AuthenticateToken resolves a bearer credential to the caller's identity.
// Access and service tokens are accepted; refresh and pre-auth tokens are
// not a login. Any failure, including a disabled principal, surfaces as
// ErrAuthenticationRequired.
func (s *Service) AuthenticateToken(ctx context.Context, tokenString string) (*Identity, error) {
	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return nil, ErrAuthenticationRequired
	}

	switch {
	case claims.IsAccess():
		userID, err := claims.UserID()
		if err != nil {
			return nil, ErrAuthenticationRequired
		}
		if !s.principalEnabled(ctx, PrincipalKindUser, userID.String()) {
			return nil, ErrAuthenticationRequired
		}
		return &Identity{
			Kind:        PrincipalKindUser,
			UserID:      userID,
			Email:       claims.Email,
			Permissions: claims.Permissions,
		}, nil

	case claims.IsService():
		if !s.principalEnabled(ctx, PrincipalKindService, claims.Subject) {
			return nil, ErrAuthenticationRequired
		}
		identity := &Identity{
			Kind:        PrincipalKindService,
			ServiceID:   claims.Subject,
			Permissions: claims.Permissions,
		}
		if claims.ActSubject != "" {
			if onBehalf, err := uuid.Parse(claims.ActSubject); err == nil {
				identity.OnBehalfOf = onBehalf
			}
		}
		return identity, nil

	default:
		return nil, ErrAuthenticationRequired
	}
}

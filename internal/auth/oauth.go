package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/oauth"
)

// AuthenticateWithOAuth validates a federated identity assertion and resolves
// it to a local user, creating one on first contact. Accounts created this
// way never hold a password hash.
func (s *Service) AuthenticateWithOAuth(ctx context.Context, providerName, assertion string) (*User, error) {
	provider, ok := s.providers.Provider(providerName)
	if !ok {
		return nil, ErrUnknownProvider
	}

	claims, err := provider.ValidateAndExtractClaims(ctx, assertion)
	if err != nil {
		return nil, oauth.ErrInvalidAssertion
	}

	email := NormalizeEmail(claims.Email)
	if email == "" {
		return nil, oauth.ErrInvalidAssertion
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		// Known account: backfill the display name once, when the local
		// record has none and the assertion offers one.
		if user.DisplayName == nil && claims.Name != "" {
			name := claims.Name
			user.DisplayName = &name
			if err := s.users.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("backfill display name: %w", err)
			}
		}
	case errors.Is(err, ErrUserNotFound):
		user, err = s.provisionFederatedUser(ctx, email, claims)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.principalEnabled(ctx, PrincipalKindUser, user.ID.String()) {
		s.auditLoginFailure(ctx, user.ID, email, "principal_disabled")
		return nil, ErrInvalidCredentials
	}

	s.audit.Log(ctx, user.ID, audit.EventOAuthLogin, user.ID.String(), map[string]string{
		"provider": provider.Name(),
	})
	return user, nil
}

func (s *Service) provisionFederatedUser(ctx context.Context, email string, claims *oauth.Claims) (*User, error) {
	user := &User{
		ID:    uuid.New(),
		Email: email,
	}
	if claims.Name != "" {
		name := claims.Name
		user.DisplayName = &name
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create federated user: %w", err)
	}
	principal := &Principal{
		ID:         uuid.New(),
		Kind:       PrincipalKindUser,
		ExternalID: user.ID.String(),
		Enabled:    true,
	}
	if err := s.principals.Create(ctx, principal); err != nil {
		return nil, fmt.Errorf("create principal: %w", err)
	}
	return user, nil
}

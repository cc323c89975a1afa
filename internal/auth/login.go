package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/audit"
)

// LoginResult is what a login attempt produces: either a token pair, or a
// pre-auth token when the account still owes a TOTP code.
type LoginResult struct {
	User         *User
	RequiresTOTP bool
	PreAuthToken string
	Tokens       *TokenPair
}

// Authenticate verifies an email/password pair. Every failure collapses to
// ErrInvalidCredentials so callers cannot probe for accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	// 1. Blank passwords short-circuit before any store access.
	if strings.TrimSpace(password) == "" {
		return nil, ErrInvalidCredentials
	}

	// 2. Lookup by normalized email.
	email = NormalizeEmail(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.auditLoginFailure(ctx, uuid.Nil, email, "unknown_account")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	// 3. Federated-only accounts carry no password hash and cannot log in
	//    with one.
	if user.PasswordHash == nil {
		s.auditLoginFailure(ctx, user.ID, email, "no_password")
		return nil, ErrInvalidCredentials
	}

	// 4. Verify against the stored hash.
	if !s.hasher.Verify(password, *user.PasswordHash) {
		s.auditLoginFailure(ctx, user.ID, email, "bad_password")
		return nil, ErrInvalidCredentials
	}

	// 5. Principal gate: disabled accounts fail identically.
	if !s.principalEnabled(ctx, PrincipalKindUser, user.ID.String()) {
		s.auditLoginFailure(ctx, user.ID, email, "principal_disabled")
		return nil, ErrInvalidCredentials
	}

	s.audit.Log(ctx, user.ID, audit.EventLoginSuccess, user.ID.String(), map[string]string{
		"email": email,
	})
	return user, nil
}

// Login runs Authenticate and, on success, either issues a token pair or a
// short-lived pre-auth token when TOTP is enabled for the account.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if user.TOTPEnabled {
		preAuth, err := s.codec.IssuePreAuth(user.ID)
		if err != nil {
			return nil, fmt.Errorf("issue pre-auth token: %w", err)
		}
		return &LoginResult{User: user, RequiresTOTP: true, PreAuthToken: preAuth}, nil
	}

	pair, err := s.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Tokens: pair}, nil
}

// IssueRememberMeToken mints a long-lived opaque token, stores its digest on
// the user record, and returns the cleartext once. Any prior token is
// replaced.
func (s *Service) IssueRememberMeToken(ctx context.Context, user *User) (string, error) {
	var token string
	// Collisions are astronomically unlikely; a couple of retries keep the
	// stored digests unique even so.
	for attempt := 0; attempt < 3; attempt++ {
		t, err := GenerateSecureToken(32)
		if err != nil {
			return "", err
		}
		if _, err := s.users.FindByRememberMeToken(ctx, HashToken(t)); errors.Is(err, ErrUserNotFound) {
			token = t
			break
		} else if err != nil {
			return "", fmt.Errorf("check remember-me uniqueness: %w", err)
		}
	}
	if token == "" {
		return "", fmt.Errorf("generate remember-me token: exhausted attempts")
	}

	hash := HashToken(token)
	user.RememberMeToken = &hash
	if err := s.users.Update(ctx, user); err != nil {
		return "", fmt.Errorf("store remember-me token: %w", err)
	}
	return token, nil
}

// AuthenticateByRememberMe resolves a remember-me cleartext back to its user.
func (s *Service) AuthenticateByRememberMe(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByRememberMeToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup remember-me token: %w", err)
	}
	if !s.principalEnabled(ctx, PrincipalKindUser, user.ID.String()) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ClearRememberMeToken drops the stored digest, ending the session.
func (s *Service) ClearRememberMeToken(ctx context.Context, user *User) error {
	user.RememberMeToken = nil
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("clear remember-me token: %w", err)
	}
	return nil
}

func (s *Service) auditLoginFailure(ctx context.Context, actor uuid.UUID, email, reason string) {
	s.audit.Log(ctx, actor, audit.EventLoginFailed, email, map[string]string{
		"reason": reason,
	})
}

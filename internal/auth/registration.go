package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/audit"
)

// NormalizeEmail lowercases and trims an address so lookups and the
// uniqueness constraint are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a password-carrying user and its USER principal.
func (s *Service) Register(ctx context.Context, email, password string, displayName *string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	if displayName != nil {
		trimmed := strings.TrimSpace(*displayName)
		if trimmed == "" {
			displayName = nil
		} else {
			displayName = &trimmed
		}
	}

	// 1. Fast-path duplicate check; the unique constraint remains the backstop.
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email uniqueness: %w", err)
	}

	// 2. Hash the password before any row exists.
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// 3. Persist the user, then its principal.
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: &hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
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

	s.audit.Log(ctx, user.ID, audit.EventRegistered, user.ID.String(), map[string]string{
		"email": email,
	})
	return user, nil
}

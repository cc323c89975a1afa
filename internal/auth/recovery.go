package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/notify"
)

const resetTokenBytes = 48

// RequestPasswordReset starts the reset flow. It deliberately reports success
// for every input: whether the address exists, is rate-limited, or the mail
// bounced is invisible to the caller. The real outcome lives in the logs and
// the audit trail.
func (s *Service) RequestPasswordReset(ctx context.Context, email, locale string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return nil
	}

	// Per-address rolling-window limit. The limiter fails open: reset must
	// stay available when the attempt store is not.
	if s.resetAttempts != nil {
		count, err := s.resetAttempts.Record(ctx, email, s.cfg.ResetAttemptWindow)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "reset attempt accounting unavailable", "error", err)
		case count > int64(s.cfg.ResetMaxAttempts):
			s.audit.Log(ctx, uuid.Nil, audit.EventResetRequested, email, map[string]string{
				"outcome": "rate_limited",
			})
			return nil
		}
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			slog.ErrorContext(ctx, "reset lookup failed", "error", err)
		}
		return nil
	}

	token, err := GenerateSecureToken(resetTokenBytes)
	if err != nil {
		slog.ErrorContext(ctx, "reset token generation failed", "error", err)
		return nil
	}

	// A new request supersedes any outstanding token.
	hash := HashToken(token)
	expires := s.now().Add(s.cfg.ResetTokenTTL)
	user.PasswordResetToken = &hash
	user.PasswordResetExpiresAt = &expires
	user.PasswordResetUsedAt = nil
	if err := s.users.Update(ctx, user); err != nil {
		slog.ErrorContext(ctx, "reset token store failed", "error", err)
		return nil
	}

	if err := s.mail.SendPasswordReset(ctx, user.Email, token, locale); err != nil {
		slog.ErrorContext(ctx, "reset mail delivery failed",
			"to_hash", notify.HashRecipient(user.Email),
			"error", err,
		)
	}

	s.audit.Log(ctx, user.ID, audit.EventResetRequested, user.ID.String(), nil)
	return nil
}

// ValidateResetToken resolves a reset cleartext to its user. Valid means: the
// digest matches a user record, the token has not expired, and it has not
// been consumed.
func (s *Service) ValidateResetToken(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrResetTokenInvalid
	}
	user, err := s.users.FindByResetToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("lookup reset token: %w", err)
	}
	if user.PasswordResetUsedAt != nil {
		return nil, ErrResetTokenInvalid
	}
	if user.PasswordResetExpiresAt == nil || !s.now().Before(*user.PasswordResetExpiresAt) {
		return nil, ErrResetTokenInvalid
	}
	return user, nil
}

// ResetPassword consumes a valid reset token and installs the new password.
// The token, its expiry, and every live session die with the old password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (*User, error) {
	user, err := s.ValidateResetToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user.PasswordHash = &hash
	user.PasswordResetToken = nil
	user.PasswordResetExpiresAt = nil
	user.PasswordResetUsedAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("store new password: %w", err)
	}

	if err := s.RevokeAllSessions(ctx, user.ID); err != nil {
		slog.WarnContext(ctx, "session revocation after reset failed",
			"user_id", user.ID,
			"error", err,
		)
	}

	s.audit.Log(ctx, user.ID, audit.EventResetCompleted, user.ID.String(), nil)
	return user, nil
}

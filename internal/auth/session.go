package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/audit"
)

// IssueTokenPair starts a new refresh-token family for the user and returns
// the pair. The access token carries the user's effective permissions as of
// issuance.
func (s *Service) IssueTokenPair(ctx context.Context, user *User) (*TokenPair, error) {
	refresh, err := s.codec.IssueRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	now := s.now()
	record := &RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		FamilyID:  uuid.New(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.refreshTokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	access, err := s.issueAccessFor(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.newPair(access, refresh), nil
}

// RefreshTokenPair redeems a refresh credential for a fresh pair. The stored
// record decides validity, never the signature alone, so a replayed token
// whose JWT has long expired still trips reuse detection.
func (s *Service) RefreshTokenPair(ctx context.Context, presented string) (*TokenPair, error) {
	// 1. Hash and look up. Unknown hashes fail closed.
	record, err := s.refreshTokens.FindByTokenHash(ctx, HashToken(presented))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrAuthenticationRequired
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	// 2. A rotated token being presented again means someone other than the
	//    legitimate holder has a copy. The whole family dies.
	if record.ReplacedBy != nil {
		s.revokeFamilyForReuse(ctx, record)
		return nil, ErrAuthenticationRequired
	}

	// 3. Revoked or expired records are dead ends, with no expiry grace.
	now := s.now()
	if record.RevokedAt != nil || !now.Before(record.ExpiresAt) {
		return nil, ErrAuthenticationRequired
	}

	// 4. The owning user must still exist and its principal be enabled.
	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrAuthenticationRequired
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !s.principalEnabled(ctx, PrincipalKindUser, user.ID.String()) {
		return nil, ErrAuthenticationRequired
	}

	// 5. Rotate within the same family: insert the successor and mark the old
	//    record replaced in one atomic step.
	refresh, err := s.codec.IssueRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	next := &RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(refresh),
		FamilyID:  record.FamilyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.refreshTokens.Rotate(ctx, record.ID, next); err != nil {
		if errors.Is(err, ErrTokenReplaced) {
			// Lost the race against a concurrent rotation of the same record.
			// Indistinguishable from replay, so treated the same way.
			s.revokeFamilyForReuse(ctx, record)
			return nil, ErrAuthenticationRequired
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	access, err := s.issueAccessFor(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, user.ID, audit.EventTokenRefreshed, record.FamilyID.String(), nil)
	return s.newPair(access, refresh), nil
}

// ValidateAccessToken resolves a bearer token to its user. Anything short of
// a live, access-typed token over an enabled principal fails uniformly.
func (s *Service) ValidateAccessToken(ctx context.Context, tokenString string) (*User, error) {
	claims, err := s.codec.Verify(tokenString)
	if err != nil || !claims.IsAccess() {
		return nil, ErrAuthenticationRequired
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrAuthenticationRequired
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrAuthenticationRequired
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !s.principalEnabled(ctx, PrincipalKindUser, user.ID.String()) {
		return nil, ErrAuthenticationRequired
	}
	return user, nil
}

// Logout revokes the refresh token behind the presented credential. Unknown
// or already-dead tokens are a no-op; logout is idempotent.
func (s *Service) Logout(ctx context.Context, presented string) error {
	record, err := s.refreshTokens.FindByTokenHash(ctx, HashToken(presented))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if record.RevokedAt != nil {
		return nil
	}
	if err := s.refreshTokens.Revoke(ctx, record.ID, s.now()); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.audit.Log(ctx, record.UserID, audit.EventLogout, record.FamilyID.String(), nil)
	return nil
}

// RevokeAllSessions kills every live refresh token the user holds, across all
// families and devices.
func (s *Service) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	if err := s.refreshTokens.RevokeAllForUser(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.audit.Log(ctx, userID, audit.EventLogout, userID.String(), map[string]string{
		"scope": "all",
	})
	return nil
}

// ListSessions returns the user's live refresh-token records, one per device
// or client that has not logged out.
func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID) ([]*RefreshToken, error) {
	sessions, err := s.refreshTokens.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeSession revokes one of the user's own sessions by record id. A
// session that is not live, or belongs to someone else, reports
// ErrTokenNotFound.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	sessions, err := s.refreshTokens.FindActiveByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, session := range sessions {
		if session.ID != sessionID {
			continue
		}
		if err := s.refreshTokens.Revoke(ctx, session.ID, s.now()); err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
		s.audit.Log(ctx, userID, audit.EventLogout, session.FamilyID.String(), map[string]string{
			"scope": "session",
		})
		return nil
	}
	return ErrTokenNotFound
}

func (s *Service) issueAccessFor(ctx context.Context, user *User) (string, error) {
	_, permissions := s.resolver.Resolve(ctx, user.ID)
	access, err := s.codec.IssueAccess(user.ID, user.Email, permissions)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return access, nil
}

func (s *Service) newPair(access, refresh string) *TokenPair {
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
	}
}

func (s *Service) revokeFamilyForReuse(ctx context.Context, record *RefreshToken) {
	if err := s.refreshTokens.RevokeFamily(ctx, record.FamilyID, s.now()); err != nil {
		slog.ErrorContext(ctx, "family revocation failed after reuse detection",
			"family_id", record.FamilyID,
			"error", err,
		)
	}
	s.audit.Log(ctx, record.UserID, audit.EventTokenReuse, record.FamilyID.String(), nil)
	s.audit.Log(ctx, record.UserID, audit.EventFamilyRevoked, record.FamilyID.String(), nil)
}

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/auth"
)

func TestIssueTokenPairShape(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "t@x.io", "TestPassword123!")

	pair, err := f.service.IssueTokenPair(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)
}

func TestRefreshRotatesWithinFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "t@x.io", "TestPassword123!")

	pair, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	first, err := f.refreshTokens.FindByTokenHash(ctx, auth.HashToken(pair.RefreshToken))
	require.NoError(t, err)

	next, err := f.service.RefreshTokenPair(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	second, err := f.refreshTokens.FindByTokenHash(ctx, auth.HashToken(next.RefreshToken))
	require.NoError(t, err)
	require.Equal(t, first.FamilyID, second.FamilyID)
	require.Nil(t, second.ReplacedBy)

	// The presented record is now marked replaced, pointing at its successor.
	firstAfter, err := f.refreshTokens.FindByTokenHash(ctx, auth.HashToken(pair.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, firstAfter.ReplacedBy)
	require.Equal(t, second.ID, *firstAfter.ReplacedBy)
}

func TestRefreshReuseRevokesWholeFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "t@x.io", "TestPassword123!")

	pair, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	// A second family on another device must survive the revocation below.
	otherDevice, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	next, err := f.service.RefreshTokenPair(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Replaying the rotated token is reuse: both the old and the freshly
	// issued token in that family die.
	_, err = f.service.RefreshTokenPair(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)

	_, err = f.service.RefreshTokenPair(ctx, next.RefreshToken)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)

	require.True(t, f.hasEvent(audit.EventTokenReuse))
	require.True(t, f.hasEvent(audit.EventFamilyRevoked))

	// The unrelated family still works.
	_, err = f.service.RefreshTokenPair(ctx, otherDevice.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshUnknownTokenFailsClosed(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.RefreshTokenPair(context.Background(), "not-a-token")
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

func TestRefreshExpiredRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "t@x.io", "TestPassword123!")

	pair, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	f.clock.Advance(f.cfg.RefreshTokenTTL + time.Second)

	_, err = f.service.RefreshTokenPair(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

func TestRefreshDisabledPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "t@x.io", "TestPassword123!")

	pair, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	f.disablePrincipal(t, user.ID)

	_, err = f.service.RefreshTokenPair(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "t@x.io", "TestPassword123!")

	pair, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, pair.RefreshToken))
	require.NoError(t, f.service.Logout(ctx, pair.RefreshToken))
	require.NoError(t, f.service.Logout(ctx, "never-issued"))

	_, err = f.service.RefreshTokenPair(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

func TestRevokeAllSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "t@x.io", "TestPassword123!")

	a, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)
	b, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	require.NoError(t, f.service.RevokeAllSessions(ctx, user.ID))

	_, err = f.service.RefreshTokenPair(ctx, a.RefreshToken)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)
	_, err = f.service.RefreshTokenPair(ctx, b.RefreshToken)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)

	sessions, err := f.service.ListSessions(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestListAndRevokeSingleSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "t@x.io", "TestPassword123!")
	other := f.register(t, "other@x.io", "TestPassword123!")

	a, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)
	_, err = f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	sessions, err := f.service.ListSessions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	target, err := f.refreshTokens.FindByTokenHash(ctx, auth.HashToken(a.RefreshToken))
	require.NoError(t, err)

	// Another user cannot revoke a session they do not own.
	require.ErrorIs(t, f.service.RevokeSession(ctx, other.ID, target.ID), auth.ErrTokenNotFound)

	require.NoError(t, f.service.RevokeSession(ctx, user.ID, target.ID))
	require.ErrorIs(t, f.service.RevokeSession(ctx, user.ID, target.ID), auth.ErrTokenNotFound)

	sessions, err = f.service.ListSessions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestValidateAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "t@x.io", "TestPassword123!")

	pair, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	got, err := f.service.ValidateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	// A refresh token is never a valid access credential.
	_, err = f.service.ValidateAccessToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)

	_, err = f.service.ValidateAccessToken(ctx, "garbage")
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)

	f.disablePrincipal(t, user.ID)
	_, err = f.service.ValidateAccessToken(ctx, pair.AccessToken)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

func TestValidateAccessTokenForDeletedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	codec := auth.NewJWTCodec(auth.TokenConfig{Secret: testSecret, Issuer: "test"})
	token, err := codec.IssueAccess(uuid.New(), "ghost@x.io", nil)
	require.NoError(t, err)

	_, err = f.service.ValidateAccessToken(ctx, token)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

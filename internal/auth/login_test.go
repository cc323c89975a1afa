package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidsec/identity/internal/auth"
)

func TestLoginWithoutTOTPReturnsPair(t *testing.T) {
	f := newFixture(t)

	f.register(t, "t@x.io", "TestPassword123!")

	result, err := f.service.Login(context.Background(), "t@x.io", "TestPassword123!")
	require.NoError(t, err)
	assert.False(t, result.RequiresTOTP)
	assert.Empty(t, result.PreAuthToken)
	require.NotNil(t, result.Tokens)
	assert.NotEmpty(t, result.Tokens.AccessToken)
}

func enrollTOTP(t *testing.T, f *fixture, user *auth.User) string {
	t.Helper()
	ctx := context.Background()

	enrollment, err := f.service.SetupTOTP(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://totp/")

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.service.ActivateTOTP(ctx, user, code))
	return enrollment.Secret
}

func TestLoginWithTOTPRequiresSecondFactor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "t@x.io", "TestPassword123!")
	secret := enrollTOTP(t, f, user)

	result, err := f.service.Login(ctx, "t@x.io", "TestPassword123!")
	require.NoError(t, err)
	assert.True(t, result.RequiresTOTP)
	require.NotEmpty(t, result.PreAuthToken)
	assert.Nil(t, result.Tokens)

	// A wrong code is refused; the pre-auth token stays usable.
	_, err = f.service.VerifyTOTP(ctx, result.PreAuthToken, "000000")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	finished, err := f.service.VerifyTOTP(ctx, result.PreAuthToken, code)
	require.NoError(t, err)
	require.NotNil(t, finished.Tokens)
	assert.NotEmpty(t, finished.Tokens.RefreshToken)
}

func TestVerifyTOTPRejectsNonPreAuthTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "t@x.io", "TestPassword123!")
	enrollTOTP(t, f, user)

	pair, err := f.service.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	// An access token must not stand in for the pre-auth token.
	_, err = f.service.VerifyTOTP(ctx, pair.AccessToken, "000000")
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)

	_, err = f.service.VerifyTOTP(ctx, "garbage", "000000")
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

func TestTOTPLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "t@x.io", "TestPassword123!")

	// Activation before setup has nothing to verify against.
	require.ErrorIs(t, f.service.ActivateTOTP(ctx, user, "000000"), auth.ErrTOTPNotConfigured)

	secret := enrollTOTP(t, f, user)
	require.True(t, user.TOTPEnabled)

	// Setting up again while enabled is refused.
	_, err := f.service.SetupTOTP(ctx, user)
	require.ErrorIs(t, err, auth.ErrTOTPAlreadyEnabled)

	// Disable needs one last valid code.
	require.ErrorIs(t, f.service.DisableTOTP(ctx, user, "000000"), auth.ErrInvalidTOTPCode)
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.service.DisableTOTP(ctx, user, code))
	assert.False(t, user.TOTPEnabled)
	assert.Nil(t, user.TOTPSecret)
}

func TestActivateTOTPRejectsWrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "t@x.io", "TestPassword123!")
	_, err := f.service.SetupTOTP(ctx, user)
	require.NoError(t, err)

	require.ErrorIs(t, f.service.ActivateTOTP(ctx, user, "000000"), auth.ErrInvalidTOTPCode)
	assert.False(t, user.TOTPEnabled)
}

func TestRememberMeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "t@x.io", "TestPassword123!")

	token, err := f.service.IssueRememberMeToken(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := f.service.AuthenticateByRememberMe(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// Unknown and blank tokens fail uniformly.
	_, err = f.service.AuthenticateByRememberMe(ctx, "nope")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.service.AuthenticateByRememberMe(ctx, "")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	// A new issuance replaces the old token.
	replacement, err := f.service.IssueRememberMeToken(ctx, got)
	require.NoError(t, err)
	_, err = f.service.AuthenticateByRememberMe(ctx, token)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	// Clearing ends the session.
	require.NoError(t, f.service.ClearRememberMeToken(ctx, got))
	_, err = f.service.AuthenticateByRememberMe(ctx, replacement)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestRememberMeDisabledPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "t@x.io", "TestPassword123!")
	token, err := f.service.IssueRememberMeToken(ctx, user)
	require.NoError(t, err)

	f.disablePrincipal(t, user.ID)

	_, err = f.service.AuthenticateByRememberMe(ctx, token)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

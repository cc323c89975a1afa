package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidsec/identity/internal/auth"
	"github.com/corvidsec/identity/internal/authz"
)

func (f *fixture) seedPermissions(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		err := f.catalog.Create(context.Background(), &authz.Permission{
			ID:   uuid.New(),
			Name: name,
		})
		require.NoError(t, err)
	}
}

func TestRegisterServiceHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPermissions(t, "ledger:post", "ledger:read")

	reg, err := f.service.RegisterService(ctx, "svc-billing", []string{"ledger:post", "ledger:read"})
	require.NoError(t, err)
	require.Equal(t, "svc-billing", reg.ServiceID)
	require.NotEmpty(t, reg.ClientSecret)
	require.ElementsMatch(t, []string{"ledger:post", "ledger:read"}, reg.Permissions)

	// The stored credential is a hash; the cleartext never touches a store.
	cred, err := f.deps.ServiceCreds.FindByPrincipalID(ctx, reg.PrincipalID)
	require.NoError(t, err)
	require.NotEqual(t, reg.ClientSecret, cred.ClientSecretHash)
	require.NotContains(t, cred.ClientSecretHash, reg.ClientSecret)

	p, err := f.principals.FindByID(ctx, reg.PrincipalID)
	require.NoError(t, err)
	assert.Equal(t, auth.PrincipalKindService, p.Kind)
	assert.True(t, p.Enabled)
}

func TestRegisterServiceUnknownPermissionFailsWhole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPermissions(t, "ledger:post")

	_, err := f.service.RegisterService(ctx, "svc-billing", []string{"ledger:post", "ledger:burn"})
	require.ErrorIs(t, err, auth.ErrUnknownPermission)

	// Nothing was written.
	_, err = f.principals.FindByKindAndExternalID(ctx, auth.PrincipalKindService, "svc-billing")
	require.ErrorIs(t, err, auth.ErrPrincipalNotFound)
}

func TestRegisterServiceDuplicateID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.RegisterService(ctx, "svc-billing", nil)
	require.NoError(t, err)

	_, err = f.service.RegisterService(ctx, "svc-billing", nil)
	require.ErrorIs(t, err, auth.ErrServiceIDTaken)
}

func TestRegisterServiceRequiresID(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.RegisterService(context.Background(), "   ", nil)
	require.ErrorIs(t, err, auth.ErrValidation)
}

func TestValidateServiceCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.service.RegisterService(ctx, "svc-billing", nil)
	require.NoError(t, err)

	p, err := f.service.ValidateServiceCredentials(ctx, "svc-billing", reg.ClientSecret)
	require.NoError(t, err)
	require.Equal(t, reg.PrincipalID, p.ID)

	_, err = f.service.ValidateServiceCredentials(ctx, "svc-billing", "wrong-secret")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.service.ValidateServiceCredentials(ctx, "svc-billing", "")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.service.ValidateServiceCredentials(ctx, "svc-unknown", reg.ClientSecret)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestValidateServiceCredentialsDisabledPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.service.RegisterService(ctx, "svc-billing", nil)
	require.NoError(t, err)

	_, err = f.service.SetPrincipalEnabled(ctx, reg.PrincipalID, false)
	require.NoError(t, err)

	_, err = f.service.ValidateServiceCredentials(ctx, "svc-billing", reg.ClientSecret)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestIssueServiceTokenCarriesGrantedPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPermissions(t, "ledger:post")

	reg, err := f.service.RegisterService(ctx, "svc-billing", []string{"ledger:post"})
	require.NoError(t, err)

	token, err := f.service.IssueServiceToken(ctx, "svc-billing", reg.ClientSecret, "svc-ledger")
	require.NoError(t, err)

	codec := newTestCodec()
	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.IsService())
	assert.Equal(t, "svc-billing", claims.Subject)
	assert.Contains(t, claims.Audience, "svc-ledger")
	assert.Equal(t, []string{"ledger:post"}, claims.Permissions)
}

func TestIssueServiceTokenWithoutGrantsHasEmptyPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.service.RegisterService(ctx, "svc-billing", nil)
	require.NoError(t, err)

	token, err := f.service.IssueServiceToken(ctx, "svc-billing", reg.ClientSecret, "svc-ledger")
	require.NoError(t, err)

	permissions, ok := newTestCodec().TokenPermissions(token)
	require.True(t, ok)
	require.NotNil(t, permissions)
	assert.Empty(t, permissions)
}

func TestIssueServiceTokenOnBehalf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, "t@x.io", "TestPassword123!")
	reg, err := f.service.RegisterService(ctx, "svc-billing", nil)
	require.NoError(t, err)

	token, err := f.service.IssueServiceTokenOnBehalf(ctx, "svc-billing", reg.ClientSecret, "svc-ledger", user.ID)
	require.NoError(t, err)

	claims, err := newTestCodec().Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.ActSubject)

	// Acting on behalf of a disabled user is refused.
	f.disablePrincipal(t, user.ID)
	_, err = f.service.IssueServiceTokenOnBehalf(ctx, "svc-billing", reg.ClientSecret, "svc-ledger", user.ID)
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)

	// As is acting for a user that does not exist.
	_, err = f.service.IssueServiceTokenOnBehalf(ctx, "svc-billing", reg.ClientSecret, "svc-ledger", uuid.New())
	require.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidsec/identity/internal/abac"
	"github.com/corvidsec/identity/internal/api"
	"github.com/corvidsec/identity/internal/auth"
	"github.com/corvidsec/identity/internal/authz"
	"github.com/corvidsec/identity/internal/notify"
	"github.com/corvidsec/identity/internal/oauth"
	"github.com/corvidsec/identity/internal/storage/memory"
)

// testServer is the full HTTP surface wired over in-memory stores.
type testServer struct {
	server   *api.Server
	service  *auth.Service
	users    *memory.UserStore
	catalog  *memory.PermissionCatalog
	roles    *memory.RoleStore
	assigns  *memory.RoleAssignmentStore
	policies *memory.PolicyStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	users := memory.NewUserStore()
	catalog := memory.NewPermissionCatalog()
	roles := memory.NewRoleStore(catalog)
	assignments := memory.NewRoleAssignmentStore(roles)
	memberships := memory.NewGroupMembershipStore()
	groupRoles := memory.NewGroupRoleAssignmentStore(roles)
	groups := memory.NewGroupStore()
	policies := memory.NewPolicyStore()
	resolver := authz.NewResolver(roles, assignments, memberships, groupRoles)

	service := auth.NewService(auth.Config{
		RefreshTokenTTL: 720 * time.Hour,
		ResetTokenTTL:   time.Hour,
	}, auth.Deps{
		Users:         users,
		Principals:    memory.NewPrincipalStore(),
		ServiceCreds:  memory.NewServiceCredentialStore(),
		ServicePerms:  memory.NewServicePermissionStore(catalog),
		RefreshTokens: memory.NewRefreshTokenStore(),
		ResetAttempts: memory.NewResetAttemptStore(),
		Catalog:       catalog,
		Resolver:      resolver,
		Hasher:        auth.NewArgon2Hasher(auth.Argon2Params{MemoryKiB: 8, Iterations: 1, Parallelism: 1}),
		Codec:         auth.NewJWTCodec(auth.TokenConfig{Secret: "router-test-secret-0123456789abcdef", Issuer: "test"}),
		Providers: oauth.NewRegistry(
			oauth.NewStaticProvider("acme", map[string]oauth.Claims{
				"good-assertion": {Email: "fed@x.io", Name: "Fed User"},
			}),
		),
		Mail: &notify.DevMailer{Logger: slog.Default(), AppBaseURL: "http://app.test"},
	})

	server := api.NewServer(api.Options{
		Auth: service,
		RBAC: api.RBACDeps{
			Roles:       roles,
			Permissions: catalog,
			Groups:      groups,
			Memberships: memberships,
			Assignments: assignments,
			GroupRoles:  groupRoles,
			Resolver:    resolver,
		},
		Policies: policies,
		Engine:   abac.NewEngine(policies),
		// Generous limits so tests never trip the per-IP buckets.
		RateLimitRPS:   10000,
		RateLimitBurst: 10000,
	})

	return &testServer{
		server:   server,
		service:  service,
		users:    users,
		catalog:  catalog,
		roles:    roles,
		assigns:  assignments,
		policies: policies,
	}
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.server.Router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

type tokenPairBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (ts *testServer) register(t *testing.T, email, password string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (ts *testServer) login(t *testing.T, email, password string) tokenPairBody {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[tokenPairBody](t, rec)
}

func (ts *testServer) registerAndLogin(t *testing.T, email, password string) tokenPairBody {
	t.Helper()
	ts.register(t, email, password)
	return ts.login(t, email, password)
}

// grantAdmin gives an existing user the permission behind the /admin surface.
// Only tokens issued afterwards carry it.
func (ts *testServer) grantAdmin(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()

	perm, err := ts.catalog.FindByName(ctx, api.PermissionAdmin)
	if err != nil {
		perm = &authz.Permission{ID: uuid.New(), Name: api.PermissionAdmin}
		require.NoError(t, ts.catalog.Create(ctx, perm))
	}

	role := &authz.Role{ID: uuid.New(), Name: "identity-admin-" + uuid.NewString()[:8]}
	require.NoError(t, ts.roles.Create(ctx, role))
	require.NoError(t, ts.roles.GrantPermission(ctx, role.ID, perm.ID))

	user, err := ts.users.FindByEmail(ctx, email)
	require.NoError(t, err)
	require.NoError(t, ts.assigns.Assign(ctx, &authz.RoleAssignment{UserID: user.ID, RoleID: role.ID}))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])

	// Nil pool and client skip their probes; the process itself is ready.
	rec = ts.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "t@x.io",
		"password": "TestPassword123!",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody[map[string]interface{}](t, rec)
	assert.Equal(t, "t@x.io", body["email"])
	assert.NotContains(t, rec.Body.String(), "password")

	// Duplicate email is a client error, not a 500.
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "t@x.io",
		"password": "TestPassword123!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []map[string]string{
		{"email": "not-an-email", "password": "TestPassword123!"},
		{"email": "t@x.io", "password": ""},
		{"email": "t@x.io", "password": "weak"},
	}
	for _, body := range cases {
		rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
	}

	// Unknown fields are rejected outright.
	rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "t@x.io", "password": "TestPassword123!", "admin": "true",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "t@x.io", "TestPassword123!")

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)

	// Wrong password and unknown account produce the identical response.
	recWrong := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "t@x.io", "password": "WrongPassword123!",
	})
	recUnknown := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ghost@x.io", "password": "WrongPassword123!",
	})
	assert.Equal(t, http.StatusUnauthorized, recWrong.Code)
	assert.Equal(t, http.StatusUnauthorized, recUnknown.Code)
	assert.JSONEq(t, recWrong.Body.String(), recUnknown.Body.String())
}

func TestRefreshEndpoint(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "t@x.io", "TestPassword123!")

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decodeBody[tokenPairBody](t, rec)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// Replaying the rotated token trips reuse detection; the successor dies
	// with it.
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": next.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/oauth/acme", "", map[string]string{
		"assertion": "good-assertion",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pair := decodeBody[tokenPairBody](t, rec)
	assert.NotEmpty(t, pair.AccessToken)

	rec = ts.do(t, http.MethodPost, "/api/v1/auth/oauth/acme", "", map[string]string{
		"assertion": "forged",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/auth/oauth/globex", "", map[string]string{
		"assertion": "good-assertion",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "t@x.io", "TestPassword123!")

	rec := ts.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]map[string]interface{}](t, rec)
	assert.Equal(t, "t@x.io", body["user"]["email"])

	// A refresh token is not a login credential.
	rec = ts.do(t, http.MethodGet, "/api/v1/me", pair.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceTokenEndpointAndUserOnlyRoutes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	reg, err := ts.service.RegisterService(ctx, "svc-billing", nil)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/v1/service/token", "", map[string]string{
		"service_id":    "svc-billing",
		"client_secret": reg.ClientSecret,
		"audience":      "svc-ledger",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]interface{}](t, rec)
	serviceToken, _ := body["access_token"].(string)
	require.NotEmpty(t, serviceToken)

	// Service principals authenticate, but the self-service surface is
	// user-only.
	rec = ts.do(t, http.MethodGet, "/api/v1/me", serviceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Bad credentials collapse to one 401.
	rec = ts.do(t, http.MethodPost, "/api/v1/service/token", "", map[string]string{
		"service_id":    "svc-billing",
		"client_secret": "wrong",
		"audience":      "svc-ledger",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminSurfaceRequiresPermission(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "plain@x.io", "TestPassword123!")

	rec := ts.do(t, http.MethodGet, "/api/v1/admin/roles", pair.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Register first, grant, then log in so the token carries the permission.
	ts.register(t, "admin@x.io", "TestPassword123!")
	ts.grantAdmin(t, "admin@x.io")
	adminPair := ts.login(t, "admin@x.io", "TestPassword123!")
	rec = ts.do(t, http.MethodGet, "/api/v1/admin/roles", adminPair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPasswordResetEndpointsDoNotLeakAccounts(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndLogin(t, "t@x.io", "TestPassword123!")

	recKnown := ts.do(t, http.MethodPost, "/api/v1/auth/password-reset/request", "", map[string]string{
		"email": "t@x.io",
	})
	recUnknown := ts.do(t, http.MethodPost, "/api/v1/auth/password-reset/request", "", map[string]string{
		"email": "ghost@x.io",
	})
	assert.Equal(t, http.StatusOK, recKnown.Code)
	assert.Equal(t, http.StatusOK, recUnknown.Code)
	assert.JSONEq(t, recKnown.Body.String(), recUnknown.Body.String())

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/password-reset/validate", "", map[string]string{
		"token": "not-a-real-token",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEvaluateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, ts.policies.Create(ctx, &abac.Policy{
		ID:        uuid.New(),
		Name:      "deny-contractors",
		Effect:    abac.EffectDeny,
		Condition: `{"eq": {"subject.contractor": true}}`,
		IsActive:  true,
	}))

	ts.register(t, "admin@x.io", "TestPassword123!")
	ts.grantAdmin(t, "admin@x.io")
	pair := ts.login(t, "admin@x.io", "TestPassword123!")

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/authz/evaluate", pair.AccessToken, map[string]interface{}{
		"subject": map[string]interface{}{"contractor": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]interface{}](t, rec)
	assert.Equal(t, "DENY", body["decision"])
	assert.Equal(t, abac.ReasonDenied, body["reason"])

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/authz/evaluate", pair.AccessToken, map[string]interface{}{
		"subject": map[string]interface{}{"contractor": false},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[map[string]interface{}](t, rec)
	assert.Nil(t, body["decision"])
	assert.Equal(t, abac.ReasonNoMatch, body["reason"])
}

func TestPolicyCRUDWithVersioning(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "admin@x.io", "TestPassword123!")
	ts.grantAdmin(t, "admin@x.io")
	pair := ts.login(t, "admin@x.io", "TestPassword123!")

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/policies", pair.AccessToken, map[string]interface{}{
		"name":      "deny-contractors",
		"effect":    "DENY",
		"condition": `{"eq": {"subject.contractor": true}}`,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]interface{}](t, rec)
	policyID, _ := created["id"].(string)
	require.NotEmpty(t, policyID)
	assert.Equal(t, float64(1), created["version"])

	// Bad effect and non-JSON condition never reach the store.
	rec = ts.do(t, http.MethodPost, "/api/v1/admin/policies", pair.AccessToken, map[string]interface{}{
		"name": "bad", "effect": "MAYBE", "condition": `{"eq": {"subject.a": 1}}`,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/admin/policies", pair.AccessToken, map[string]interface{}{
		"name": "bad", "effect": "DENY", "condition": "contractor == true",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	update := map[string]interface{}{
		"name":      "deny-contractors",
		"effect":    "DENY",
		"condition": `{"eq": {"subject.contractor": true}}`,
		"is_active": false,
		"version":   1,
	}
	rec = ts.do(t, http.MethodPut, "/api/v1/admin/policies/"+policyID, pair.AccessToken, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Replaying the same version is a concurrent-modification conflict.
	rec = ts.do(t, http.MethodPut, "/api/v1/admin/policies/"+policyID, pair.AccessToken, update)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/admin/policies/"+policyID, pair.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/policies/"+policyID, pair.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "t@x.io", "TestPassword123!")

	rec := ts.do(t, http.MethodPost, "/api/v1/auth/logout", pair.AccessToken, map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	pair := ts.registerAndLogin(t, "t@x.io", "TestPassword123!")

	// Second login adds a second session.
	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "t@x.io", "password": "TestPassword123!",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/sessions", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sessions := decodeBody[[]map[string]interface{}](t, rec)
	require.Len(t, sessions, 2)

	sessionID, _ := sessions[0]["id"].(string)
	require.NotEmpty(t, sessionID)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/sessions/%s", sessionID), pair.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/sessions", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions = decodeBody[[]map[string]interface{}](t, rec)
	assert.Len(t, sessions, 1)
}

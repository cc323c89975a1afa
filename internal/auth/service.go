package auth

import (
	"context"
	"errors"
	"time"

	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/authz"
	"github.com/corvidsec/identity/internal/crypto"
	"github.com/corvidsec/identity/internal/notify"
	"github.com/corvidsec/identity/internal/oauth"
)

var (
	// ErrInvalidCredentials is the single failure surface for every
	// authentication path. Callers never learn whether the account is
	// missing, the password wrong, or the principal disabled.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthenticationRequired covers token-based paths: missing, expired,
	// tampered, wrong-type, revoked, or reused credentials.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrValidation marks caller input the service refuses to act on.
	ErrValidation = errors.New("validation failed")

	ErrPasswordPolicy    = errors.New("password does not meet policy")
	ErrUnknownProvider   = errors.New("unsupported oauth provider")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrServiceIDTaken    = errors.New("service id already registered")
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
)

// Config holds the service-level tuning knobs.
type Config struct {
	RefreshTokenTTL    time.Duration // 720h default
	ResetTokenTTL      time.Duration // 1h default
	ResetMaxAttempts   int           // 3 default
	ResetAttemptWindow time.Duration // 1h default
}

func (c *Config) applyDefaults() {
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = 720 * time.Hour
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = time.Hour
	}
	if c.ResetMaxAttempts <= 0 {
		c.ResetMaxAttempts = 3
	}
	if c.ResetAttemptWindow <= 0 {
		c.ResetAttemptWindow = time.Hour
	}
}

// Service orchestrates credentials, tokens, and principals. It is agnostic of
// HTTP transport and of the store implementations behind its interfaces.
type Service struct {
	cfg Config

	users         UserStore
	principals    PrincipalStore
	serviceCreds  ServiceCredentialStore
	servicePerms  ServicePermissionStore
	refreshTokens RefreshTokenStore
	resetAttempts PasswordResetAttemptStore

	catalog  authz.PermissionCatalog
	resolver *authz.Resolver

	hasher    PasswordHasher
	codec     TokenCodec
	totp      *TOTPService
	sealer    crypto.Sealer
	providers *oauth.Registry
	mail      notify.EmailSender
	audit     audit.Logger

	now func() time.Time
}

// Deps bundles the collaborators for NewService; every field is required
// except Sealer (defaults to a no-op) and Now (defaults to time.Now).
type Deps struct {
	Users         UserStore
	Principals    PrincipalStore
	ServiceCreds  ServiceCredentialStore
	ServicePerms  ServicePermissionStore
	RefreshTokens RefreshTokenStore
	ResetAttempts PasswordResetAttemptStore
	Catalog       authz.PermissionCatalog
	Resolver      *authz.Resolver
	Hasher        PasswordHasher
	Codec         TokenCodec
	TOTP          *TOTPService
	Sealer        crypto.Sealer
	Providers     *oauth.Registry
	Mail          notify.EmailSender
	Audit         audit.Logger
	Now           func() time.Time
}

func NewService(cfg Config, deps Deps) *Service {
	cfg.applyDefaults()
	if deps.Sealer == nil {
		deps.Sealer = crypto.NoopSealer{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}
	if deps.TOTP == nil {
		deps.TOTP = NewTOTPService("", deps.Sealer)
	}
	return &Service{
		cfg:           cfg,
		users:         deps.Users,
		principals:    deps.Principals,
		serviceCreds:  deps.ServiceCreds,
		servicePerms:  deps.ServicePerms,
		refreshTokens: deps.RefreshTokens,
		resetAttempts: deps.ResetAttempts,
		catalog:       deps.Catalog,
		resolver:      deps.Resolver,
		hasher:        deps.Hasher,
		codec:         deps.Codec,
		totp:          deps.TOTP,
		sealer:        deps.Sealer,
		providers:     deps.Providers,
		mail:          deps.Mail,
		audit:         deps.Audit,
		now:           deps.Now,
	}
}

// principalEnabled reports whether the principal behind an authentication
// exists and is enabled. Every authenticate* operation ends with this check.
func (s *Service) principalEnabled(ctx context.Context, kind PrincipalKind, externalID string) bool {
	p, err := s.principals.FindByKindAndExternalID(ctx, kind, externalID)
	return err == nil && p.Enabled
}

// Resolver exposes the authorization resolver for transport-level consumers.
func (s *Service) Resolver() *authz.Resolver { return s.resolver }

// ServiceTokenTTL reports the lifetime stamped on issued service tokens.
func (s *Service) ServiceTokenTTL() time.Duration { return s.codec.ServiceTTL() }

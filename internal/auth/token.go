package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Token type claim values.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeService = "service"
	TokenTypePreAuth = "mfa"
)

// minSecretBytes is the floor below which the signing secret gets a startup
// warning. Shorter secrets still work so local setups stay painless.
const minSecretBytes = 32

// TokenCodec defines the contract for issuing and verifying signed tokens.
type TokenCodec interface {
	IssueAccess(userID uuid.UUID, email string, permissions []string) (string, error)
	IssueRefresh(userID uuid.UUID) (string, error)
	IssuePreAuth(userID uuid.UUID) (string, error)
	IssueService(serviceID, audience string, permissions []string) (string, error)
	IssueServiceOnBehalf(serviceID, audience string, permissions []string, userID uuid.UUID, userPermissions []string) (string, error)
	Verify(tokenString string) (*Claims, error)
	AccessTTL() time.Duration
	ServiceTTL() time.Duration
}

// Claims defines the custom JWT claims.
//
// Permissions deliberately has no omitempty: access and service tokens must
// carry the claim even when the list is empty, so consumers never branch on
// its absence.
type Claims struct {
	Email          string   `json:"email,omitempty"`
	TokenType      string   `json:"type"`
	Permissions    []string `json:"permissions"`
	ActSubject     string   `json:"act_sub,omitempty"`
	ActPermissions []string `json:"act_permissions,omitempty"`
	jwt.RegisteredClaims
}

// compactClaims is the payload for refresh and pre-auth tokens, which carry no
// permission or email claims.
type compactClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim as a user id.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

func (c *Claims) IsAccess() bool  { return c.TokenType == TokenTypeAccess }
func (c *Claims) IsRefresh() bool { return c.TokenType == TokenTypeRefresh }
func (c *Claims) IsService() bool { return c.TokenType == TokenTypeService }
func (c *Claims) IsPreAuth() bool { return c.TokenType == TokenTypePreAuth }

// TokenConfig tunes the codec. Zero durations fall back to the defaults noted
// per field.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration // 15m
	RefreshTTL time.Duration // 720h
	PreAuthTTL time.Duration // 5m
	ServiceTTL time.Duration // 1h
}

// JWTCodec implements TokenCodec using HMAC-SHA256 over a single process-wide
// secret. Key material is immutable for the process lifetime.
type JWTCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	preAuthTTL time.Duration
	serviceTTL time.Duration
}

// NewJWTCodec creates the codec. A secret shorter than 32 bytes is accepted
// but logged loudly at startup.
func NewJWTCodec(cfg TokenConfig) *JWTCodec {
	if len(cfg.Secret) < minSecretBytes {
		slog.Warn("JWT signing secret is shorter than 32 bytes; use cmd/keygen to generate a stronger one",
			"secret_bytes", len(cfg.Secret),
		)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 720 * time.Hour
	}
	if cfg.PreAuthTTL <= 0 {
		cfg.PreAuthTTL = 5 * time.Minute
	}
	if cfg.ServiceTTL <= 0 {
		cfg.ServiceTTL = time.Hour
	}
	return &JWTCodec{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		preAuthTTL: cfg.PreAuthTTL,
		serviceTTL: cfg.ServiceTTL,
	}
}

// AccessTTL reports the configured access-token lifetime.
func (c *JWTCodec) AccessTTL() time.Duration { return c.accessTTL }

// ServiceTTL reports the configured service-token lifetime.
func (c *JWTCodec) ServiceTTL() time.Duration { return c.serviceTTL }

// registered builds the shared claim set. IssuedAt and NotBefore are backdated
// one minute to absorb clock skew between nodes.
func (c *JWTCodec) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now.Add(-1 * time.Minute)),
		NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Minute)),
		Issuer:    c.issuer,
		ID:        uuid.NewString(),
	}
}

func (c *JWTCodec) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueAccess creates a short-lived access token. The permissions claim is
// always present, normalized to an empty array when the caller passes nil.
func (c *JWTCodec) IssueAccess(userID uuid.UUID, email string, permissions []string) (string, error) {
	if permissions == nil {
		permissions = []string{}
	}
	return c.sign(Claims{
		Email:            email,
		TokenType:        TokenTypeAccess,
		Permissions:      permissions,
		RegisteredClaims: c.registered(userID.String(), c.accessTTL),
	})
}

// IssueRefresh creates the signed refresh credential. Its server-side record,
// not the signature, decides validity; the jti keeps every issuance unique so
// the stored hash never collides.
func (c *JWTCodec) IssueRefresh(userID uuid.UUID) (string, error) {
	return c.sign(compactClaims{
		TokenType:        TokenTypeRefresh,
		RegisteredClaims: c.registered(userID.String(), c.refreshTTL),
	})
}

// IssuePreAuth creates the short-lived token bridging password login and TOTP
// verification.
func (c *JWTCodec) IssuePreAuth(userID uuid.UUID) (string, error) {
	return c.sign(compactClaims{
		TokenType:        TokenTypePreAuth,
		RegisteredClaims: c.registered(userID.String(), c.preAuthTTL),
	})
}

// IssueService creates a token for service-to-service calls. The subject is
// the service id and the audience names the target service.
func (c *JWTCodec) IssueService(serviceID, audience string, permissions []string) (string, error) {
	if permissions == nil {
		permissions = []string{}
	}
	reg := c.registered(serviceID, c.serviceTTL)
	reg.Audience = jwt.ClaimStrings{audience}
	return c.sign(Claims{
		TokenType:        TokenTypeService,
		Permissions:      permissions,
		RegisteredClaims: reg,
	})
}

// IssueServiceOnBehalf is IssueService plus propagated user context, for
// services acting on behalf of an already-authenticated user.
func (c *JWTCodec) IssueServiceOnBehalf(serviceID, audience string, permissions []string, userID uuid.UUID, userPermissions []string) (string, error) {
	if permissions == nil {
		permissions = []string{}
	}
	if userPermissions == nil {
		userPermissions = []string{}
	}
	reg := c.registered(serviceID, c.serviceTTL)
	reg.Audience = jwt.ClaimStrings{audience}
	return c.sign(Claims{
		TokenType:        TokenTypeService,
		Permissions:      permissions,
		ActSubject:       userID.String(),
		ActPermissions:   userPermissions,
		RegisteredClaims: reg,
	})
}

// Verify parses and verifies a signed token. Expired tokens map to
// ErrExpiredToken; every other failure, including a missing type claim, maps
// to ErrInvalidToken. Callers branch on presence, not on cause.
func (c *JWTCodec) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsAccess reports whether tokenString is a well-formed, live access token.
// Anything else, including garbage input, is false.
func (c *JWTCodec) IsAccess(tokenString string) bool {
	claims, err := c.Verify(tokenString)
	return err == nil && claims.IsAccess()
}

// IsRefresh is the refresh-token counterpart of IsAccess.
func (c *JWTCodec) IsRefresh(tokenString string) bool {
	claims, err := c.Verify(tokenString)
	return err == nil && claims.IsRefresh()
}

// Subject returns the token subject, or false for any invalid token.
func (c *JWTCodec) Subject(tokenString string) (string, bool) {
	claims, err := c.Verify(tokenString)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// TokenPermissions returns the permissions claim, or false for invalid tokens
// and token types that do not carry one.
func (c *JWTCodec) TokenPermissions(tokenString string) ([]string, bool) {
	claims, err := c.Verify(tokenString)
	if err != nil || claims.Permissions == nil {
		return nil, false
	}
	return claims.Permissions, true
}

// ExpiresAt returns the token expiry, or false for any invalid token.
func (c *JWTCodec) ExpiresAt(tokenString string) (time.Time, bool) {
	claims, err := c.Verify(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

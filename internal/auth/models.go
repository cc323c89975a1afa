package auth

import (
	"time"

	"github.com/google/uuid"
)

// PrincipalKind discriminates the two caller populations.
type PrincipalKind string

const (
	PrincipalKindUser    PrincipalKind = "USER"
	PrincipalKindService PrincipalKind = "SERVICE"
)

// Principal is the unifying identity record. ExternalID equals the user id for
// USER principals and the caller-chosen service id for SERVICE principals;
// (Kind, ExternalID) is unique. Version backs optimistic concurrency on
// enable/disable.
type Principal struct {
	ID         uuid.UUID
	Kind       PrincipalKind
	ExternalID string
	Enabled    bool
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// User is a USER-kind principal's profile. PasswordHash is nil for
// federated-only accounts. RememberMeToken and PasswordResetToken store
// SHA-256 hex of the issued values, never cleartext.
type User struct {
	ID                     uuid.UUID
	Email                  string
	DisplayName            *string
	PasswordHash           *string
	RememberMeToken        *string
	PasswordResetToken     *string
	PasswordResetExpiresAt *time.Time
	PasswordResetUsedAt    *time.Time
	TOTPEnabled            bool
	TOTPSecret             *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ServiceCredential is the secret material of a SERVICE principal. The
// cleartext secret exists only in the registration response.
type ServiceCredential struct {
	PrincipalID      uuid.UUID
	ClientSecretHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RefreshToken is the server-side record controlling one opaque refresh
// credential. All rotations derived from one initial issuance share FamilyID.
type RefreshToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	FamilyID   uuid.UUID
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID
}

// Consumable reports whether the record can still be redeemed at now: not
// revoked, not rotated away, not expired. Expiry has no grace window.
func (t *RefreshToken) Consumable(now time.Time) bool {
	return t.RevokedAt == nil && t.ReplacedBy == nil && now.Before(t.ExpiresAt)
}

// TokenPair is what clients receive from login, refresh, and TOTP exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ServiceRegistration is returned exactly once at service registration;
// ClientSecret is never recoverable afterwards.
type ServiceRegistration struct {
	PrincipalID  uuid.UUID `json:"principal_id"`
	ServiceID    string    `json:"service_id"`
	ClientSecret string    `json:"client_secret"`
	Permissions  []string  `json:"permissions"`
}

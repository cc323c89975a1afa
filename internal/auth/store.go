package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store-level sentinels. Postgres and in-memory implementations map their
// native failures onto these so the services never see driver errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrTokenNotFound      = errors.New("refresh token not found")
	ErrCredentialNotFound = errors.New("service credential not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrPrincipalExists    = errors.New("principal already exists")
	ErrVersionConflict    = errors.New("stale version")
	// ErrTokenReplaced is returned by Rotate when a concurrent rotation of the
	// same record won the race; the caller treats it as a reuse event.
	ErrTokenReplaced = errors.New("refresh token already rotated")
)

// UserStore persists USER profiles. Email lookups are case-insensitive; token
// lookups take the SHA-256 hex of the presented value.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByRememberMeToken(ctx context.Context, tokenHash string) (*User, error)
	FindByResetToken(ctx context.Context, tokenHash string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
}

// PrincipalStore persists the unified principal records.
type PrincipalStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	FindByKindAndExternalID(ctx context.Context, kind PrincipalKind, externalID string) (*Principal, error)
	Create(ctx context.Context, p *Principal) error
	// Update writes Enabled and bumps Version; a stale Version returns
	// ErrVersionConflict.
	Update(ctx context.Context, p *Principal) error
}

// ServiceCredentialStore persists SERVICE secret hashes.
type ServiceCredentialStore interface {
	FindByPrincipalID(ctx context.Context, principalID uuid.UUID) (*ServiceCredential, error)
	Create(ctx context.Context, cred *ServiceCredential) error
	Update(ctx context.Context, cred *ServiceCredential) error
}

// ServicePermissionStore records which catalog permissions were granted to a
// SERVICE principal at registration time.
type ServicePermissionStore interface {
	Grant(ctx context.Context, principalID uuid.UUID, permissionIDs []uuid.UUID) error
	ListNames(ctx context.Context, principalID uuid.UUID) ([]string, error)
}

// RefreshTokenStore persists refresh-token records. Rotate must be atomic:
// insert next and set replaced_by on the old record in one transaction, with
// the unique token_hash constraint and a replaced_by IS NULL guard deciding
// races between concurrent rotations.
type RefreshTokenStore interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	FindActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*RefreshToken, error)
	FindByFamilyID(ctx context.Context, familyID uuid.UUID) ([]*RefreshToken, error)
	Create(ctx context.Context, token *RefreshToken) error
	Rotate(ctx context.Context, oldID uuid.UUID, next *RefreshToken) error
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error
	RevokeFamily(ctx context.Context, familyID uuid.UUID, at time.Time) error
}

// PasswordResetAttemptStore tracks reset requests per identifier for rate
// limiting. Record registers one attempt and returns the count inside the
// rolling window, including the one just recorded.
type PasswordResetAttemptStore interface {
	Record(ctx context.Context, email string, window time.Duration) (int64, error)
}

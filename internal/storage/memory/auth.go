// Package memory implements every store interface on mutex-guarded maps. It
// backs the test suites and local development without Postgres or Redis.
// Records are copied on the way in and out so callers cannot mutate store
// state except through the interface.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/auth"
)

// UserStore is the in-memory auth.UserStore.
type UserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*auth.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uuid.UUID]*auth.User)}
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	c.DisplayName = clonePtr(u.DisplayName)
	c.PasswordHash = clonePtr(u.PasswordHash)
	c.RememberMeToken = clonePtr(u.RememberMeToken)
	c.PasswordResetToken = clonePtr(u.PasswordResetToken)
	c.PasswordResetExpiresAt = clonePtr(u.PasswordResetExpiresAt)
	c.PasswordResetUsedAt = clonePtr(u.PasswordResetUsedAt)
	c.TOTPSecret = clonePtr(u.TOTPSecret)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *UserStore) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, auth.ErrUserNotFound
}

func (s *UserStore) FindByRememberMeToken(_ context.Context, tokenHash string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.RememberMeToken != nil && *u.RememberMeToken == tokenHash {
			return cloneUser(u), nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *UserStore) FindByResetToken(_ context.Context, tokenHash string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == tokenHash {
			return cloneUser(u), nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return auth.ErrEmailExists
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *UserStore) Update(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return auth.ErrUserNotFound
	}
	for id, u := range s.users {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return auth.ErrEmailExists
		}
	}
	user.UpdatedAt = time.Now()
	s.users[user.ID] = cloneUser(user)
	return nil
}

// PrincipalStore is the in-memory auth.PrincipalStore.
type PrincipalStore struct {
	mu         sync.RWMutex
	principals map[uuid.UUID]*auth.Principal
}

func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{principals: make(map[uuid.UUID]*auth.Principal)}
}

func (s *PrincipalStore) FindByID(_ context.Context, id uuid.UUID) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.principals[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, auth.ErrPrincipalNotFound
}

func (s *PrincipalStore) FindByKindAndExternalID(_ context.Context, kind auth.PrincipalKind, externalID string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.principals {
		if p.Kind == kind && p.ExternalID == externalID {
			c := *p
			return &c, nil
		}
	}
	return nil, auth.ErrPrincipalNotFound
}

func (s *PrincipalStore) Create(_ context.Context, p *auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.principals {
		if existing.Kind == p.Kind && existing.ExternalID == p.ExternalID {
			return auth.ErrPrincipalExists
		}
	}
	now := time.Now()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	c := *p
	s.principals[p.ID] = &c
	return nil
}

func (s *PrincipalStore) Update(_ context.Context, p *auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.principals[p.ID]
	if !ok {
		return auth.ErrPrincipalNotFound
	}
	if existing.Version != p.Version {
		return auth.ErrVersionConflict
	}
	p.Version++
	p.UpdatedAt = time.Now()
	c := *p
	s.principals[p.ID] = &c
	return nil
}

// ServiceCredentialStore is the in-memory auth.ServiceCredentialStore.
type ServiceCredentialStore struct {
	mu    sync.RWMutex
	creds map[uuid.UUID]*auth.ServiceCredential
}

func NewServiceCredentialStore() *ServiceCredentialStore {
	return &ServiceCredentialStore{creds: make(map[uuid.UUID]*auth.ServiceCredential)}
}

func (s *ServiceCredentialStore) FindByPrincipalID(_ context.Context, principalID uuid.UUID) (*auth.ServiceCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.creds[principalID]; ok {
		cc := *c
		return &cc, nil
	}
	return nil, auth.ErrCredentialNotFound
}

func (s *ServiceCredentialStore) Create(_ context.Context, cred *auth.ServiceCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cred.CreatedAt = now
	cred.UpdatedAt = now
	c := *cred
	s.creds[cred.PrincipalID] = &c
	return nil
}

func (s *ServiceCredentialStore) Update(_ context.Context, cred *auth.ServiceCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[cred.PrincipalID]; !ok {
		return auth.ErrCredentialNotFound
	}
	cred.UpdatedAt = time.Now()
	c := *cred
	s.creds[cred.PrincipalID] = &c
	return nil
}

// ServicePermissionStore is the in-memory auth.ServicePermissionStore. It
// resolves names through the permission catalog it is constructed with.
type ServicePermissionStore struct {
	mu      sync.RWMutex
	grants  map[uuid.UUID][]uuid.UUID
	catalog *PermissionCatalog
}

func NewServicePermissionStore(catalog *PermissionCatalog) *ServicePermissionStore {
	return &ServicePermissionStore{
		grants:  make(map[uuid.UUID][]uuid.UUID),
		catalog: catalog,
	}
}

func (s *ServicePermissionStore) Grant(_ context.Context, principalID uuid.UUID, permissionIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.grants[principalID]
	seen := make(map[uuid.UUID]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range permissionIDs {
		if !seen[id] {
			existing = append(existing, id)
			seen[id] = true
		}
	}
	s.grants[principalID] = existing
	return nil
}

func (s *ServicePermissionStore) ListNames(ctx context.Context, principalID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	ids := append([]uuid.UUID(nil), s.grants[principalID]...)
	s.mu.RUnlock()

	names := []string{}
	for _, id := range ids {
		p, err := s.catalog.FindByID(ctx, id)
		if err != nil {
			continue
		}
		names = append(names, p.Name)
	}
	return names, nil
}

// RefreshTokenStore is the in-memory auth.RefreshTokenStore. Rotate carries
// the same replaced_by guard as the Postgres implementation so reuse and race
// tests run against identical semantics.
type RefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*auth.RefreshToken
	now    func() time.Time
}

func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{
		tokens: make(map[uuid.UUID]*auth.RefreshToken),
		now:    time.Now,
	}
}

// SetClock overrides the store clock; tests use it to cross expiry windows.
func (s *RefreshTokenStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func cloneToken(t *auth.RefreshToken) *auth.RefreshToken {
	c := *t
	c.RevokedAt = clonePtr(t.RevokedAt)
	c.ReplacedBy = clonePtr(t.ReplacedBy)
	return &c
}

func (s *RefreshTokenStore) FindByTokenHash(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash {
			return cloneToken(t), nil
		}
	}
	return nil, auth.ErrTokenNotFound
}

func (s *RefreshTokenStore) FindActiveByUserID(_ context.Context, userID uuid.UUID) ([]*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	active := []*auth.RefreshToken{}
	for _, t := range s.tokens {
		if t.UserID == userID && t.Consumable(now) {
			active = append(active, cloneToken(t))
		}
	}
	return active, nil
}

func (s *RefreshTokenStore) FindByFamilyID(_ context.Context, familyID uuid.UUID) ([]*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	family := []*auth.RefreshToken{}
	for _, t := range s.tokens {
		if t.FamilyID == familyID {
			family = append(family, cloneToken(t))
		}
	}
	return family, nil
}

func (s *RefreshTokenStore) Create(_ context.Context, token *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = cloneToken(token)
	return nil
}

func (s *RefreshTokenStore) Rotate(_ context.Context, oldID uuid.UUID, next *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tokens[oldID]
	if !ok {
		return auth.ErrTokenNotFound
	}
	if old.ReplacedBy != nil {
		return auth.ErrTokenReplaced
	}
	s.tokens[next.ID] = cloneToken(next)
	nextID := next.ID
	old.ReplacedBy = &nextID
	return nil
}

func (s *RefreshTokenStore) Revoke(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[id]; ok && t.RevokedAt == nil {
		t.RevokedAt = &at
	}
	return nil
}

func (s *RefreshTokenStore) RevokeAllForUser(_ context.Context, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			at := at
			t.RevokedAt = &at
		}
	}
	return nil
}

func (s *RefreshTokenStore) RevokeFamily(_ context.Context, familyID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			at := at
			t.RevokedAt = &at
		}
	}
	return nil
}

// ResetAttemptStore is the in-memory auth.PasswordResetAttemptStore with a
// true rolling window.
type ResetAttemptStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewResetAttemptStore() *ResetAttemptStore {
	return &ResetAttemptStore{
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// SetClock overrides the store clock for window tests.
func (s *ResetAttemptStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *ResetAttemptStore) Record(_ context.Context, email string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cutoff := now.Add(-window)

	kept := s.attempts[email][:0]
	for _, at := range s.attempts[email] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	s.attempts[email] = kept
	return int64(len(kept)), nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvidsec/identity/internal/auth"
)

const principalColumns = `id, kind, external_id, enabled, version, created_at, updated_at`

// PrincipalStore is the pgx implementation of auth.PrincipalStore.
type PrincipalStore struct {
	pool *pgxpool.Pool
}

func NewPrincipalStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{pool: pool}
}

func scanPrincipal(row pgx.Row) (*auth.Principal, error) {
	p := &auth.Principal{}
	err := row.Scan(
		&p.ID,
		&p.Kind,
		&p.ExternalID,
		&p.Enabled,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) FindByID(ctx context.Context, id uuid.UUID) (*auth.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return scanPrincipal(s.pool.QueryRow(ctx, query, id))
}

func (s *PrincipalStore) FindByKindAndExternalID(ctx context.Context, kind auth.PrincipalKind, externalID string) (*auth.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE kind = $1 AND external_id = $2`
	return scanPrincipal(s.pool.QueryRow(ctx, query, kind, externalID))
}

func (s *PrincipalStore) Create(ctx context.Context, p *auth.Principal) error {
	const query = `
		INSERT INTO principals (id, kind, external_id, enabled, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, now(), now())`

	_, err := s.pool.Exec(ctx, query, p.ID, p.Kind, p.ExternalID, p.Enabled)
	if err != nil {
		if isUniqueViolation(err, "principals_kind_external_id_key") {
			return auth.ErrPrincipalExists
		}
		return fmt.Errorf("insert principal: %w", err)
	}
	p.Version = 1
	return nil
}

// Update writes Enabled guarded by the optimistic version counter.
func (s *PrincipalStore) Update(ctx context.Context, p *auth.Principal) error {
	const query = `
		UPDATE principals SET enabled = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3`

	tag, err := s.pool.Exec(ctx, query, p.ID, p.Enabled, p.Version)
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or someone else bumped the version first.
		if _, findErr := s.FindByID(ctx, p.ID); findErr != nil {
			return findErr
		}
		return auth.ErrVersionConflict
	}
	p.Version++
	return nil
}

// ServiceCredentialStore is the pgx implementation of
// auth.ServiceCredentialStore.
type ServiceCredentialStore struct {
	pool *pgxpool.Pool
}

func NewServiceCredentialStore(pool *pgxpool.Pool) *ServiceCredentialStore {
	return &ServiceCredentialStore{pool: pool}
}

func (s *ServiceCredentialStore) FindByPrincipalID(ctx context.Context, principalID uuid.UUID) (*auth.ServiceCredential, error) {
	const query = `
		SELECT principal_id, client_secret_hash, created_at, updated_at
		FROM service_credentials WHERE principal_id = $1`

	cred := &auth.ServiceCredential{}
	err := s.pool.QueryRow(ctx, query, principalID).Scan(
		&cred.PrincipalID,
		&cred.ClientSecretHash,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("scan service credential: %w", err)
	}
	return cred, nil
}

func (s *ServiceCredentialStore) Create(ctx context.Context, cred *auth.ServiceCredential) error {
	const query = `
		INSERT INTO service_credentials (principal_id, client_secret_hash, created_at, updated_at)
		VALUES ($1, $2, now(), now())`

	if _, err := s.pool.Exec(ctx, query, cred.PrincipalID, cred.ClientSecretHash); err != nil {
		return fmt.Errorf("insert service credential: %w", err)
	}
	return nil
}

func (s *ServiceCredentialStore) Update(ctx context.Context, cred *auth.ServiceCredential) error {
	const query = `
		UPDATE service_credentials SET client_secret_hash = $2, updated_at = now()
		WHERE principal_id = $1`

	tag, err := s.pool.Exec(ctx, query, cred.PrincipalID, cred.ClientSecretHash)
	if err != nil {
		return fmt.Errorf("update service credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrCredentialNotFound
	}
	return nil
}

// ServicePermissionStore is the pgx implementation of
// auth.ServicePermissionStore.
type ServicePermissionStore struct {
	pool *pgxpool.Pool
}

func NewServicePermissionStore(pool *pgxpool.Pool) *ServicePermissionStore {
	return &ServicePermissionStore{pool: pool}
}

func (s *ServicePermissionStore) Grant(ctx context.Context, principalID uuid.UUID, permissionIDs []uuid.UUID) error {
	const query = `
		INSERT INTO service_permissions (principal_id, permission_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, principalID, permissionIDs); err != nil {
		return fmt.Errorf("grant service permissions: %w", err)
	}
	return nil
}

func (s *ServicePermissionStore) ListNames(ctx context.Context, principalID uuid.UUID) ([]string, error) {
	const query = `
		SELECT p.name
		FROM service_permissions sp
		JOIN permissions p ON p.id = sp.permission_id
		WHERE sp.principal_id = $1
		ORDER BY p.name`

	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("list service permissions: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan permission name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

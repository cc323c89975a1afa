package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvidsec/identity/internal/authz"
)

const roleColumns = `id, name, description, version, created_at, updated_at`

// RoleStore is the pgx implementation of authz.RoleStore.
type RoleStore struct {
	pool *pgxpool.Pool
}

func NewRoleStore(pool *pgxpool.Pool) *RoleStore {
	return &RoleStore{pool: pool}
}

func scanRole(row pgx.Row) (*authz.Role, error) {
	role := &authz.Role{}
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Version, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]*authz.Role, error) {
	defer rows.Close()
	roles := []*authz.Role{}
	for rows.Next() {
		role := &authz.Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Version, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *RoleStore) FindByID(ctx context.Context, id uuid.UUID) (*authz.Role, error) {
	const query = `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	return scanRole(s.pool.QueryRow(ctx, query, id))
}

func (s *RoleStore) FindByName(ctx context.Context, name string) (*authz.Role, error) {
	const query = `SELECT ` + roleColumns + ` FROM roles WHERE name = $1`
	return scanRole(s.pool.QueryRow(ctx, query, name))
}

func (s *RoleStore) List(ctx context.Context) ([]*authz.Role, error) {
	const query = `SELECT ` + roleColumns + ` FROM roles ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	return collectRoles(rows)
}

func (s *RoleStore) Create(ctx context.Context, role *authz.Role) error {
	const query = `
		INSERT INTO roles (id, name, description, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, now(), now())`

	if _, err := s.pool.Exec(ctx, query, role.ID, role.Name, role.Description); err != nil {
		if isUniqueViolation(err, "roles_name_key") {
			return authz.ErrRoleExists
		}
		return fmt.Errorf("insert role: %w", err)
	}
	role.Version = 1
	return nil
}

func (s *RoleStore) Update(ctx context.Context, role *authz.Role) error {
	const query = `
		UPDATE roles SET name = $2, description = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $4`

	tag, err := s.pool.Exec(ctx, query, role.ID, role.Name, role.Description, role.Version)
	if err != nil {
		if isUniqueViolation(err, "roles_name_key") {
			return authz.ErrRoleExists
		}
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, findErr := s.FindByID(ctx, role.ID); findErr != nil {
			return findErr
		}
		return authz.ErrVersionConflict
	}
	role.Version++
	return nil
}

func (s *RoleStore) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM roles WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}
	return nil
}

func (s *RoleStore) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	const query = `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, roleID, permissionID); err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	return nil
}

func (s *RoleStore) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	const query = `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`
	if _, err := s.pool.Exec(ctx, query, roleID, permissionID); err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}
	return nil
}

func (s *RoleStore) PermissionsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]*authz.Permission, error) {
	const query = `
		SELECT DISTINCT p.id, p.name, p.description, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = ANY($1)
		ORDER BY p.name`

	rows, err := s.pool.Query(ctx, query, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	return collectPermissions(rows)
}

// PermissionCatalog is the pgx implementation of authz.PermissionCatalog.
type PermissionCatalog struct {
	pool *pgxpool.Pool
}

func NewPermissionCatalog(pool *pgxpool.Pool) *PermissionCatalog {
	return &PermissionCatalog{pool: pool}
}

func scanPermission(row pgx.Row) (*authz.Permission, error) {
	p := &authz.Permission{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}
	return p, nil
}

func collectPermissions(rows pgx.Rows) ([]*authz.Permission, error) {
	defer rows.Close()
	perms := []*authz.Permission{}
	for rows.Next() {
		p := &authz.Permission{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *PermissionCatalog) FindByID(ctx context.Context, id uuid.UUID) (*authz.Permission, error) {
	const query = `SELECT id, name, description, created_at FROM permissions WHERE id = $1`
	return scanPermission(s.pool.QueryRow(ctx, query, id))
}

func (s *PermissionCatalog) FindByName(ctx context.Context, name string) (*authz.Permission, error) {
	const query = `SELECT id, name, description, created_at FROM permissions WHERE name = $1`
	return scanPermission(s.pool.QueryRow(ctx, query, name))
}

// FindByNames resolves every name or fails naming the first missing one.
func (s *PermissionCatalog) FindByNames(ctx context.Context, names []string) ([]*authz.Permission, error) {
	if len(names) == 0 {
		return []*authz.Permission{}, nil
	}

	const query = `SELECT id, name, description, created_at FROM permissions WHERE name = ANY($1)`
	rows, err := s.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	perms, err := collectPermissions(rows)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*authz.Permission, len(perms))
	for _, p := range perms {
		byName[p.Name] = p
	}
	// Preserve request order and catch unknowns, duplicates included once.
	out := make([]*authz.Permission, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", authz.ErrPermissionNotFound, name)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PermissionCatalog) List(ctx context.Context) ([]*authz.Permission, error) {
	const query = `SELECT id, name, description, created_at FROM permissions ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	return collectPermissions(rows)
}

func (s *PermissionCatalog) Create(ctx context.Context, p *authz.Permission) error {
	const query = `
		INSERT INTO permissions (id, name, description, created_at)
		VALUES ($1, $2, $3, now())`

	if _, err := s.pool.Exec(ctx, query, p.ID, p.Name, p.Description); err != nil {
		if isUniqueViolation(err, "permissions_name_key") {
			return authz.ErrPermissionExists
		}
		return fmt.Errorf("insert permission: %w", err)
	}
	return nil
}

func (s *PermissionCatalog) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM permissions WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authz.ErrPermissionNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvidsec/identity/internal/authz"
)

// windowPredicate is the shared validity filter: NULL ends are open, the
// lower bound is inclusive, the upper bound exclusive.
const windowPredicate = `(valid_from IS NULL OR valid_from <= $2) AND (valid_to IS NULL OR valid_to > $2)`

// GroupStore is the pgx implementation of authz.GroupStore.
type GroupStore struct {
	pool *pgxpool.Pool
}

func NewGroupStore(pool *pgxpool.Pool) *GroupStore {
	return &GroupStore{pool: pool}
}

func scanGroup(row pgx.Row) (*authz.Group, error) {
	g := &authz.Group{}
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrGroupNotFound
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	return g, nil
}

func (s *GroupStore) FindByID(ctx context.Context, id uuid.UUID) (*authz.Group, error) {
	const query = `SELECT id, name, description, created_at FROM groups WHERE id = $1`
	return scanGroup(s.pool.QueryRow(ctx, query, id))
}

func (s *GroupStore) FindByName(ctx context.Context, name string) (*authz.Group, error) {
	const query = `SELECT id, name, description, created_at FROM groups WHERE name = $1`
	return scanGroup(s.pool.QueryRow(ctx, query, name))
}

func (s *GroupStore) List(ctx context.Context) ([]*authz.Group, error) {
	const query = `SELECT id, name, description, created_at FROM groups ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := []*authz.Group{}
	for rows.Next() {
		g := &authz.Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *GroupStore) Create(ctx context.Context, g *authz.Group) error {
	const query = `INSERT INTO groups (id, name, description, created_at) VALUES ($1, $2, $3, now())`
	if _, err := s.pool.Exec(ctx, query, g.ID, g.Name, g.Description); err != nil {
		if isUniqueViolation(err, "groups_name_key") {
			return authz.ErrGroupExists
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *GroupStore) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM groups WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authz.ErrGroupNotFound
	}
	return nil
}

// GroupMembershipStore is the pgx implementation of
// authz.GroupMembershipStore.
type GroupMembershipStore struct {
	pool *pgxpool.Pool
}

func NewGroupMembershipStore(pool *pgxpool.Pool) *GroupMembershipStore {
	return &GroupMembershipStore{pool: pool}
}

func (s *GroupMembershipStore) Add(ctx context.Context, m *authz.GroupMembership) error {
	const query = `
		INSERT INTO group_memberships (user_id, group_id, valid_from, valid_to)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, group_id) DO UPDATE SET valid_from = $3, valid_to = $4`

	if _, err := s.pool.Exec(ctx, query, m.UserID, m.GroupID, m.ValidFrom, m.ValidTo); err != nil {
		return fmt.Errorf("add group membership: %w", err)
	}
	return nil
}

func (s *GroupMembershipStore) Remove(ctx context.Context, userID, groupID uuid.UUID) error {
	const query = `DELETE FROM group_memberships WHERE user_id = $1 AND group_id = $2`
	if _, err := s.pool.Exec(ctx, query, userID, groupID); err != nil {
		return fmt.Errorf("remove group membership: %w", err)
	}
	return nil
}

func (s *GroupMembershipStore) GroupIDsForUser(ctx context.Context, userID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	const query = `
		SELECT group_id FROM group_memberships
		WHERE user_id = $1 AND ` + windowPredicate

	rows, err := s.pool.Query(ctx, query, userID, at)
	if err != nil {
		return nil, fmt.Errorf("query group memberships: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *GroupMembershipStore) MembersOfGroup(ctx context.Context, groupID uuid.UUID) ([]*authz.GroupMembership, error) {
	const query = `
		SELECT user_id, group_id, valid_from, valid_to
		FROM group_memberships WHERE group_id = $1`

	rows, err := s.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	members := []*authz.GroupMembership{}
	for rows.Next() {
		m := &authz.GroupMembership{}
		if err := rows.Scan(&m.UserID, &m.GroupID, &m.ValidFrom, &m.ValidTo); err != nil {
			return nil, fmt.Errorf("scan group membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RoleAssignmentStore is the pgx implementation of authz.RoleAssignmentStore.
type RoleAssignmentStore struct {
	pool *pgxpool.Pool
}

func NewRoleAssignmentStore(pool *pgxpool.Pool) *RoleAssignmentStore {
	return &RoleAssignmentStore{pool: pool}
}

func (s *RoleAssignmentStore) Assign(ctx context.Context, a *authz.RoleAssignment) error {
	const query = `
		INSERT INTO role_assignments (user_id, role_id, valid_from, valid_to)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO UPDATE SET valid_from = $3, valid_to = $4`

	if _, err := s.pool.Exec(ctx, query, a.UserID, a.RoleID, a.ValidFrom, a.ValidTo); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (s *RoleAssignmentStore) Remove(ctx context.Context, userID, roleID uuid.UUID) error {
	const query = `DELETE FROM role_assignments WHERE user_id = $1 AND role_id = $2`
	if _, err := s.pool.Exec(ctx, query, userID, roleID); err != nil {
		return fmt.Errorf("remove role assignment: %w", err)
	}
	return nil
}

func (s *RoleAssignmentStore) RolesForUser(ctx context.Context, userID uuid.UUID, at time.Time) ([]*authz.Role, error) {
	const query = `
		SELECT r.id, r.name, r.description, r.version, r.created_at, r.updated_at
		FROM roles r
		JOIN role_assignments ra ON ra.role_id = r.id
		WHERE ra.user_id = $1 AND (ra.valid_from IS NULL OR ra.valid_from <= $2) AND (ra.valid_to IS NULL OR ra.valid_to > $2)
		ORDER BY r.name`

	rows, err := s.pool.Query(ctx, query, userID, at)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	return collectRoles(rows)
}

// GroupRoleAssignmentStore is the pgx implementation of
// authz.GroupRoleAssignmentStore.
type GroupRoleAssignmentStore struct {
	pool *pgxpool.Pool
}

func NewGroupRoleAssignmentStore(pool *pgxpool.Pool) *GroupRoleAssignmentStore {
	return &GroupRoleAssignmentStore{pool: pool}
}

func (s *GroupRoleAssignmentStore) Assign(ctx context.Context, a *authz.GroupRoleAssignment) error {
	const query = `
		INSERT INTO group_role_assignments (group_id, role_id, valid_from, valid_to)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, role_id) DO UPDATE SET valid_from = $3, valid_to = $4`

	if _, err := s.pool.Exec(ctx, query, a.GroupID, a.RoleID, a.ValidFrom, a.ValidTo); err != nil {
		return fmt.Errorf("assign group role: %w", err)
	}
	return nil
}

func (s *GroupRoleAssignmentStore) Remove(ctx context.Context, groupID, roleID uuid.UUID) error {
	const query = `DELETE FROM group_role_assignments WHERE group_id = $1 AND role_id = $2`
	if _, err := s.pool.Exec(ctx, query, groupID, roleID); err != nil {
		return fmt.Errorf("remove group role assignment: %w", err)
	}
	return nil
}

func (s *GroupRoleAssignmentStore) RolesForGroups(ctx context.Context, groupIDs []uuid.UUID, at time.Time) ([]*authz.Role, error) {
	const query = `
		SELECT DISTINCT r.id, r.name, r.description, r.version, r.created_at, r.updated_at
		FROM roles r
		JOIN group_role_assignments gra ON gra.role_id = r.id
		WHERE gra.group_id = ANY($1) AND (gra.valid_from IS NULL OR gra.valid_from <= $2) AND (gra.valid_to IS NULL OR gra.valid_to > $2)
		ORDER BY r.name`

	rows, err := s.pool.Query(ctx, query, groupIDs, at)
	if err != nil {
		return nil, fmt.Errorf("query group roles: %w", err)
	}
	return collectRoles(rows)
}

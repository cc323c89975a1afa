package authz

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RoleStore persists roles and the role→permission edges.
type RoleStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Create(ctx context.Context, role *Role) error
	// Update writes Name and Description and bumps Version; a stale Version
	// returns ErrVersionConflict.
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id uuid.UUID) error

	GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	// PermissionsForRoles returns the union of permissions owned by the given
	// roles, deduplicated.
	PermissionsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]*Permission, error)
}

// PermissionCatalog persists the canonical permission names.
type PermissionCatalog interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
	// FindByNames resolves each name; any unknown name fails the whole call
	// with ErrPermissionNotFound wrapping the missing name.
	FindByNames(ctx context.Context, names []string) ([]*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	Create(ctx context.Context, p *Permission) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// GroupStore persists groups.
type GroupStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Group, error)
	FindByName(ctx context.Context, name string) (*Group, error)
	List(ctx context.Context) ([]*Group, error)
	Create(ctx context.Context, g *Group) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// GroupMembershipStore persists user↔group edges.
type GroupMembershipStore interface {
	Add(ctx context.Context, m *GroupMembership) error
	Remove(ctx context.Context, userID, groupID uuid.UUID) error
	// GroupIDsForUser returns the groups whose membership window covers at.
	GroupIDsForUser(ctx context.Context, userID uuid.UUID, at time.Time) ([]uuid.UUID, error)
	MembersOfGroup(ctx context.Context, groupID uuid.UUID) ([]*GroupMembership, error)
}

// RoleAssignmentStore persists direct user→role grants.
type RoleAssignmentStore interface {
	Assign(ctx context.Context, a *RoleAssignment) error
	Remove(ctx context.Context, userID, roleID uuid.UUID) error
	// RolesForUser returns the directly assigned roles whose window covers at.
	RolesForUser(ctx context.Context, userID uuid.UUID, at time.Time) ([]*Role, error)
}

// GroupRoleAssignmentStore persists group→role grants.
type GroupRoleAssignmentStore interface {
	Assign(ctx context.Context, a *GroupRoleAssignment) error
	Remove(ctx context.Context, groupID, roleID uuid.UUID) error
	// RolesForGroups returns the union of roles granted to the given groups
	// whose window covers at.
	RolesForGroups(ctx context.Context, groupIDs []uuid.UUID, at time.Time) ([]*Role, error)
}

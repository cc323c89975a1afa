package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Subject is the caller-supplied profile slice the resolver stamps onto the
// AuthContext. The resolver itself never loads user records.
type Subject struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
}

// AuthContext is the effective identity of a request. Roles and Permissions
// are always non-nil, so access-token claims built from them are always valid
// arrays.
type AuthContext struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

// HasPermission reports whether the context carries the named permission.
func (a *AuthContext) HasPermission(name string) bool {
	for _, p := range a.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// Resolver assembles effective roles and permissions: direct role assignments
// unioned with roles inherited through current group memberships, then the
// union of permissions those roles own. Store failures degrade the affected
// dimension to an empty list; they never surface to the caller and never
// widen access.
type Resolver struct {
	roles       RoleStore
	assignments RoleAssignmentStore
	memberships GroupMembershipStore
	groupRoles  GroupRoleAssignmentStore

	now func() time.Time
}

func NewResolver(roles RoleStore, assignments RoleAssignmentStore, memberships GroupMembershipStore, groupRoles GroupRoleAssignmentStore) *Resolver {
	return &Resolver{
		roles:       roles,
		assignments: assignments,
		memberships: memberships,
		groupRoles:  groupRoles,
		now:         time.Now,
	}
}

// resolveRoles returns the deduplicated role set for a user, direct and
// group-inherited, windowed to now.
func (r *Resolver) resolveRoles(ctx context.Context, userID uuid.UUID) ([]*Role, error) {
	at := r.now()

	direct, err := r.assignments.RolesForUser(ctx, userID, at)
	if err != nil {
		return nil, fmt.Errorf("load direct roles: %w", err)
	}

	groupIDs, err := r.memberships.GroupIDsForUser(ctx, userID, at)
	if err != nil {
		return nil, fmt.Errorf("load group memberships: %w", err)
	}

	var inherited []*Role
	if len(groupIDs) > 0 {
		inherited, err = r.groupRoles.RolesForGroups(ctx, groupIDs, at)
		if err != nil {
			return nil, fmt.Errorf("load group roles: %w", err)
		}
	}

	seen := make(map[uuid.UUID]bool, len(direct)+len(inherited))
	out := make([]*Role, 0, len(direct)+len(inherited))
	for _, role := range append(direct, inherited...) {
		if !seen[role.ID] {
			seen[role.ID] = true
			out = append(out, role)
		}
	}
	return out, nil
}

// Resolve returns the effective role names and permission names for a user.
// Both slices are non-nil and sorted. A failure loading roles empties both
// dimensions; a failure loading permissions empties only permissions.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (roleNames, permissionNames []string) {
	roleNames = []string{}
	permissionNames = []string{}

	roles, err := r.resolveRoles(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "role resolution degraded to empty", "user_id", userID, "error", err)
		return roleNames, permissionNames
	}

	roleIDs := make([]uuid.UUID, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
		roleIDs = append(roleIDs, role.ID)
	}
	sort.Strings(roleNames)

	if len(roleIDs) == 0 {
		return roleNames, permissionNames
	}

	perms, err := r.roles.PermissionsForRoles(ctx, roleIDs)
	if err != nil {
		slog.WarnContext(ctx, "permission resolution degraded to empty", "user_id", userID, "error", err)
		return roleNames, permissionNames
	}

	seen := make(map[string]bool, len(perms))
	for _, p := range perms {
		if !seen[p.Name] {
			seen[p.Name] = true
			permissionNames = append(permissionNames, p.Name)
		}
	}
	sort.Strings(permissionNames)

	return roleNames, permissionNames
}

// BuildContext resolves the subject's grants into an AuthContext.
func (r *Resolver) BuildContext(ctx context.Context, sub Subject) *AuthContext {
	roles, permissions := r.Resolve(ctx, sub.ID)
	return &AuthContext{
		UserID:      sub.ID,
		Email:       sub.Email,
		DisplayName: sub.DisplayName,
		Roles:       roles,
		Permissions: permissions,
	}
}

// RolesForUsers resolves role names for a batch of users. Users whose lookup
// failed are absent from the map; absence means no grants.
func (r *Resolver) RolesForUsers(ctx context.Context, userIDs []uuid.UUID) map[uuid.UUID][]string {
	out := make(map[uuid.UUID][]string, len(userIDs))
	for _, id := range userIDs {
		roles, err := r.resolveRoles(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "batch role resolution skipped user", "user_id", id, "error", err)
			continue
		}
		names := make([]string, 0, len(roles))
		for _, role := range roles {
			names = append(names, role.Name)
		}
		sort.Strings(names)
		out[id] = names
	}
	return out
}

// PermissionsForUsers resolves permission names for a batch of users, with
// the same absence semantics as RolesForUsers.
func (r *Resolver) PermissionsForUsers(ctx context.Context, userIDs []uuid.UUID) map[uuid.UUID][]string {
	out := make(map[uuid.UUID][]string, len(userIDs))
	for _, id := range userIDs {
		_, perms := r.Resolve(ctx, id)
		out[id] = perms
	}
	return out
}

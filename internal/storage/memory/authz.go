package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/authz"
)

// RoleStore is the in-memory authz.RoleStore.
type RoleStore struct {
	mu     sync.RWMutex
	roles  map[uuid.UUID]*authz.Role
	grants map[uuid.UUID]map[uuid.UUID]bool // role id -> permission ids

	catalog *PermissionCatalog
}

func NewRoleStore(catalog *PermissionCatalog) *RoleStore {
	return &RoleStore{
		roles:   make(map[uuid.UUID]*authz.Role),
		grants:  make(map[uuid.UUID]map[uuid.UUID]bool),
		catalog: catalog,
	}
}

func (s *RoleStore) FindByID(_ context.Context, id uuid.UUID) (*authz.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.roles[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, authz.ErrRoleNotFound
}

func (s *RoleStore) FindByName(_ context.Context, name string) (*authz.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			c := *r
			return &c, nil
		}
	}
	return nil, authz.ErrRoleNotFound
}

func (s *RoleStore) List(_ context.Context) ([]*authz.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*authz.Role{}
	for _, r := range s.roles {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (s *RoleStore) Create(_ context.Context, role *authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == role.Name {
			return authz.ErrRoleExists
		}
	}
	now := time.Now()
	role.Version = 1
	role.CreatedAt = now
	role.UpdatedAt = now
	c := *role
	s.roles[role.ID] = &c
	return nil
}

func (s *RoleStore) Update(_ context.Context, role *authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.roles[role.ID]
	if !ok {
		return authz.ErrRoleNotFound
	}
	if existing.Version != role.Version {
		return authz.ErrVersionConflict
	}
	for id, r := range s.roles {
		if id != role.ID && r.Name == role.Name {
			return authz.ErrRoleExists
		}
	}
	role.Version++
	role.UpdatedAt = time.Now()
	c := *role
	s.roles[role.ID] = &c
	return nil
}

func (s *RoleStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return authz.ErrRoleNotFound
	}
	delete(s.roles, id)
	delete(s.grants, id)
	return nil
}

func (s *RoleStore) GrantPermission(_ context.Context, roleID, permissionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[roleID] == nil {
		s.grants[roleID] = make(map[uuid.UUID]bool)
	}
	s.grants[roleID][permissionID] = true
	return nil
}

func (s *RoleStore) RevokePermission(_ context.Context, roleID, permissionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[roleID], permissionID)
	return nil
}

func (s *RoleStore) PermissionsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]*authz.Permission, error) {
	s.mu.RLock()
	ids := make(map[uuid.UUID]bool)
	for _, roleID := range roleIDs {
		for permID := range s.grants[roleID] {
			ids[permID] = true
		}
	}
	s.mu.RUnlock()

	perms := []*authz.Permission{}
	for id := range ids {
		p, err := s.catalog.FindByID(ctx, id)
		if err != nil {
			continue
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// PermissionCatalog is the in-memory authz.PermissionCatalog.
type PermissionCatalog struct {
	mu    sync.RWMutex
	perms map[uuid.UUID]*authz.Permission
}

func NewPermissionCatalog() *PermissionCatalog {
	return &PermissionCatalog{perms: make(map[uuid.UUID]*authz.Permission)}
}

func (s *PermissionCatalog) FindByID(_ context.Context, id uuid.UUID) (*authz.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.perms[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, authz.ErrPermissionNotFound
}

func (s *PermissionCatalog) FindByName(_ context.Context, name string) (*authz.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.perms {
		if p.Name == name {
			c := *p
			return &c, nil
		}
	}
	return nil, authz.ErrPermissionNotFound
}

func (s *PermissionCatalog) FindByNames(ctx context.Context, names []string) ([]*authz.Permission, error) {
	out := []*authz.Permission{}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		p, err := s.FindByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", authz.ErrPermissionNotFound, name)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PermissionCatalog) List(_ context.Context) ([]*authz.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*authz.Permission{}
	for _, p := range s.perms {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (s *PermissionCatalog) Create(_ context.Context, p *authz.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.perms {
		if existing.Name == p.Name {
			return authz.ErrPermissionExists
		}
	}
	p.CreatedAt = time.Now()
	c := *p
	s.perms[p.ID] = &c
	return nil
}

func (s *PermissionCatalog) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[id]; !ok {
		return authz.ErrPermissionNotFound
	}
	delete(s.perms, id)
	return nil
}

// GroupStore is the in-memory authz.GroupStore.
type GroupStore struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*authz.Group
}

func NewGroupStore() *GroupStore {
	return &GroupStore{groups: make(map[uuid.UUID]*authz.Group)}
}

func (s *GroupStore) FindByID(_ context.Context, id uuid.UUID) (*authz.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.groups[id]; ok {
		c := *g
		return &c, nil
	}
	return nil, authz.ErrGroupNotFound
}

func (s *GroupStore) FindByName(_ context.Context, name string) (*authz.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Name == name {
			c := *g
			return &c, nil
		}
	}
	return nil, authz.ErrGroupNotFound
}

func (s *GroupStore) List(_ context.Context) ([]*authz.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*authz.Group{}
	for _, g := range s.groups {
		c := *g
		out = append(out, &c)
	}
	return out, nil
}

func (s *GroupStore) Create(_ context.Context, g *authz.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if existing.Name == g.Name {
			return authz.ErrGroupExists
		}
	}
	g.CreatedAt = time.Now()
	c := *g
	s.groups[g.ID] = &c
	return nil
}

func (s *GroupStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return authz.ErrGroupNotFound
	}
	delete(s.groups, id)
	return nil
}

// GroupMembershipStore is the in-memory authz.GroupMembershipStore.
type GroupMembershipStore struct {
	mu      sync.RWMutex
	members []*authz.GroupMembership
}

func NewGroupMembershipStore() *GroupMembershipStore {
	return &GroupMembershipStore{}
}

func (s *GroupMembershipStore) Add(_ context.Context, m *authz.GroupMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.members {
		if existing.UserID == m.UserID && existing.GroupID == m.GroupID {
			c := *m
			s.members[i] = &c
			return nil
		}
	}
	c := *m
	s.members = append(s.members, &c)
	return nil
}

func (s *GroupMembershipStore) Remove(_ context.Context, userID, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.members {
		if m.UserID == userID && m.GroupID == groupID {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *GroupMembershipStore) GroupIDsForUser(_ context.Context, userID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := []uuid.UUID{}
	for _, m := range s.members {
		if m.UserID == userID && m.Window.Contains(at) {
			ids = append(ids, m.GroupID)
		}
	}
	return ids, nil
}

func (s *GroupMembershipStore) MembersOfGroup(_ context.Context, groupID uuid.UUID) ([]*authz.GroupMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*authz.GroupMembership{}
	for _, m := range s.members {
		if m.GroupID == groupID {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

// RoleAssignmentStore is the in-memory authz.RoleAssignmentStore.
type RoleAssignmentStore struct {
	mu          sync.RWMutex
	assignments []*authz.RoleAssignment
	roles       *RoleStore
}

func NewRoleAssignmentStore(roles *RoleStore) *RoleAssignmentStore {
	return &RoleAssignmentStore{roles: roles}
}

func (s *RoleAssignmentStore) Assign(_ context.Context, a *authz.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.assignments {
		if existing.UserID == a.UserID && existing.RoleID == a.RoleID {
			c := *a
			s.assignments[i] = &c
			return nil
		}
	}
	c := *a
	s.assignments = append(s.assignments, &c)
	return nil
}

func (s *RoleAssignmentStore) Remove(_ context.Context, userID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assignments {
		if a.UserID == userID && a.RoleID == roleID {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *RoleAssignmentStore) RolesForUser(ctx context.Context, userID uuid.UUID, at time.Time) ([]*authz.Role, error) {
	s.mu.RLock()
	roleIDs := []uuid.UUID{}
	for _, a := range s.assignments {
		if a.UserID == userID && a.Window.Contains(at) {
			roleIDs = append(roleIDs, a.RoleID)
		}
	}
	s.mu.RUnlock()

	roles := []*authz.Role{}
	for _, id := range roleIDs {
		r, err := s.roles.FindByID(ctx, id)
		if err != nil {
			continue
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// GroupRoleAssignmentStore is the in-memory authz.GroupRoleAssignmentStore.
type GroupRoleAssignmentStore struct {
	mu          sync.RWMutex
	assignments []*authz.GroupRoleAssignment
	roles       *RoleStore
}

func NewGroupRoleAssignmentStore(roles *RoleStore) *GroupRoleAssignmentStore {
	return &GroupRoleAssignmentStore{roles: roles}
}

func (s *GroupRoleAssignmentStore) Assign(_ context.Context, a *authz.GroupRoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.assignments {
		if existing.GroupID == a.GroupID && existing.RoleID == a.RoleID {
			c := *a
			s.assignments[i] = &c
			return nil
		}
	}
	c := *a
	s.assignments = append(s.assignments, &c)
	return nil
}

func (s *GroupRoleAssignmentStore) Remove(_ context.Context, groupID, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assignments {
		if a.GroupID == groupID && a.RoleID == roleID {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *GroupRoleAssignmentStore) RolesForGroups(ctx context.Context, groupIDs []uuid.UUID, at time.Time) ([]*authz.Role, error) {
	s.mu.RLock()
	wanted := make(map[uuid.UUID]bool, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = true
	}
	roleIDs := make(map[uuid.UUID]bool)
	for _, a := range s.assignments {
		if wanted[a.GroupID] && a.Window.Contains(at) {
			roleIDs[a.RoleID] = true
		}
	}
	s.mu.RUnlock()

	roles := []*authz.Role{}
	for id := range roleIDs {
		r, err := s.roles.FindByID(ctx, id)
		if err != nil {
			continue
		}
		roles = append(roles, r)
	}
	return roles, nil
}

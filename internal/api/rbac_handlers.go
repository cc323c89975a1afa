package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/api/helpers"
	customMiddleware "github.com/corvidsec/identity/internal/api/middleware"
	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/authz"
)

// RBACHandler serves the admin surface for roles, permissions, groups, and
// their assignments.
type RBACHandler struct {
	roles       authz.RoleStore
	permissions authz.PermissionCatalog
	groups      authz.GroupStore
	memberships authz.GroupMembershipStore
	assignments authz.RoleAssignmentStore
	groupRoles  authz.GroupRoleAssignmentStore
	resolver    *authz.Resolver
	audit       audit.Logger
}

// RBACDeps bundles the stores behind the handler.
type RBACDeps struct {
	Roles       authz.RoleStore
	Permissions authz.PermissionCatalog
	Groups      authz.GroupStore
	Memberships authz.GroupMembershipStore
	Assignments authz.RoleAssignmentStore
	GroupRoles  authz.GroupRoleAssignmentStore
	Resolver    *authz.Resolver
	Audit       audit.Logger
}

func NewRBACHandler(deps RBACDeps) *RBACHandler {
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}
	return &RBACHandler{
		roles:       deps.Roles,
		permissions: deps.Permissions,
		groups:      deps.Groups,
		memberships: deps.Memberships,
		assignments: deps.Assignments,
		groupRoles:  deps.GroupRoles,
		resolver:    deps.Resolver,
		audit:       deps.Audit,
	}
}

// actor returns the calling user's id for the audit trail, or uuid.Nil for
// service callers.
func actor(r *http.Request) uuid.UUID {
	identity, err := customMiddleware.GetIdentity(r.Context())
	if err != nil {
		return uuid.Nil
	}
	return identity.UserID
}

func (h *RBACHandler) auditChange(r *http.Request, action, target string) {
	h.audit.Log(r.Context(), actor(r), audit.EventRBACChanged, target, map[string]string{
		"action": action,
	})
}

// pathUUID parses one chi URL parameter as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// --- Roles ---

// RoleRequest is the body for role create and update. Version is required on
// update only.
type RoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     int    `json:"version,omitempty"`
}

func (req *RoleRequest) Validate() error {
	if req.Name == "" {
		return fmt.Errorf("name required")
	}
	if len(req.Name) > 100 {
		return fmt.Errorf("name too long (max 100 chars)")
	}
	return nil
}

func (h *RBACHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, roles)
}

func (h *RBACHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	role := &authz.Role{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.roles.Create(r.Context(), role); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "role_created", role.ID.String())
	helpers.RespondJSON(w, http.StatusCreated, role)
}

func (h *RBACHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	role, err := h.roles.FindByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, role)
}

// UpdateRole rewrites name and description under optimistic concurrency: the
// request must carry the version it read, and a stale one gets a 409.
func (h *RBACHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req RoleRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	role := &authz.Role{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
	}
	if err := h.roles.Update(r.Context(), role); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "role_updated", id.String())
	helpers.RespondJSON(w, http.StatusOK, role)
}

func (h *RBACHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.roles.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "role_deleted", id.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *RBACHandler) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Existence check first so an unknown role 404s instead of returning an
	// empty list.
	if _, err := h.roles.FindByID(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	permissions, err := h.roles.PermissionsForRoles(r.Context(), []uuid.UUID{id})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, permissions)
}

func (h *RBACHandler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	permissionID, err := pathUUID(r, "permissionID")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.roles.FindByID(r.Context(), roleID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if _, err := h.permissions.FindByID(r.Context(), permissionID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := h.roles.GrantPermission(r.Context(), roleID, permissionID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "permission_granted", roleID.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *RBACHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	permissionID, err := pathUUID(r, "permissionID")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.roles.RevokePermission(r.Context(), roleID, permissionID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "permission_revoked", roleID.String())
	w.WriteHeader(http.StatusNoContent)
}

// --- Permission catalog ---

// PermissionRequest is the body for catalog create.
type PermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (req *PermissionRequest) Validate() error {
	if req.Name == "" {
		return fmt.Errorf("name required")
	}
	if len(req.Name) > 200 {
		return fmt.Errorf("name too long (max 200 chars)")
	}
	return nil
}

func (h *RBACHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.permissions.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, permissions)
}

func (h *RBACHandler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req PermissionRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	permission := &authz.Permission{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.permissions.Create(r.Context(), permission); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "permission_created", permission.ID.String())
	helpers.RespondJSON(w, http.StatusCreated, permission)
}

func (h *RBACHandler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.permissions.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "permission_deleted", id.String())
	w.WriteHeader(http.StatusNoContent)
}

// --- Groups ---

// GroupRequest is the body for group create.
type GroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (req *GroupRequest) Validate() error {
	if req.Name == "" {
		return fmt.Errorf("name required")
	}
	if len(req.Name) > 100 {
		return fmt.Errorf("name too long (max 100 chars)")
	}
	return nil
}

func (h *RBACHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, groups)
}

func (h *RBACHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	group := &authz.Group{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.groups.Create(r.Context(), group); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "group_created", group.ID.String())
	helpers.RespondJSON(w, http.StatusCreated, group)
}

func (h *RBACHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.groups.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "group_deleted", id.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *RBACHandler) ListGroupMembers(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.groups.FindByID(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	members, err := h.memberships.MembersOfGroup(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, members)
}

// WindowRequest optionally bounds an assignment or membership in time.
type WindowRequest struct {
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

func (req *WindowRequest) window() authz.Window {
	return authz.Window{ValidFrom: req.ValidFrom, ValidTo: req.ValidTo}
}

// decodeWindow reads an optional window body; an empty body means an open
// window.
func decodeWindow(r *http.Request) (authz.Window, error) {
	if r.ContentLength == 0 {
		return authz.Window{}, nil
	}
	var req WindowRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		return authz.Window{}, err
	}
	return req.window(), nil
}

// AddGroupMember puts a user in a group; repeating the call replaces the
// membership window.
func (h *RBACHandler) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := pathUUID(r, "userID")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	window, err := decodeWindow(r)
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.groups.FindByID(r.Context(), groupID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	membership := &authz.GroupMembership{UserID: userID, GroupID: groupID, Window: window}
	if err := h.memberships.Add(r.Context(), membership); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "member_added", groupID.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *RBACHandler) RemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := pathUUID(r, "userID")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.memberships.Remove(r.Context(), userID, groupID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "member_removed", groupID.String())
	w.WriteHeader(http.StatusNoContent)
}

// AssignGroupRole grants a role to every current member of a group.
func (h *RBACHandler) AssignGroupRole(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	roleID, err := pathUUID(r, "roleID")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	window, err := decodeWindow(r)
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.groups.FindByID(r.Context(), groupID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if _, err := h.roles.FindByID(r.Context(), roleID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	assignment := &authz.GroupRoleAssignment{GroupID: groupID, RoleID: roleID, Window: window}
	if err := h.groupRoles.Assign(r.Context(), assignment); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "group_role_assigned", groupID.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *RBACHandler) RemoveGroupRole(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	roleID, err := pathUUID(r, "roleID")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.groupRoles.Remove(r.Context(), groupID, roleID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "group_role_removed", groupID.String())
	w.WriteHeader(http.StatusNoContent)
}

// --- User role assignments ---

// AssignUserRole grants a role directly to a user; repeating the call
// replaces the assignment window.
func (h *RBACHandler) AssignUserRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	roleID, err := pathUUID(r, "roleID")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	window, err := decodeWindow(r)
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.roles.FindByID(r.Context(), roleID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	assignment := &authz.RoleAssignment{UserID: userID, RoleID: roleID, Window: window}
	if err := h.assignments.Assign(r.Context(), assignment); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "user_role_assigned", userID.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *RBACHandler) RemoveUserRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	roleID, err := pathUUID(r, "roleID")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.assignments.Remove(r.Context(), userID, roleID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "user_role_removed", userID.String())
	w.WriteHeader(http.StatusNoContent)
}

// GetUserAccess returns a user's effective roles and permissions as the
// resolver sees them right now.
func (h *RBACHandler) GetUserAccess(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	roles, permissions := h.resolver.Resolve(r.Context(), userID)

	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"roles":       roles,
		"permissions": permissions,
	})
}

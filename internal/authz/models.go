package authz

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleExists         = errors.New("role already exists")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrPermissionExists   = errors.New("permission already exists")
	ErrGroupNotFound      = errors.New("group not found")
	ErrGroupExists        = errors.New("group already exists")
	ErrVersionConflict    = errors.New("stale version")
)

// Role owns a set of permissions. Version backs optimistic concurrency on
// admin updates.
type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a canonical "resource:action" name in the catalog.
type Permission struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Group collects users; roles granted to the group are inherited by its
// members.
type Group struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Window bounds the validity of an assignment or membership. Nil ends are
// open.
type Window struct {
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

// Contains reports whether the window covers the given instant.
func (w Window) Contains(at time.Time) bool {
	if w.ValidFrom != nil && at.Before(*w.ValidFrom) {
		return false
	}
	if w.ValidTo != nil && !at.Before(*w.ValidTo) {
		return false
	}
	return true
}

// RoleAssignment grants a role directly to a user.
type RoleAssignment struct {
	UserID uuid.UUID `json:"user_id"`
	RoleID uuid.UUID `json:"role_id"`
	Window
}

// GroupMembership places a user in a group.
type GroupMembership struct {
	UserID  uuid.UUID `json:"user_id"`
	GroupID uuid.UUID `json:"group_id"`
	Window
}

// GroupRoleAssignment grants a role to every current member of a group.
type GroupRoleAssignment struct {
	GroupID uuid.UUID `json:"group_id"`
	RoleID  uuid.UUID `json:"role_id"`
	Window
}

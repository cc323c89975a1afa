package abac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPolicyNotFound  = errors.New("policy not found")
	ErrPolicyExists    = errors.New("policy already exists")
	ErrVersionConflict = errors.New("stale version")
	ErrInvalidEffect   = errors.New("effect must be ALLOW or DENY")
)

// Effect is a policy's contribution when its condition matches.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// Valid reports whether e is one of the two known effects.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Policy is one attribute-based rule. Condition holds the JSON expression
// text; it is parsed fresh on every evaluation so the stored text stays the
// single source of truth. Version backs optimistic concurrency on admin
// updates.
type Policy struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Effect    Effect    `json:"effect"`
	Condition string    `json:"condition"`
	IsActive  bool      `json:"is_active"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyStore persists ABAC policies. Only ListActive participates in
// evaluation; the rest serve the admin surface.
type PolicyStore interface {
	ListActive(ctx context.Context) ([]*Policy, error)
	List(ctx context.Context) ([]*Policy, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Policy, error)
	FindByName(ctx context.Context, name string) (*Policy, error)
	Create(ctx context.Context, p *Policy) error
	// Update rewrites the mutable fields and bumps Version; a stale Version
	// returns ErrVersionConflict.
	Update(ctx context.Context, p *Policy) error
	Delete(ctx context.Context, id uuid.UUID) error
}

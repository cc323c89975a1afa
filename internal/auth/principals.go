package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/audit"
)

// GetPrincipal loads one principal record.
func (s *Service) GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error) {
	return s.principals.FindByID(ctx, id)
}

// GetUser loads one user profile.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.FindByID(ctx, id)
}

// SetPrincipalEnabled flips the gate every authenticated operation consults.
// Disabling takes effect immediately: token validation and refresh both
// re-check the flag. The version check surfaces concurrent admin writes as
// ErrVersionConflict instead of losing one silently.
func (s *Service) SetPrincipalEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*Principal, error) {
	p, err := s.principals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Enabled == enabled {
		return p, nil
	}
	p.Enabled = enabled
	if err := s.principals.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update principal: %w", err)
	}
	s.audit.Log(ctx, id, audit.EventPrincipalToggled, p.ExternalID, map[string]string{
		"kind":    string(p.Kind),
		"enabled": strconv.FormatBool(enabled),
	})
	return p, nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/abac"
)

// PolicyStore is the in-memory abac.PolicyStore.
type PolicyStore struct {
	mu       sync.RWMutex
	policies map[uuid.UUID]*abac.Policy
}

func NewPolicyStore() *PolicyStore {
	return &PolicyStore{policies: make(map[uuid.UUID]*abac.Policy)}
}

func (s *PolicyStore) ListActive(_ context.Context) ([]*abac.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*abac.Policy{}
	for _, p := range s.policies {
		if p.IsActive {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *PolicyStore) List(_ context.Context) ([]*abac.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*abac.Policy{}
	for _, p := range s.policies {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (s *PolicyStore) FindByID(_ context.Context, id uuid.UUID) (*abac.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.policies[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, abac.ErrPolicyNotFound
}

func (s *PolicyStore) FindByName(_ context.Context, name string) (*abac.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies {
		if p.Name == name {
			c := *p
			return &c, nil
		}
	}
	return nil, abac.ErrPolicyNotFound
}

func (s *PolicyStore) Create(_ context.Context, p *abac.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.policies {
		if existing.Name == p.Name {
			return abac.ErrPolicyExists
		}
	}
	now := time.Now()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	c := *p
	s.policies[p.ID] = &c
	return nil
}

func (s *PolicyStore) Update(_ context.Context, p *abac.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.policies[p.ID]
	if !ok {
		return abac.ErrPolicyNotFound
	}
	if existing.Version != p.Version {
		return abac.ErrVersionConflict
	}
	for id, other := range s.policies {
		if id != p.ID && other.Name == p.Name {
			return abac.ErrPolicyExists
		}
	}
	p.Version++
	p.UpdatedAt = time.Now()
	c := *p
	s.policies[p.ID] = &c
	return nil
}

func (s *PolicyStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return abac.ErrPolicyNotFound
	}
	delete(s.policies, id)
	return nil
}

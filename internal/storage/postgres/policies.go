package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvidsec/identity/internal/abac"
)

const policyColumns = `id, name, effect, condition, is_active, version, created_at, updated_at`

// PolicyStore is the pgx implementation of abac.PolicyStore. Conditions are
// stored as jsonb, which rejects syntactically broken JSON at write time;
// shape rules beyond syntax stay with the engine.
type PolicyStore struct {
	pool *pgxpool.Pool
}

func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

func scanPolicy(row pgx.Row) (*abac.Policy, error) {
	p := &abac.Policy{}
	err := row.Scan(&p.ID, &p.Name, &p.Effect, &p.Condition, &p.IsActive, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, abac.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	return p, nil
}

func collectPolicies(rows pgx.Rows) ([]*abac.Policy, error) {
	defer rows.Close()
	policies := []*abac.Policy{}
	for rows.Next() {
		p := &abac.Policy{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Effect, &p.Condition, &p.IsActive, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (s *PolicyStore) ListActive(ctx context.Context) ([]*abac.Policy, error) {
	const query = `SELECT ` + policyColumns + ` FROM abac_policies WHERE is_active ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active policies: %w", err)
	}
	return collectPolicies(rows)
}

func (s *PolicyStore) List(ctx context.Context) ([]*abac.Policy, error) {
	const query = `SELECT ` + policyColumns + ` FROM abac_policies ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	return collectPolicies(rows)
}

func (s *PolicyStore) FindByID(ctx context.Context, id uuid.UUID) (*abac.Policy, error) {
	const query = `SELECT ` + policyColumns + ` FROM abac_policies WHERE id = $1`
	return scanPolicy(s.pool.QueryRow(ctx, query, id))
}

func (s *PolicyStore) FindByName(ctx context.Context, name string) (*abac.Policy, error) {
	const query = `SELECT ` + policyColumns + ` FROM abac_policies WHERE name = $1`
	return scanPolicy(s.pool.QueryRow(ctx, query, name))
}

func (s *PolicyStore) Create(ctx context.Context, p *abac.Policy) error {
	const query = `
		INSERT INTO abac_policies (id, name, effect, condition, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, now(), now())`

	if _, err := s.pool.Exec(ctx, query, p.ID, p.Name, p.Effect, p.Condition, p.IsActive); err != nil {
		if isUniqueViolation(err, "abac_policies_name_key") {
			return abac.ErrPolicyExists
		}
		return fmt.Errorf("insert policy: %w", err)
	}
	p.Version = 1
	return nil
}

func (s *PolicyStore) Update(ctx context.Context, p *abac.Policy) error {
	const query = `
		UPDATE abac_policies SET name = $2, effect = $3, condition = $4, is_active = $5,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $6`

	tag, err := s.pool.Exec(ctx, query, p.ID, p.Name, p.Effect, p.Condition, p.IsActive, p.Version)
	if err != nil {
		if isUniqueViolation(err, "abac_policies_name_key") {
			return abac.ErrPolicyExists
		}
		return fmt.Errorf("update policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, findErr := s.FindByID(ctx, p.ID); findErr != nil {
			return findErr
		}
		return abac.ErrVersionConflict
	}
	p.Version++
	return nil
}

func (s *PolicyStore) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM abac_policies WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return abac.ErrPolicyNotFound
	}
	return nil
}

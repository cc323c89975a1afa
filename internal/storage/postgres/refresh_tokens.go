package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvidsec/identity/internal/auth"
)

const refreshTokenColumns = `id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by`

// RefreshTokenStore is the pgx implementation of auth.RefreshTokenStore.
type RefreshTokenStore struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenStore(pool *pgxpool.Pool) *RefreshTokenStore {
	return &RefreshTokenStore{pool: pool}
}

func scanRefreshToken(row pgx.Row) (*auth.RefreshToken, error) {
	t := &auth.RefreshToken{}
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.FamilyID,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.RevokedAt,
		&t.ReplacedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrTokenNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return t, nil
}

func collectRefreshTokens(rows pgx.Rows) ([]*auth.RefreshToken, error) {
	defer rows.Close()
	tokens := []*auth.RefreshToken{}
	for rows.Next() {
		t := &auth.RefreshToken{}
		err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.TokenHash,
			&t.FamilyID,
			&t.IssuedAt,
			&t.ExpiresAt,
			&t.RevokedAt,
			&t.ReplacedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *RefreshTokenStore) FindByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	const query = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	return scanRefreshToken(s.pool.QueryRow(ctx, query, tokenHash))
}

func (s *RefreshTokenStore) FindActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*auth.RefreshToken, error) {
	const query = `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND replaced_by IS NULL AND expires_at > now()
		ORDER BY issued_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query active refresh tokens: %w", err)
	}
	return collectRefreshTokens(rows)
}

func (s *RefreshTokenStore) FindByFamilyID(ctx context.Context, familyID uuid.UUID) ([]*auth.RefreshToken, error) {
	const query = `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens WHERE family_id = $1
		ORDER BY issued_at`

	rows, err := s.pool.Query(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("query token family: %w", err)
	}
	return collectRefreshTokens(rows)
}

func (s *RefreshTokenStore) Create(ctx context.Context, token *auth.RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.FamilyID,
		token.IssuedAt,
		token.ExpiresAt,
		token.RevokedAt,
		token.ReplacedBy,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Rotate inserts the successor and marks the old record replaced in one
// transaction. The replaced_by IS NULL guard decides races: the second of two
// concurrent rotations finds the guard gone and gets ErrTokenReplaced.
func (s *RefreshTokenStore) Rotate(ctx context.Context, oldID uuid.UUID, next *auth.RefreshToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer tx.Rollback(ctx)

	// The successor goes in first so replaced_by can reference it.
	const insert = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, insert,
		next.ID, next.UserID, next.TokenHash, next.FamilyID, next.IssuedAt, next.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert successor token: %w", err)
	}

	const replace = `
		UPDATE refresh_tokens SET replaced_by = $2
		WHERE id = $1 AND replaced_by IS NULL`
	tag, err := tx.Exec(ctx, replace, oldID, next.ID)
	if err != nil {
		return fmt.Errorf("mark token replaced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Rolling back also removes the successor inserted above.
		return auth.ErrTokenReplaced
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotate: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	if _, err := s.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	if _, err := s.pool.Exec(ctx, query, userID, at); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) RevokeFamily(ctx context.Context, familyID uuid.UUID, at time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE family_id = $1 AND revoked_at IS NULL`
	if _, err := s.pool.Exec(ctx, query, familyID, at); err != nil {
		return fmt.Errorf("revoke token family: %w", err)
	}
	return nil
}

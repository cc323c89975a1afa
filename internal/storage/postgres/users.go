package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvidsec/identity/internal/auth"
)

const userColumns = `id, email, display_name, password_hash, remember_me_token,
	password_reset_token, password_reset_expires_at, password_reset_used_at,
	totp_enabled, totp_secret, created_at, updated_at`

// UserStore is the pgx implementation of auth.UserStore.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func scanUser(row pgx.Row) (*auth.User, error) {
	user := &auth.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.RememberMeToken,
		&user.PasswordResetToken,
		&user.PasswordResetExpiresAt,
		&user.PasswordResetUsedAt,
		&user.TOTPEnabled,
		&user.TOTPSecret,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(s.pool.QueryRow(ctx, query, email))
}

func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *UserStore) FindByRememberMeToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE remember_me_token = $1`
	return scanUser(s.pool.QueryRow(ctx, query, tokenHash))
}

func (s *UserStore) FindByResetToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE password_reset_token = $1`
	return scanUser(s.pool.QueryRow(ctx, query, tokenHash))
}

func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	const query = `
		INSERT INTO users (
			id, email, display_name, password_hash, remember_me_token,
			password_reset_token, password_reset_expires_at, password_reset_used_at,
			totp_enabled, totp_secret, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`

	_, err := s.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.RememberMeToken,
		user.PasswordResetToken,
		user.PasswordResetExpiresAt,
		user.PasswordResetUsedAt,
		user.TOTPEnabled,
		user.TOTPSecret,
	)
	if err != nil {
		if isUniqueViolation(err, "users_email_lower_idx") {
			return auth.ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) Update(ctx context.Context, user *auth.User) error {
	const query = `
		UPDATE users SET
			email = $2,
			display_name = $3,
			password_hash = $4,
			remember_me_token = $5,
			password_reset_token = $6,
			password_reset_expires_at = $7,
			password_reset_used_at = $8,
			totp_enabled = $9,
			totp_secret = $10,
			updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.RememberMeToken,
		user.PasswordResetToken,
		user.PasswordResetExpiresAt,
		user.PasswordResetUsedAt,
		user.TOTPEnabled,
		user.TOTPSecret,
	)
	if err != nil {
		if isUniqueViolation(err, "users_email_lower_idx") {
			return auth.ErrEmailExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

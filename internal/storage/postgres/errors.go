// Package postgres implements the store interfaces of the auth, authz, and
// abac packages with hand-written pgx queries. Driver errors never escape:
// pgx.ErrNoRows and unique violations are mapped onto the interface sentinels
// at this boundary.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const codeUniqueViolation = "23505"

// isUniqueViolation reports whether err is a 23505 on the named constraint.
// An empty constraint matches any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

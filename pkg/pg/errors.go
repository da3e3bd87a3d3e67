package pg

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToParseConfig     = errors.New("failed to parse postgres config")
	ErrFailedToConnect         = errors.New("failed to connect to postgres")
	ErrHealthcheckFailed       = errors.New("postgres healthcheck failed")
	ErrFailedToApplyMigrations = errors.New("failed to apply migrations")
)

// IsNotFoundError reports whether err is a no-rows result from either the
// pgx or database/sql query path.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// IsDuplicateKeyError reports whether err is a unique constraint violation
// (SQLSTATE 23505).
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ConstraintName extracts the violated constraint from a postgres error,
// or "" when err carries no constraint information. Stores use it to map
// individual unique indexes onto their own error taxonomy.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

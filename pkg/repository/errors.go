package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// MapError translates driver errors into a domain's sentinels:
// sql.ErrNoRows becomes notFound and a unique violation becomes conflict.
// Other errors, including other constraint violations, pass through.
func MapError(err error, notFound, conflict error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return conflict
	}
	return err
}

package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsDuplicateKey reports whether err is a unique-constraint violation. The
// reconciliation engine treats these as race-safe verify conditions, not
// failures.
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

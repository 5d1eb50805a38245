package repository

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL error codes we translate into domain sentinels.
const (
	pqUniqueViolation = "23505"
)

// uniqueViolation reports whether err is a unique-constraint failure and, if
// so, which constraint or index fired.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

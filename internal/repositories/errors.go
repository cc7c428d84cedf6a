package repositories

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func pqCode(err error) (pq.ErrorCode, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, pqErr.Constraint
	}
	return "", ""
}

// isUniqueViolation reports a unique violation, optionally on one constraint.
func isUniqueViolation(err error, constraint string) bool {
	code, name := pqCode(err)
	return code == pqUniqueViolation && (constraint == "" || name == constraint)
}

func isForeignKeyViolation(err error) bool {
	code, _ := pqCode(err)
	return code == pqForeignKeyViolation
}

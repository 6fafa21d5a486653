package db

import (
	"strings"

	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports a unique constraint failure. Postgres errors are
// matched on SQLSTATE and constraint name; SQLite only exposes message text.
// An empty constraint matches any unique index.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if dump := pkgerrors.Dump(err); dump.PGCode != "" {
		return dump.PGCode == pgUniqueViolation && (constraint == "" || dump.PGConstraint == constraint)
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint)
}

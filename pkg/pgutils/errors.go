// Package pgutils classifies PostgreSQL driver errors.
package pgutils

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// class 23: integrity constraint violation
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
)

// IsUniqueViolation checks if the error is a unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	return hasCode(err, CodeUniqueViolation)
}

// IsForeignKeyViolation checks if the error is a foreign key violation (23503).
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, CodeForeignKeyViolation)
}

// IsCheckViolation checks if the error is a check constraint violation (23514).
func IsCheckViolation(err error) bool {
	return hasCode(err, CodeCheckViolation)
}

// ConstraintName returns the violated constraint for pgx errors, or "".
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// hasCode prefers the structured pgx error and falls back to the message
// text for drivers that only surface SQLSTATE in the string.
func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SQLSTATE "+code) || strings.Contains(errStr, "("+code+")")
}

package pg

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
)

// TimeFormat can be used to extract and store time in a reproducible way.
const TimeFormat = "2006-01-02 15:04:05.000000 UTC"

const URLTest = "postgres://%s@127.0.0.1:5432/nexus_test?sslmode=disable&connect_timeout=5"

const (
	fmtClause = "\nAND "
	fmtWHERE  = "WHERE\n%s"
)

// Errors returned as equivalents to the Postgres error classes which carry
// control flow meaning.
var (
	ErrConflict         = errors.New("transaction conflict")
	ErrRelationNotFound = errors.New("relation not found")
	ErrUniqueViolation  = errors.New("unique constraint violated")
	ErrUnavailable      = errors.New("store unavailable")
)

// To ensure idempotence we want to create the index only if it doesn't exist,
// while this feature is about to hit Postgres in 9.5 it is not yet available.
// We fallback to a conditional create taken from:
// http://dba.stackexchange.com/a/35626.
const guardIndex = `DO $$
		BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM pg_indexes WHERE schemaname = '%s' AND indexname = '%s'
		) THEN
		%s;
		END IF;
		END$$;`

// ClausesToWhere transforms a list of SQL clauses into a WHERE statement.
func ClausesToWhere(clauses ...string) string {
	return fmt.Sprintf(fmtWHERE, strings.Join(clauses, fmtClause))
}

// GuardIndex wraps an index creation query with a condition to prevent conflicts.
func GuardIndex(namespace, index, query string) string {
	return fmt.Sprintf(
		guardIndex,
		namespace,
		index,
		fmt.Sprintf(query, index, namespace),
	)
}

// IsConflict indicates if err is ErrConflict.
func IsConflict(err error) bool {
	return err == ErrConflict
}

// IsRelationNotFound indicates if err is ErrRelationNotFound.
func IsRelationNotFound(err error) bool {
	return err == ErrRelationNotFound
}

// IsUniqueViolation indicates if err is ErrUniqueViolation.
func IsUniqueViolation(err error) bool {
	return err == ErrUniqueViolation
}

// IsUnavailable indicates if err is ErrUnavailable.
func IsUnavailable(err error) bool {
	return err == ErrUnavailable
}

// WrapError classifies the given error into the package equivalents, otherwise
// returns the original error.
func WrapError(err error) error {
	if err, ok := err.(*pq.Error); ok {
		switch {
		case err.Code == "42P01":
			return ErrRelationNotFound
		case err.Code == "23505":
			return ErrUniqueViolation
		case err.Code == "40001" || err.Code == "40P01":
			return ErrConflict
		case err.Code.Class() == "08":
			return ErrUnavailable
		}

		return err
	}

	if _, ok := err.(net.Error); ok {
		return ErrUnavailable
	}

	return err
}

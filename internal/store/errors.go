package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"libradesk/internal/domain"
)

// ErrConcurrencyConflict reports that a row changed underneath a transaction
// (lost version check, serialization failure, deadlock, busy database). The
// whole operation may be retried by the caller.
var ErrConcurrencyConflict = errors.New("concurrency conflict: row changed concurrently")

// errUniqueViolation is translated into a domain error by the repository
// that knows which constraint was hit.
var errUniqueViolation = errors.New("unique constraint violation")

// classify maps driver errors onto the store's error kinds. Errors that are
// already classified pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", errUniqueViolation, pqErr.Constraint)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pqErr.Message)
		case "23514":
			return fmt.Errorf("%w: check constraint %s", domain.ErrInvariantViolation, pqErr.Constraint)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", errUniqueViolation, liteErr.Error())
		case liteErr.ExtendedCode == sqlite3.ErrConstraintCheck:
			return fmt.Errorf("%w: %s", domain.ErrInvariantViolation, liteErr.Error())
		case liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, liteErr.Error())
		}
	}

	return err
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, domain.ErrNotFound)
	}
	return fmt.Errorf("get %s %v: %w", what, id, classify(err))
}

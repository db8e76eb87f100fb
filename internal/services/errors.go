package services

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrBookNotFound is returned when the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrMemberNotFound is returned when the referenced member does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrTransactionNotFound is returned when the referenced transaction does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrBookUnavailable is returned by Issue when the book is missing or has
	// no available copies. No transaction is recorded.
	ErrBookUnavailable = errors.New("book not available")

	// ErrAlreadyReturned is returned when a return is attempted on a
	// transaction that is already closed.
	ErrAlreadyReturned = errors.New("book already returned")

	// ErrInvalidInput wraps validation failures on caller-supplied values.
	ErrInvalidInput = errors.New("invalid input")
)

// SQLSTATE codes the handlers care about.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// StoreError is a failure reported by the database, carrying the driver's
// own message.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Code returns the postgres SQLSTATE of the failure, or "" when the error did
// not come from postgres.
func (e *StoreError) Code() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Conflict reports whether the store rejected the write because of a
// foreign key or uniqueness constraint.
func (e *StoreError) Conflict() bool {
	switch e.Code() {
	case pgForeignKeyViolation, pgUniqueViolation:
		return true
	}
	return false
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

func isDomainError(err error) bool {
	return IsNotFound(err) ||
		errors.Is(err, ErrBookUnavailable) ||
		errors.Is(err, ErrAlreadyReturned) ||
		errors.Is(err, ErrInvalidInput)
}

// storeError wraps err as a StoreError unless it is nil or already a domain
// error.
func storeError(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

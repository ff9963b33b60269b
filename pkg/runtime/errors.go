// Package runtime provides the connection pool, query tracing and the error
// taxonomy shared by every repository.
package runtime

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrValidation is returned when a request is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateKey is returned when a unique constraint is violated.
	ErrDuplicateKey = errors.New("duplicate key value")

	// ErrNotNullViolation is returned when a required column is missing.
	ErrNotNullViolation = errors.New("null value in required column")

	// ErrCheckViolation is returned when a check constraint rejects a row.
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrTransactionTimeout is returned when a transaction exceeds its max wait or timeout.
	ErrTransactionTimeout = errors.New("transaction timeout")

	// ErrTransactionClosed is returned when operating on a closed transaction.
	ErrTransactionClosed = errors.New("transaction already closed")

	// ErrNoConnection is returned when no database connection is available.
	ErrNoConnection = errors.New("no database connection")

	// ErrMigrationState is returned when the tracking table disagrees with a
	// requested migration step.
	ErrMigrationState = errors.New("invalid migration state")
)

// NotFoundError reports a unique lookup that matched no row.
type NotFoundError struct {
	Table string
	Key   map[string]any
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if len(e.Key) == 0 {
		return fmt.Sprintf("%s: %v", e.Table, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v for %s", e.Table, ErrNotFound, formatKey(e.Key))
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError with a formatted message.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConstraintKind identifies which constraint a ConstraintError violated.
type ConstraintKind string

const (
	// UniqueConstraint is a unique index or primary key.
	UniqueConstraint ConstraintKind = "unique"
	// NotNullConstraint is a NOT NULL column.
	NotNullConstraint ConstraintKind = "not_null"
	// CheckConstraint is a CHECK expression.
	CheckConstraint ConstraintKind = "check"
)

// ConstraintError reports a write rejected by a unique, not-null or check constraint.
type ConstraintError struct {
	Kind       ConstraintKind
	Table      string
	Constraint string
	Column     string
	Detail     string
	Err        error
}

// Error implements the error interface.
func (e *ConstraintError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s constraint violation on %s", e.Kind, e.Table)
	if e.Constraint != "" {
		fmt.Fprintf(&b, " (%s)", e.Constraint)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %s", e.Column)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// Unwrap returns the underlying driver error.
func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the violated constraint kind.
func (e *ConstraintError) Is(target error) bool {
	switch e.Kind {
	case UniqueConstraint:
		return target == ErrDuplicateKey
	case NotNullConstraint:
		return target == ErrNotNullViolation
	case CheckConstraint:
		return target == ErrCheckViolation
	}
	return false
}

// ForeignKeyError reports a reference to a row that does not exist, or a
// delete blocked by rows that still reference it.
type ForeignKeyError struct {
	Table      string
	Constraint string
	Detail     string
	Err        error
}

// Error implements the error interface.
func (e *ForeignKeyError) Error() string {
	msg := fmt.Sprintf("foreign key violation on %s", e.Table)
	if e.Constraint != "" {
		msg += fmt.Sprintf(" (%s)", e.Constraint)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the underlying driver error.
func (e *ForeignKeyError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrForeignKeyViolation.
func (e *ForeignKeyError) Is(target error) bool {
	return target == ErrForeignKeyViolation
}

// TimeoutPhase tells whether a transaction timed out waiting to start or while running.
type TimeoutPhase string

const (
	// PhaseAcquire is the wait for a pooled connection and BEGIN.
	PhaseAcquire TimeoutPhase = "max_wait"
	// PhaseExecute is the interactive part of the transaction including COMMIT.
	PhaseExecute TimeoutPhase = "timeout"
)

// TransactionTimeoutError reports a transaction that exceeded MaxWait or Timeout.
type TransactionTimeoutError struct {
	Phase TimeoutPhase
	Limit time.Duration
	Err   error
}

// Error implements the error interface.
func (e *TransactionTimeoutError) Error() string {
	if e.Phase == PhaseAcquire {
		return fmt.Sprintf("transaction could not start within max wait of %s", e.Limit)
	}
	return fmt.Sprintf("transaction exceeded timeout of %s", e.Limit)
}

// Unwrap returns the underlying error.
func (e *TransactionTimeoutError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransactionTimeout.
func (e *TransactionTimeoutError) Is(target error) bool {
	return target == ErrTransactionTimeout
}

// QueryError represents a query execution error.
type QueryError struct {
	Query string
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v\nQuery: %s", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// MigrationError represents a migration error.
type MigrationError struct {
	Version string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration error (version %s): %s: %v", e.Version, e.Message, e.Err)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConstraint reports whether err is a unique, not-null or check violation.
func IsConstraint(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

// IsForeignKey reports whether err is a foreign key violation.
func IsForeignKey(err error) bool {
	return errors.Is(err, ErrForeignKeyViolation)
}

// IsTransactionTimeout reports whether err is a transaction timeout.
func IsTransactionTimeout(err error) bool {
	return errors.Is(err, ErrTransactionTimeout)
}

func formatKey(key map[string]any) string {
	parts := make([]string, 0, len(key))
	for _, k := range slices.Sorted(maps.Keys(key)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, key[k]))
	}
	return strings.Join(parts, ", ")
}

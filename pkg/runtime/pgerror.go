package runtime

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories translate.
const (
	codeUniqueViolation      = "23505"
	codeNotNullViolation     = "23502"
	codeCheckViolation       = "23514"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
	codeInvalidTextRepr      = "22P02"
)

// Classify converts a PostgreSQL error into the matching typed error.
// Errors that are not integrity violations are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return &ConstraintError{
			Kind:       UniqueConstraint,
			Table:      pgErr.TableName,
			Constraint: pgErr.ConstraintName,
			Detail:     pgErr.Detail,
			Err:        err,
		}
	case codeNotNullViolation:
		return &ConstraintError{
			Kind:       NotNullConstraint,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Message,
			Err:        err,
		}
	case codeCheckViolation:
		return &ConstraintError{
			Kind:       CheckConstraint,
			Table:      pgErr.TableName,
			Constraint: pgErr.ConstraintName,
			Detail:     pgErr.Message,
			Err:        err,
		}
	case codeForeignKeyViolation:
		return &ForeignKeyError{
			Table:      pgErr.TableName,
			Constraint: pgErr.ConstraintName,
			Detail:     pgErr.Detail,
			Err:        err,
		}
	case codeInvalidTextRepr:
		return &ValidationError{Field: pgErr.ColumnName, Message: pgErr.Message}
	}

	return err
}

// IsRetryable reports whether a transaction failed because of a
// serialization conflict or deadlock and can be run again.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// IsQueryCanceled reports whether the server canceled the statement.
func IsQueryCanceled(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeQueryCanceled
}

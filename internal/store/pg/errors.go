package pg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"staffroster.org/internal/apperr"
)

const emailConstraint = "users_email_key"

// mapPgError converts PostgreSQL failures into application errors where the
// caller can act on them. Other errors are wrapped with the server details.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		if pgErr.ConstraintName == emailConstraint {
			return apperr.Duplicate("user", "email", "")
		}
		return apperr.Duplicate("user", pgErr.ConstraintName, "")

	case pgerrcode.ForeignKeyViolation:
		return apperr.Validation(apperr.FieldError{
			Field:   "created_by_id",
			Message: "Referenced user does not exist",
			Type:    "foreign_key",
		})

	case pgerrcode.CheckViolation:
		return apperr.Validation(apperr.FieldError{
			Field:   pgErr.ConstraintName,
			Message: "Value violates a database constraint",
			Type:    "check",
		})

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
	}
}

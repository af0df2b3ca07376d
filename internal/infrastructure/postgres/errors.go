package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
	"github.com/oksasatya/go-credential-service/internal/domain/repository"
)

const (
	constraintEmail = "credentials_email_key"
	constraintPhone = "credentials_phone_number_key"
)

// translate turns a driver error into the storage kind. Unique violations
// keep the offending field so callers can report a conflict.
func translate(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return apperror.Storage(op, &repository.UniqueViolationError{
			Field:      fieldForConstraint(pgErr.ConstraintName),
			Constraint: pgErr.ConstraintName,
			Err:        err,
		})
	}
	return apperror.Storage(op, oops.Code("DB_QUERY_FAILED").With("operation", op).Wrap(err))
}

func fieldForConstraint(name string) repository.Field {
	switch name {
	case constraintEmail:
		return repository.FieldEmail
	case constraintPhone:
		return repository.FieldPhone
	}
	switch {
	case strings.Contains(name, "email"):
		return repository.FieldEmail
	case strings.Contains(name, "phone"):
		return repository.FieldPhone
	case strings.Contains(name, "pkey"):
		return repository.FieldID
	}
	return repository.Field(name)
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/oksasatya/go-credential-service/internal/domain/entity"
)

// Field names a filterable credential column.
type Field string

const (
	FieldID     Field = "id"
	FieldEmail  Field = "email"
	FieldPhone  Field = "phone_number"
	FieldStatus Field = "status"
	FieldRole   Field = "role"
)

// Filter is one field = value predicate.
type Filter struct {
	Field Field
	Value string
}

func Where(f Field, v string) Filter { return Filter{Field: f, Value: v} }

// CredentialRepository persists credentials. Every method runs inside the
// unit of work that produced the repository.
type CredentialRepository interface {
	Add(ctx context.Context, c *entity.Credential) (*entity.Credential, error)
	// GetByID returns nil, nil when no credential has the id.
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Credential, error)
	FindOneMatchingAny(ctx context.Context, filters ...Filter) (*entity.Credential, error)
	FindOneMatchingAll(ctx context.Context, filters ...Filter) (*entity.Credential, error)
	Update(ctx context.Context, c *entity.Credential) (*entity.Credential, error)
}

// UnitOfWork is one transactional scope. Rollback after Commit is a no-op.
type UnitOfWork interface {
	Credentials() CredentialRepository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFactory opens units of work.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UniqueViolationError reports which unique field rejected a write.
type UniqueViolationError struct {
	Field      Field
	Constraint string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s (%s)", e.Field, e.Constraint)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }

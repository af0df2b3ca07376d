package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
	"github.com/oksasatya/go-credential-service/internal/domain/entity"
	"github.com/oksasatya/go-credential-service/internal/domain/repository"
	"github.com/oksasatya/go-credential-service/internal/domain/valueobject"
)

// querier is satisfied by pgx.Tx, *pgxpool.Pool and pgxmock.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectCredential = `SELECT id, first_name, last_name, COALESCE(middle_name, ''), email, phone_number,
	password_hash, COALESCE(time_call, ''), role, status, created_at
	FROM credentials`

var filterColumns = map[repository.Field]string{
	repository.FieldID:     "id",
	repository.FieldEmail:  "email",
	repository.FieldPhone:  "phone_number",
	repository.FieldStatus: "status",
	repository.FieldRole:   "role",
}

type CredentialRepository struct {
	db querier
}

func NewCredentialRepository(db querier) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Add(ctx context.Context, c *entity.Credential) (*entity.Credential, error) {
	if !c.IsHashed() {
		return nil, fmt.Errorf("credential.add: %w", entity.ErrPasswordNotHashed)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO credentials (id, first_name, last_name, middle_name, email, phone_number,
			password_hash, time_call, role, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.FirstName.String(), c.LastName.String(), nullable(c.MiddleName.String()),
		c.Email.String(), c.PhoneNumber.String(), c.PasswordHash(), nullable(c.TimeCall),
		string(c.Role), string(c.Status), c.CreatedAt)
	if err != nil {
		return nil, translate("credential.add", err)
	}
	return c, nil
}

// GetByID locks the row until the unit of work ends.
func (r *CredentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Credential, error) {
	row := r.db.QueryRow(ctx, selectCredential+` WHERE id = $1 FOR UPDATE`, id)
	return r.scanOne("credential.get_by_id", row)
}

func (r *CredentialRepository) FindOneMatchingAny(ctx context.Context, filters ...repository.Filter) (*entity.Credential, error) {
	return r.findOne(ctx, "credential.find_any", " OR ", filters)
}

func (r *CredentialRepository) FindOneMatchingAll(ctx context.Context, filters ...repository.Filter) (*entity.Credential, error) {
	return r.findOne(ctx, "credential.find_all", " AND ", filters)
}

func (r *CredentialRepository) Update(ctx context.Context, c *entity.Credential) (*entity.Credential, error) {
	if !c.IsHashed() {
		return nil, fmt.Errorf("credential.update: %w", entity.ErrPasswordNotHashed)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE credentials
		SET first_name = $2, last_name = $3, middle_name = $4, email = $5, phone_number = $6,
			password_hash = $7, time_call = $8, role = $9, status = $10
		WHERE id = $1
	`, c.ID, c.FirstName.String(), c.LastName.String(), nullable(c.MiddleName.String()),
		c.Email.String(), c.PhoneNumber.String(), c.PasswordHash(), nullable(c.TimeCall),
		string(c.Role), string(c.Status))
	if err != nil {
		return nil, translate("credential.update", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.ErrUserNotFound.WithOp("credential.update")
	}
	return c, nil
}

func (r *CredentialRepository) findOne(ctx context.Context, op, joiner string, filters []repository.Filter) (*entity.Credential, error) {
	where, args, err := buildWhere(joiner, filters)
	if err != nil {
		return nil, apperror.Storage(op, err)
	}
	row := r.db.QueryRow(ctx, selectCredential+` WHERE `+where+` LIMIT 1`, args...)
	return r.scanOne(op, row)
}

func buildWhere(joiner string, filters []repository.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, oops.Code("FILTER_EMPTY").Errorf("at least one filter is required")
	}
	parts := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for i, f := range filters {
		col, ok := filterColumns[f.Field]
		if !ok {
			return "", nil, oops.Code("FILTER_UNKNOWN_FIELD").With("field", f.Field).Errorf("unknown filter field %q", f.Field)
		}
		parts = append(parts, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, f.Value)
	}
	return "(" + strings.Join(parts, joiner) + ")", args, nil
}

func (r *CredentialRepository) scanOne(op string, row pgx.Row) (*entity.Credential, error) {
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(op, err)
	}
	return c, nil
}

func scanCredential(row pgx.Row) (*entity.Credential, error) {
	var (
		p                                          entity.RestoreParams
		first, last, middle, email, phone, role, st string
	)
	if err := row.Scan(&p.ID, &first, &last, &middle, &email, &phone,
		&p.PasswordHash, &p.TimeCall, &role, &st, &p.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.FirstName, err = valueobject.NewNamedFullName("first_name", first); err != nil {
		return nil, corrupt(p.ID, err)
	}
	if p.LastName, err = valueobject.NewNamedFullName("last_name", last); err != nil {
		return nil, corrupt(p.ID, err)
	}
	if p.MiddleName, err = valueobject.NewOptionalFullName(middle); err != nil {
		return nil, corrupt(p.ID, err)
	}
	if p.Email, err = valueobject.NewEmail(email); err != nil {
		return nil, corrupt(p.ID, err)
	}
	if p.PhoneNumber, err = valueobject.NewPhone(phone); err != nil {
		return nil, corrupt(p.ID, err)
	}
	if p.Role, err = entity.ParseRole(role); err != nil {
		return nil, corrupt(p.ID, err)
	}
	if p.Status, err = entity.ParseStatus(st); err != nil {
		return nil, corrupt(p.ID, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return entity.Restore(p), nil
}

func corrupt(id uuid.UUID, err error) error {
	return oops.Code("CREDENTIAL_ROW_CORRUPT").With("credential_id", id.String()).Wrap(err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ repository.CredentialRepository = (*CredentialRepository)(nil)

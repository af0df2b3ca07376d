package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
	"github.com/oksasatya/go-credential-service/internal/domain/repository"
)

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UnitOfWorkFactory opens one pgx transaction per unit of work.
type UnitOfWorkFactory struct {
	db beginner
}

func NewUnitOfWorkFactory(db beginner) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{db: db}
}

func (f *UnitOfWorkFactory) Begin(ctx context.Context) (repository.UnitOfWork, error) {
	tx, err := f.db.Begin(ctx)
	if err != nil {
		return nil, apperror.Storage("uow.begin", oops.Code("TX_BEGIN_FAILED").Wrap(err))
	}
	return &unitOfWork{tx: tx, credentials: NewCredentialRepository(tx)}, nil
}

type unitOfWork struct {
	tx          pgx.Tx
	credentials *CredentialRepository
	closed      bool
}

func (u *unitOfWork) Credentials() repository.CredentialRepository { return u.credentials }

// Commit makes the unit's writes visible. Deferred unique constraints
// surface here and are translated like insert failures.
func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.closed {
		return apperror.Storage("uow.commit", pgx.ErrTxClosed)
	}
	u.closed = true
	if err := u.tx.Commit(ctx); err != nil {
		return translate("uow.commit", err)
	}
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.closed {
		return nil
	}
	u.closed = true
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return apperror.Storage("uow.rollback", oops.Code("TX_ROLLBACK_FAILED").Wrap(err))
	}
	return nil
}

var _ repository.UnitOfWorkFactory = (*UnitOfWorkFactory)(nil)

package repository

import (
	"context"
	"database/sql"

	"venue-rails/internal/domain"
	"venue-rails/internal/models"
	"venue-rails/pkg/database"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/events"
)

// SQLUnitOfWork binds one venue patch and its event records to a single
// transaction. A pipeline step either lands the new state plus its audit
// trail or nothing.
type SQLUnitOfWork struct {
	tx   *sql.Tx
	done bool
}

var _ domain.UnitOfWork = (*SQLUnitOfWork)(nil)

// UpdateVenueCtx stages the venue patch, guarded by the version token.
func (u *SQLUnitOfWork) UpdateVenueCtx(ctx context.Context, v *models.Venue) error {
	return updateVenueExec(ctx, u.tx, v)
}

// AppendEventsCtx stages event records in the same transaction.
func (u *SQLUnitOfWork) AppendEventsCtx(ctx context.Context, ev ...events.Event) error {
	return events.AppendWithTx(ctx, u.tx, ev...)
}

func (u *SQLUnitOfWork) Commit() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return errs.NewDB("repository.UnitOfWork.Commit", "commit transaction", err)
	}
	return nil
}

// Rollback is safe to defer: after a Commit it is a no-op.
func (u *SQLUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errs.NewDB("repository.UnitOfWork.Rollback", "rollback transaction", err)
	}
	return nil
}

// SQLUnitOfWorkFactory opens transactional units of work over the pool.
type SQLUnitOfWorkFactory struct {
	db *database.DB
}

var _ domain.UnitOfWorkFactory = (*SQLUnitOfWorkFactory)(nil)

func NewSQLUnitOfWorkFactory(db *database.DB) *SQLUnitOfWorkFactory {
	return &SQLUnitOfWorkFactory{db: db}
}

func (f *SQLUnitOfWorkFactory) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	tx, err := f.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.NewDB("repository.UnitOfWorkFactory.Begin", "begin transaction", err)
	}
	return &SQLUnitOfWork{tx: tx}, nil
}

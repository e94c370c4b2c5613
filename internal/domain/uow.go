package domain

import (
	"context"

	"venue-rails/internal/models"
	"venue-rails/pkg/events"
)

// UnitOfWork scopes a venue patch and its event records to one
// transaction. Pipeline steps commit state transitions and their
// audit trail atomically or not at all.
type UnitOfWork interface {
	// UpdateVenueCtx stages the venue patch inside the transaction,
	// guarded by the venue's Version column.
	UpdateVenueCtx(ctx context.Context, v *models.Venue) error
	// AppendEventsCtx stages event records inside the transaction.
	AppendEventsCtx(ctx context.Context, ev ...events.Event) error
	Commit() error
	Rollback() error
}

// UnitOfWorkFactory opens transactional units of work.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

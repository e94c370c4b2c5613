package pipeline

import (
	"context"
	"time"

	"venue-rails/internal/models"
)

// Runner exposes the minimal contract used by the web and admin layers.
// Keep it small to decouple from implementation details.
type Runner interface {
	Start()
	Stop(timeout time.Duration) error
	Enqueue(venueID int64) error
	EnqueueBatch(ctx context.Context, status models.Status, limit int) (int, error)
	RunVenue(ctx context.Context, venueID int64) (*models.Venue, error)
	Stats() Stats
}

// Ensure Engine implements Runner.
var _ Runner = (*Engine)(nil)

package domain

import (
	"context"

	"venue-rails/internal/models"
	"venue-rails/pkg/geo"
)

// Sort selects the ordering of search results.
type Sort string

const (
	SortRelevance Sort = "relevance"
	SortDistance  Sort = "distance"
)

// Valid reports whether the sort value is one we accept.
func (s Sort) Valid() bool { return s == SortRelevance || s == SortDistance }

// SearchParams describe one query against the derived search view.
// Query is pre-folded free text; empty means editorial browsing.
// Tags restrict candidates to rows carrying at least one of the tags.
// Viewport bounds candidates to an area window; Lat/Lng/RadiusM bound
// them to a circle around the caller. Both may be set at once.
type SearchParams struct {
	Query    string
	Tags     []string
	Viewport *geo.Viewport
	Lat      *float64
	Lng      *float64
	RadiusM  float64
	Sort     Sort
	Limit    int
	Offset   int
}

// HasPoint reports whether the caller supplied a usable coordinate pair.
func (p SearchParams) HasPoint() bool { return p.Lat != nil && p.Lng != nil }

// VenueReader reads venues from the base table.
type VenueReader interface {
	GetVenueCtx(ctx context.Context, id int64) (*models.Venue, error)
	FindBySourceCtx(ctx context.Context, source, sourceID string) (*models.Venue, error)
	// BatchByStatusCtx returns up to limit venues in the given status,
	// oldest update first, for pipeline pickup.
	BatchByStatusCtx(ctx context.Context, status models.Status, limit int) ([]models.Venue, error)
	StatusCountsCtx(ctx context.Context) (map[models.Status]int64, error)
}

// VenueWriter mutates venues in the base table.
type VenueWriter interface {
	CreateVenueCtx(ctx context.Context, v *models.Venue) error
	// UpdateVenueCtx persists v guarded by its Version column. A stale
	// version yields a STALE_WRITE error and no row change.
	UpdateVenueCtx(ctx context.Context, v *models.Venue) error
}

// SearchRepository queries the denormalized search view.
type SearchRepository interface {
	// SearchViewCtx returns matching rows plus the total match count
	// before Limit/Offset were applied.
	SearchViewCtx(ctx context.Context, p SearchParams) ([]models.SearchRow, int, error)
}

// RefreshResult reports one completed view rebuild.
type RefreshResult struct {
	Table    string
	Rows     int64
	Duration int64 // milliseconds
}

// ViewRepository rebuilds the offline search generation and promotes it.
type ViewRepository interface {
	// RebuildOfflineCtx truncates the offline generation and repopulates
	// it from the base table. The live view is untouched.
	RebuildOfflineCtx(ctx context.Context) (*RefreshResult, error)
	// PromoteCtx atomically swaps the named offline table into the live
	// position.
	PromoteCtx(ctx context.Context, offlineTable string) error
}

// FeedbackRepository persists session feedback for later signal mining.
type FeedbackRepository interface {
	CreateFeedbackCtx(ctx context.Context, f *models.FeedbackSignal) error
	FeedbackCountsCtx(ctx context.Context, venueID int64) (map[models.FeedbackAction]int64, error)
}

// Repository aggregates all persistence concerns. Consumers should
// depend on the narrowest interface that serves them; the aggregate
// exists for wiring.
type Repository interface {
	VenueReader
	VenueWriter
	SearchRepository
	ViewRepository
	FeedbackRepository
}

package models

import "time"

// SearchRow is one row of the derived search view plus query-time extras
// (relevance from the FULLTEXT match, distance when user geo was supplied).
type SearchRow struct {
	VenueID     int64      `json:"venue_id"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	Address     string     `json:"address,omitempty"`
	Lat         *float64   `json:"lat,omitempty"`
	Lng         *float64   `json:"lng,omitempty"`
	PriceLevel  *int       `json:"price_level,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	PictureURL  *string    `json:"picture_url,omitempty"`
	Signals     Signals    `json:"signals"`
	Status      Status     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	Relevance float64  `json:"-"` // provider-native lexical score, normalized later
	DistanceM *float64 `json:"distance_m,omitempty"`
}

// HasCoords reports whether the row can participate in geo filters.
func (r *SearchRow) HasCoords() bool {
	return r.Lat != nil && r.Lng != nil && CoordsValid(*r.Lat, *r.Lng)
}

// PlaceCard is the venue representation rendered inside a rail or a search
// result list.
type PlaceCard struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Category   string   `json:"category,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	DistanceM  *float64 `json:"distance_m,omitempty"`
	PriceLevel *int     `json:"price_level,omitempty"`
	Rating     *float64 `json:"rating,omitempty"`
	PictureURL *string  `json:"picture_url,omitempty"`
	Signals    Signals  `json:"signals"`
	Badges     []string `json:"badges,omitempty"`
	Score      float64  `json:"score"`
}

// CardFromRow projects a view row into a card.
func CardFromRow(r *SearchRow, score float64, badges []string) PlaceCard {
	return PlaceCard{
		ID:         r.VenueID,
		Name:       r.Name,
		Category:   r.Category,
		Summary:    r.Summary,
		Tags:       r.Tags,
		Lat:        r.Lat,
		Lng:        r.Lng,
		DistanceM:  r.DistanceM,
		PriceLevel: r.PriceLevel,
		Rating:     r.Rating,
		PictureURL: r.PictureURL,
		Signals:    r.Signals,
		Badges:     badges,
		Score:      score,
	}
}

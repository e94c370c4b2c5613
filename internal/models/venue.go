package models

import (
	"math"
	"strings"
	"time"
)

// Status is the lifecycle state of a venue record.
type Status string

const (
	StatusNew           Status = "NEW"
	StatusSummarized    Status = "SUMMARIZED"
	StatusEnriched      Status = "ENRICHED"
	StatusNeedsRevision Status = "NEEDS_REVISION"
	StatusReviewPending Status = "REVIEW_PENDING"
	StatusPublished     Status = "PUBLISHED"
	StatusFailed        Status = "FAILED"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusSummarized, StatusEnriched, StatusNeedsRevision,
		StatusReviewPending, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// allowedTransitions encodes the forward state machine. NEEDS_REVISION and
// FAILED may be re-entered from any working state; fixes re-enter the chain
// at the step that diagnosed them.
var allowedTransitions = map[Status][]Status{
	StatusNew:           {StatusSummarized, StatusNeedsRevision, StatusFailed},
	StatusSummarized:    {StatusEnriched, StatusNeedsRevision, StatusFailed},
	StatusEnriched:      {StatusReviewPending, StatusPublished, StatusNeedsRevision, StatusFailed},
	StatusReviewPending: {StatusPublished, StatusNeedsRevision, StatusFailed},
	StatusNeedsRevision: {StatusSummarized, StatusEnriched, StatusReviewPending, StatusPublished, StatusFailed},
	StatusFailed:        {},
	StatusPublished:     {StatusNeedsRevision},
}

// CanTransition reports whether moving from s to next is legal.
// Idempotent re-runs (s == next) are always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	for _, t := range allowedTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// RawInfo carries venue fields exactly as they arrived from the source.
type RawInfo struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Address     string `json:"address,omitempty"`
}

// CleanInfo carries fields produced by the pipeline agents.
type CleanInfo struct {
	Summary      string   `json:"summary,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Website      *string  `json:"website,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
	OpeningHours *string  `json:"opening_hours,omitempty"` // provider JSON document
}

// GeoInfo carries location data. Lat/Lng are pointers so "absent" and
// "zero island" stay distinguishable.
type GeoInfo struct {
	Lat              *float64 `json:"lat,omitempty"`
	Lng              *float64 `json:"lng,omitempty"`
	PlaceID          *string  `json:"place_id,omitempty"`
	MapURL           *string  `json:"map_url,omitempty"`
	FormattedAddress *string  `json:"formatted_address,omitempty"`
}

// Commerce carries price and rating data.
type Commerce struct {
	PriceLevel *int     `json:"price_level,omitempty"` // 0..4
	Rating     *float64 `json:"rating,omitempty"`      // 0.0..5.0
}

// Media carries picture references.
type Media struct {
	PictureURL *string  `json:"picture_url,omitempty"`
	Photos     []string `json:"photos,omitempty"`
}

// Signals is the editorial and computed flag document used for ranking and
// badging. It is carried verbatim into the derived search view.
type Signals struct {
	HQExperience  bool           `json:"hq_experience,omitempty"`
	QualityScore  float64        `json:"quality_score,omitempty"` // [0,1]
	LocalGem      bool           `json:"local_gem,omitempty"`
	EditorPick    bool           `json:"editor_pick,omitempty"`
	Extraordinary bool           `json:"extraordinary,omitempty"`
	Dateworthy    bool           `json:"dateworthy,omitempty"`
	Popularity    float64        `json:"popularity,omitempty"` // normalized [0,1]
	Extra         map[string]any `json:"extra,omitempty"`
}

// Novelty derives the novelty ranking term: 1 minus normalized popularity.
func (s Signals) Novelty() float64 {
	p := s.Popularity
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return 1 - p
}

// QualityFlag grades one venue field.
type QualityFlag string

const (
	FlagUnknown   QualityFlag = "unknown"
	FlagMissing   QualityFlag = "missing"
	FlagWeak      QualityFlag = "weak"
	FlagSparse    QualityFlag = "sparse"
	FlagOK        QualityFlag = "ok"
	FlagGood      QualityFlag = "good"
	FlagRich      QualityFlag = "rich"
	FlagExcellent QualityFlag = "excellent"
	FlagPresent   QualityFlag = "present"
)

// QualityFlags grades the fields the editor cares about.
type QualityFlags struct {
	Summary QualityFlag `json:"summary,omitempty"`
	Tags    QualityFlag `json:"tags,omitempty"`
	Photos  QualityFlag `json:"photos,omitempty"`
	Coords  QualityFlag `json:"coords,omitempty"`
}

// Attempts counts agent runs per record. Counters only ever go up.
type Attempts struct {
	Summarizer int `json:"summarizer,omitempty"`
	Enricher   int `json:"enricher,omitempty"`
	Editor     int `json:"editor,omitempty"`
}

// Venue is the primary entity. The store owns rows exclusively; agents get
// a copy, compute a patch and write it back under the version token.
type Venue struct {
	ID       int64  `json:"id"`
	SourceID string `json:"source_id,omitempty"`
	Source   string `json:"source,omitempty"`

	Raw      RawInfo      `json:"raw"`
	Clean    CleanInfo    `json:"clean"`
	Geo      GeoInfo      `json:"geo"`
	Commerce Commerce     `json:"commerce"`
	Media    Media        `json:"media"`
	Signals  Signals      `json:"signals"`
	Status   Status       `json:"status"`
	Attempts Attempts     `json:"attempts"`
	Quality  QualityFlags `json:"quality_flags"`

	LastError   string     `json:"last_error,omitempty"`
	Version     int64      `json:"version"`
	ScrapedAt   time.Time  `json:"scraped_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// HasCoords reports whether both coordinates are present and usable.
func (v *Venue) HasCoords() bool {
	return v.Geo.Lat != nil && v.Geo.Lng != nil &&
		CoordsValid(*v.Geo.Lat, *v.Geo.Lng)
}

// HasDescriptionOrSummary reports whether the record carries any long-form text.
func (v *Venue) HasDescriptionOrSummary() bool {
	return strings.TrimSpace(v.Raw.Description) != "" || strings.TrimSpace(v.Clean.Summary) != ""
}

// DisplayName falls back to the formatted address when the name is blank.
func (v *Venue) DisplayName() string {
	if n := strings.TrimSpace(v.Raw.Name); n != "" {
		return n
	}
	if v.Geo.FormattedAddress != nil {
		return *v.Geo.FormattedAddress
	}
	return ""
}

// CoordsValid checks coordinate ranges and rejects NaN/Inf.
func CoordsValid(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// TagsCSV joins tags for storage in a single column.
func TagsCSV(tags []string) string {
	return strings.Join(tags, ",")
}

// SplitTags parses a comma-separated tag column, dropping empties.
func SplitTags(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SearchableStatuses are the lifecycle states projected into the derived
// search view.
var SearchableStatuses = []Status{StatusSummarized, StatusPublished, StatusNew}

// Searchable reports whether rows in state s belong in the derived view.
func (s Status) Searchable() bool {
	for _, st := range SearchableStatuses {
		if s == st {
			return true
		}
	}
	return false
}

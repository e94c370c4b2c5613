// Package events is the append-only venue event log: every pipeline step,
// revision and publication leaves an ordered entry. The log is audit data,
// not the source of truth; Replay exists to cross-check a record's state.
package events

import (
	"context"
	"time"

	"venue-rails/internal/models"
	errs "venue-rails/pkg/errors"
)

// Event types, namespaced like the rest of the log consumers expect.
const (
	TypeCreated       = "venue.created"
	TypeSummarized    = "venue.summarized"
	TypeEnriched      = "venue.enriched"
	TypeReviewPending = "venue.review_pending"
	TypePublished     = "venue.published"
	TypeNeedsRevision = "venue.needs_revision"
	TypeFailed        = "venue.failed"
	TypeStepError     = "venue.step_error"
	TypeRevised       = "venue.revised"
)

// Agents that write to the log.
const (
	AgentPipeline   = "pipeline"
	AgentSummarizer = "summarizer"
	AgentEnricher   = "enricher"
	AgentEditor     = "editor"
	AgentPublisher  = "publisher"
	AgentAdmin      = "admin"
)

// Level grades an entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one log entry. Code carries the stable failure/outcome code when
// there is one; Data holds small structured context (old/new status etc).
type Event struct {
	VenueID int64          `json:"venue_id"`
	Type    string         `json:"type"`
	Agent   string         `json:"agent"`
	Level   Level          `json:"level"`
	Code    errs.Code      `json:"code,omitempty"`
	Note    string         `json:"note,omitempty"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

// Transition builds the standard status-change event.
func Transition(venueID int64, agent string, from, to models.Status) Event {
	return Event{
		VenueID: venueID,
		Type:    typeForStatus(to),
		Agent:   agent,
		Level:   LevelInfo,
		Note:    string(from) + " -> " + string(to),
		At:      time.Now().UTC(),
		Data:    map[string]any{"from": string(from), "to": string(to)},
	}
}

// StepError builds the standard failed-step event.
func StepError(venueID int64, agent string, code errs.Code, note string) Event {
	lvl := LevelWarn
	if !code.Retryable() {
		lvl = LevelError
	}
	return Event{
		VenueID: venueID,
		Type:    TypeStepError,
		Agent:   agent,
		Level:   lvl,
		Code:    code,
		Note:    note,
		At:      time.Now().UTC(),
	}
}

func typeForStatus(s models.Status) string {
	switch s {
	case models.StatusSummarized:
		return TypeSummarized
	case models.StatusEnriched:
		return TypeEnriched
	case models.StatusReviewPending:
		return TypeReviewPending
	case models.StatusPublished:
		return TypePublished
	case models.StatusNeedsRevision:
		return TypeNeedsRevision
	case models.StatusFailed:
		return TypeFailed
	default:
		return TypeCreated
	}
}

// StoredEvent is the durable representation. Seq is monotonic per store.
type StoredEvent struct {
	Seq     int64          `json:"seq"`
	VenueID int64          `json:"venue_id"`
	Type    string         `json:"type"`
	Agent   string         `json:"agent"`
	Level   Level          `json:"level"`
	Code    errs.Code      `json:"code,omitempty"`
	Note    string         `json:"note,omitempty"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

// Store persists events. Implementations must keep per-venue ordering.
type Store interface {
	Append(ctx context.Context, ev ...Event) error
	ListByVenue(ctx context.Context, venueID int64) ([]StoredEvent, error)
	Replay(ctx context.Context, venueID int64) (*VenueTimeline, error)
}

// VenueTimeline is the state rebuilt from a venue's log. Small on purpose:
// it answers "where did this record end up and why", full history comes
// from ListByVenue.
type VenueTimeline struct {
	VenueID     int64           `json:"venue_id"`
	Status      models.Status   `json:"status"`
	Attempts    models.Attempts `json:"attempts"`
	Revisions   int             `json:"revisions"`
	LastCode    errs.Code       `json:"last_code,omitempty"`
	LastNote    string          `json:"last_note,omitempty"`
	LastAt      time.Time       `json:"last_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// RebuildState folds events in order into a timeline.
func RebuildState(events []StoredEvent) *VenueTimeline {
	tl := &VenueTimeline{Status: models.StatusNew}
	for _, se := range events {
		tl.VenueID = se.VenueID
		tl.LastAt = se.At

		switch se.Agent {
		case AgentSummarizer:
			tl.Attempts.Summarizer++
		case AgentEnricher:
			tl.Attempts.Enricher++
		case AgentEditor, AgentPublisher:
			tl.Attempts.Editor++
		}

		switch se.Type {
		case TypeSummarized:
			tl.Status = models.StatusSummarized
		case TypeEnriched:
			tl.Status = models.StatusEnriched
		case TypeReviewPending:
			tl.Status = models.StatusReviewPending
		case TypePublished:
			tl.Status = models.StatusPublished
			at := se.At
			tl.PublishedAt = &at
		case TypeNeedsRevision:
			tl.Status = models.StatusNeedsRevision
			tl.Revisions++
		case TypeFailed:
			tl.Status = models.StatusFailed
		}

		if se.Code != "" {
			tl.LastCode = se.Code
		}
		if se.Note != "" {
			tl.LastNote = se.Note
		}
	}
	return tl
}

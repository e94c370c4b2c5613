package pipeline

import (
	"context"
	"strings"
	"time"

	"venue-rails/internal/editor"
	"venue-rails/internal/models"
	"venue-rails/internal/signals"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/events"
)

// step is one unit of agent work. Run takes a copy of the record and
// returns the patched copy plus the log entries describing what
// happened. On error the returned copy still carries the attempt
// counters, so failed tries are not lost when the record settles.
type step interface {
	Agent() string
	Run(ctx context.Context, v models.Venue) (models.Venue, []events.Event, error)
}

// summarizeStep turns raw description text into clean summary and tags.
type summarizeStep struct {
	cap  Summarizer
	calc *signals.Calculator
}

func (s *summarizeStep) Agent() string { return events.AgentSummarizer }

func (s *summarizeStep) Run(ctx context.Context, v models.Venue) (models.Venue, []events.Event, error) {
	const op = "pipeline.summarize"

	from := v.Status
	v.Attempts.Summarizer++

	res, err := s.cap.Summarize(ctx, v)
	if err != nil {
		return v, nil, err
	}
	if strings.TrimSpace(res.Summary) == "" {
		return v, nil, errs.NewBizCode(op, errs.CodeNoSummary, "summarizer returned empty text")
	}

	v.Clean.Summary = res.Summary
	if len(res.Tags) > 0 {
		v.Clean.Tags = res.Tags
	}
	mergeSignals(&v.Signals, res.Signals)

	d := s.calc.Derive(&v)
	v.Signals = d.Signals

	if !v.Status.CanTransition(models.StatusSummarized) {
		return v, nil, errs.NewBizCode(op, errs.CodeInvalidStatus,
			"cannot summarize a record in status "+string(v.Status))
	}
	v.Status = models.StatusSummarized
	v.LastError = ""

	ev := events.Transition(v.ID, events.AgentSummarizer, from, v.Status)
	ev.Data["signals"] = d.Reason
	return v, []events.Event{ev}, nil
}

// mergeSignals folds LLM-proposed booleans into the record. Flags only
// ever turn on; curation already present is never undone.
func mergeSignals(dst *models.Signals, src models.Signals) {
	dst.HQExperience = dst.HQExperience || src.HQExperience
	dst.LocalGem = dst.LocalGem || src.LocalGem
	dst.Dateworthy = dst.Dateworthy || src.Dateworthy
	dst.Extraordinary = dst.Extraordinary || src.Extraordinary
}

// enrichStep resolves the record against the places provider and fills
// geo, contact and commerce gaps.
type enrichStep struct {
	cap Enricher
}

func (s *enrichStep) Agent() string { return events.AgentEnricher }

func (s *enrichStep) Run(ctx context.Context, v models.Venue) (models.Venue, []events.Event, error) {
	const op = "pipeline.enrich"

	from := v.Status
	v.Attempts.Enricher++

	enr, err := s.cap.Enrich(ctx, v)
	if err != nil {
		return v, nil, err
	}
	enr.Apply(&v)

	if !v.Status.CanTransition(models.StatusEnriched) {
		return v, nil, errs.NewBizCode(op, errs.CodeInvalidStatus,
			"cannot enrich a record in status "+string(v.Status))
	}
	v.Status = models.StatusEnriched
	v.LastError = ""

	ev := events.Transition(v.ID, events.AgentEnricher, from, v.Status)
	ev.Data["place_id"] = enr.PlaceID
	return v, []events.Event{ev}, nil
}

// editorStep grades the record and routes it to publish, human review
// or back for revision.
type editorStep struct {
	ed   *editor.Editor
	calc *signals.Calculator
	now  func() time.Time
}

func (s *editorStep) Agent() string { return events.AgentEditor }

func (s *editorStep) Run(ctx context.Context, v models.Venue) (models.Venue, []events.Event, error) {
	from := v.Status
	v.Attempts.Editor++

	out := s.ed.Review(ctx, v)
	v.Quality = out.Flags

	// grades feed the ranked quality score
	d := s.calc.Derive(&v)
	v.Signals = d.Signals

	switch out.NextStatus {
	case models.StatusPublished:
		res, err := editor.Publish(ctx, &v, s.now())
		if err != nil {
			return v, nil, err
		}
		ev := events.Transition(v.ID, events.AgentPublisher, from, models.StatusPublished)
		if len(res.Warnings) > 0 {
			ev.Data["warnings"] = res.Warnings
		}
		return v, []events.Event{ev}, nil

	case models.StatusReviewPending:
		v.Status = models.StatusReviewPending
		v.LastError = ""
		ev := events.Transition(v.ID, events.AgentEditor, from, v.Status)
		ev.Note = out.Reason
		return v, []events.Event{ev}, nil

	default: // revision
		v.Status = models.StatusNeedsRevision
		v.LastError = out.Reason
		ev := events.Transition(v.ID, events.AgentEditor, from, v.Status)
		ev.Note = out.Reason
		if len(out.Issues) > 0 {
			ev.Data["issues"] = out.Issues
			ev.Code = out.Issues[0].Code
		}
		return v, []events.Event{ev}, nil
	}
}

// route picks the step for a record's current status. initial marks the
// first hop of an explicitly requested run: only then does a parked
// NEEDS_REVISION record re-enter the chain, at the step its diagnosis
// points to. A nil step means the record is settled for this job.
func (e *Engine) route(v *models.Venue, initial bool) step {
	switch v.Status {
	case models.StatusNew:
		return e.summarize
	case models.StatusSummarized:
		return e.enrich
	case models.StatusEnriched:
		return e.editorial
	case models.StatusNeedsRevision:
		if !initial {
			return nil
		}
		if strings.TrimSpace(v.Clean.Summary) == "" {
			return e.summarize
		}
		if !v.HasCoords() {
			return e.enrich
		}
		return e.editorial
	default:
		// REVIEW_PENDING moves only by human action; PUBLISHED and
		// FAILED are terminal for the pipeline.
		return nil
	}
}

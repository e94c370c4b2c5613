// Package editor grades record quality and decides whether an enriched
// venue goes out, stops for a human, or goes back for revision.
package editor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"venue-rails/internal/constants"
	"venue-rails/internal/domain/specs"
	"venue-rails/internal/models"
	"venue-rails/pkg/errors"
)

// Config configures the editorial pass.
type Config struct {
	MinSummaryChars    int  // publish floor for the summary
	MinTags            int  // publish floor for the tag set
	RequirePhotos      bool // photos become a publish blocker
	StrictReview       bool // every record stops at REVIEW_PENDING
	WeakFlagsForReview int  // this many weak grades forces an editorial hold
}

// DefaultConfig returns the standard editorial thresholds.
func DefaultConfig() Config {
	return Config{
		MinSummaryChars:    constants.SummaryWeakBelow,
		MinTags:            constants.TagsSparseBelow,
		RequirePhotos:      false,
		StrictReview:       false,
		WeakFlagsForReview: 2,
	}
}

// FieldIssue is one per-field diagnostic from the editorial pass.
type FieldIssue struct {
	Field string      `json:"field"`
	Code  errors.Code `json:"code"`
	Msg   string      `json:"msg"`
}

// Outcome is the editorial decision for one record.
type Outcome struct {
	VenueID    int64               `json:"venue_id"`
	NextStatus models.Status       `json:"next_status"`
	Reason     string              `json:"reason"`
	Issues     []FieldIssue        `json:"issues,omitempty"`   // blockers
	Warnings   []string            `json:"warnings,omitempty"` // non-blocking
	Flags      models.QualityFlags `json:"quality_flags"`
	ReviewedAt time.Time           `json:"reviewed_at"`
}

// Editor applies the publish gate and the quality grading.
type Editor struct {
	cfg         Config
	publishSpec specs.Specification[models.Venue]
}

func New(cfg Config) *Editor {
	if cfg.MinSummaryChars <= 0 {
		cfg.MinSummaryChars = constants.SummaryWeakBelow
	}
	if cfg.MinTags <= 0 {
		cfg.MinTags = constants.TagsSparseBelow
	}
	if cfg.WeakFlagsForReview <= 0 {
		cfg.WeakFlagsForReview = 2
	}
	return &Editor{
		cfg: cfg,
		publishSpec: specs.BuildPublishSpec(specs.PublishRuleOptions{
			MinSummaryChars: cfg.MinSummaryChars,
			MinTags:         cfg.MinTags,
			RequirePhotos:   cfg.RequirePhotos,
		}),
	}
}

// Grade assigns a quality flag to each graded field. Pure.
func (e *Editor) Grade(v models.Venue) models.QualityFlags {
	var f models.QualityFlags

	switch n := len(strings.TrimSpace(v.Clean.Summary)); {
	case n == 0:
		f.Summary = models.FlagMissing
	case n < constants.SummaryWeakBelow:
		f.Summary = models.FlagWeak
	case n < constants.SummaryExcellentFrom:
		f.Summary = models.FlagGood
	default:
		f.Summary = models.FlagExcellent
	}

	switch n := len(v.Clean.Tags); {
	case n == 0:
		f.Tags = models.FlagMissing
	case n < constants.TagsSparseBelow:
		f.Tags = models.FlagSparse
	case n < constants.TagsRichFrom:
		f.Tags = models.FlagGood
	default:
		f.Tags = models.FlagRich
	}

	switch n := len(v.Media.Photos); {
	case n == 0:
		f.Photos = models.FlagMissing
	case n < constants.PhotosExcellentFrom:
		f.Photos = models.FlagOK
	default:
		f.Photos = models.FlagExcellent
	}

	if v.HasCoords() {
		f.Coords = models.FlagPresent
	} else {
		f.Coords = models.FlagMissing
	}

	return f
}

// Review decides the next status for an enriched record. Critical gaps go
// back for revision with per-field diagnostics; weak-but-publishable
// records either publish with warnings or stop for a human, depending on
// configuration.
func (e *Editor) Review(ctx context.Context, v models.Venue) Outcome {
	out := Outcome{
		VenueID:    v.ID,
		Flags:      e.Grade(v),
		ReviewedAt: time.Now().UTC(),
	}

	// critical invariants first
	out.Issues = criticalIssues(v)
	if len(out.Issues) > 0 {
		out.NextStatus = models.StatusNeedsRevision
		out.Reason = fmt.Sprintf("%d critical field issue(s)", len(out.Issues))
		return out
	}

	// publish floors
	if !e.publishSpec.IsSatisfiedBy(ctx, v) {
		out.Issues = floorIssues(v, e.cfg)
		out.NextStatus = models.StatusNeedsRevision
		out.Reason = "record below publish floors"
		return out
	}

	// non-blocking gaps become warnings
	if out.Flags.Photos == models.FlagMissing {
		out.Warnings = append(out.Warnings, "no photos")
	}
	if v.Commerce.Rating == nil {
		out.Warnings = append(out.Warnings, "no rating")
	}
	if out.Flags.Summary == models.FlagWeak {
		out.Warnings = append(out.Warnings, "summary short")
	}
	if out.Flags.Tags == models.FlagSparse {
		out.Warnings = append(out.Warnings, "tag set sparse")
	}

	if e.cfg.StrictReview || e.weakGrades(out.Flags) >= e.cfg.WeakFlagsForReview {
		out.NextStatus = models.StatusReviewPending
		out.Reason = e.holdReason(out)
		return out
	}

	out.NextStatus = models.StatusPublished
	out.Reason = "publish gate satisfied"
	return out
}

func (e *Editor) holdReason(out Outcome) string {
	if e.cfg.StrictReview {
		return "strict review enabled"
	}
	return fmt.Sprintf("%d weak quality grade(s): %s",
		e.weakGrades(out.Flags), strings.Join(out.Warnings, "; "))
}

// weakGrades counts the grades an editor would frown at.
func (e *Editor) weakGrades(f models.QualityFlags) int {
	n := 0
	if f.Summary == models.FlagWeak || f.Summary == models.FlagMissing {
		n++
	}
	if f.Tags == models.FlagSparse || f.Tags == models.FlagMissing {
		n++
	}
	if f.Photos == models.FlagMissing {
		n++
	}
	if f.Coords == models.FlagMissing {
		n++
	}
	return n
}

// Summary renders the editor's runtime configuration for the admin surface.
func (e *Editor) Summary() map[string]any {
	return map[string]any{
		"min_summary_chars":     e.cfg.MinSummaryChars,
		"min_tags":              e.cfg.MinTags,
		"require_photos":        e.cfg.RequirePhotos,
		"strict_review":         e.cfg.StrictReview,
		"weak_flags_for_review": e.cfg.WeakFlagsForReview,
	}
}

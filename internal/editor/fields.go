package editor

import (
	"fmt"
	"strings"

	"venue-rails/internal/models"
	"venue-rails/pkg/errors"
)

// Per-field checks for the publish invariants. Each returns nil when the
// field is acceptable.

func checkName(v models.Venue) *FieldIssue {
	name := strings.TrimSpace(v.Raw.Name)
	if name == "" {
		return &FieldIssue{Field: "name", Code: errors.CodeMissingName, Msg: "name is required"}
	}
	if len(name) < 2 {
		return &FieldIssue{Field: "name", Code: errors.CodeMissingName, Msg: "name must be at least 2 characters"}
	}
	if len(name) > 200 {
		return &FieldIssue{Field: "name", Code: errors.CodeMissingName, Msg: "name must be less than 200 characters"}
	}
	return nil
}

func checkCoords(v models.Venue) *FieldIssue {
	if v.Geo.Lat == nil || v.Geo.Lng == nil {
		return &FieldIssue{Field: "coords", Code: errors.CodeMissingCoords, Msg: "coordinates are required"}
	}
	if !models.CoordsValid(*v.Geo.Lat, *v.Geo.Lng) {
		return &FieldIssue{
			Field: "coords",
			Code:  errors.CodeInvalidCoords,
			Msg:   fmt.Sprintf("coordinates %f,%f out of range", *v.Geo.Lat, *v.Geo.Lng),
		}
	}
	return nil
}

func checkLongForm(v models.Venue) *FieldIssue {
	if !v.HasDescriptionOrSummary() {
		return &FieldIssue{
			Field: "summary",
			Code:  errors.CodeMissingDescriptionOrSum,
			Msg:   "either a description or a summary is required",
		}
	}
	return nil
}

// criticalIssues collects the publish-invariant violations.
func criticalIssues(v models.Venue) []FieldIssue {
	var issues []FieldIssue
	for _, check := range []func(models.Venue) *FieldIssue{checkName, checkCoords, checkLongForm} {
		if issue := check(v); issue != nil {
			issues = append(issues, *issue)
		}
	}
	return issues
}

// floorIssues names the publish floors a record misses. Called when the
// composite spec failed but no invariant is violated, so diagnostics stay
// actionable.
func floorIssues(v models.Venue, cfg Config) []FieldIssue {
	var issues []FieldIssue
	if n := len(strings.TrimSpace(v.Clean.Summary)); n > 0 && n < cfg.MinSummaryChars {
		issues = append(issues, FieldIssue{
			Field: "summary",
			Code:  errors.CodeWeakSummary,
			Msg:   fmt.Sprintf("summary has %d chars, floor is %d", n, cfg.MinSummaryChars),
		})
	}
	if n := len(v.Clean.Tags); n < cfg.MinTags {
		issues = append(issues, FieldIssue{
			Field: "tags",
			Code:  errors.CodeWeakTags,
			Msg:   fmt.Sprintf("%d tag(s), floor is %d", n, cfg.MinTags),
		})
	}
	if cfg.RequirePhotos && len(v.Media.Photos) == 0 {
		issues = append(issues, FieldIssue{
			Field: "photos",
			Code:  errors.CodeNoPhotos,
			Msg:   "photos required for publish",
		})
	}
	if v.Status != models.StatusEnriched && v.Status != models.StatusReviewPending &&
		v.Status != models.StatusNeedsRevision && v.Status != models.StatusPublished {
		issues = append(issues, FieldIssue{
			Field: "status",
			Code:  errors.CodeInvalidStatus,
			Msg:   fmt.Sprintf("status %s has not passed enrichment", v.Status),
		})
	}
	return issues
}

package editor

import (
	"context"
	"strings"
	"testing"
	"time"

	"venue-rails/internal/models"
	"venue-rails/pkg/errors"
)

func enrichedVenue() models.Venue {
	lat, lng := 13.7330, 100.5810
	return models.Venue{
		ID:     7,
		Status: models.StatusEnriched,
		Raw: models.RawInfo{
			Name:        "Sky Garden",
			Category:    "rooftop_bar",
			Description: "Open-air bar on the 32nd floor with a river view.",
		},
		Clean: models.CleanInfo{
			Summary: strings.Repeat("Great rooftop spot with a view. ", 3),
			Tags:    []string{"rooftop_bar", "cocktails", "river_view"},
		},
		Geo:   models.GeoInfo{Lat: &lat, Lng: &lng},
		Media: models.Media{Photos: []string{"a", "b", "c"}},
	}
}

func TestGrade(t *testing.T) {
	e := New(DefaultConfig())

	tests := []struct {
		name   string
		mutate func(v *models.Venue)
		want   models.QualityFlags
	}{
		{
			name:   "solid record",
			mutate: func(v *models.Venue) {},
			want: models.QualityFlags{
				Summary: models.FlagGood,
				Tags:    models.FlagGood,
				Photos:  models.FlagExcellent,
				Coords:  models.FlagPresent,
			},
		},
		{
			name: "everything missing",
			mutate: func(v *models.Venue) {
				v.Clean.Summary = ""
				v.Clean.Tags = nil
				v.Media.Photos = nil
				v.Geo.Lat = nil
			},
			want: models.QualityFlags{
				Summary: models.FlagMissing,
				Tags:    models.FlagMissing,
				Photos:  models.FlagMissing,
				Coords:  models.FlagMissing,
			},
		},
		{
			name: "excellent summary, rich tags",
			mutate: func(v *models.Venue) {
				v.Clean.Summary = strings.Repeat("x", 160)
				v.Clean.Tags = []string{"a", "b", "c", "d", "e", "f", "g", "h"}
			},
			want: models.QualityFlags{
				Summary: models.FlagExcellent,
				Tags:    models.FlagRich,
				Photos:  models.FlagExcellent,
				Coords:  models.FlagPresent,
			},
		},
		{
			name: "weak summary, sparse tags, few photos",
			mutate: func(v *models.Venue) {
				v.Clean.Summary = "Nice rooftop."
				v.Clean.Tags = []string{"rooftop_bar"}
				v.Media.Photos = []string{"a"}
			},
			want: models.QualityFlags{
				Summary: models.FlagWeak,
				Tags:    models.FlagSparse,
				Photos:  models.FlagOK,
				Coords:  models.FlagPresent,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := enrichedVenue()
			tt.mutate(&v)
			if got := e.Grade(v); got != tt.want {
				t.Errorf("Grade() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReview_CriticalGapsGoBack(t *testing.T) {
	e := New(DefaultConfig())
	v := enrichedVenue()
	v.Raw.Name = " "
	v.Geo.Lng = nil

	out := e.Review(context.Background(), v)
	if out.NextStatus != models.StatusNeedsRevision {
		t.Fatalf("expected NEEDS_REVISION, got %s", out.NextStatus)
	}
	if len(out.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d: %+v", len(out.Issues), out.Issues)
	}
	codes := map[errors.Code]bool{}
	for _, issue := range out.Issues {
		codes[issue.Code] = true
	}
	if !codes[errors.CodeMissingName] || !codes[errors.CodeMissingCoords] {
		t.Errorf("expected MISSING_NAME and MISSING_COORDS, got %+v", out.Issues)
	}
}

func TestReview_BelowFloorGoesBack(t *testing.T) {
	e := New(DefaultConfig())
	v := enrichedVenue()
	v.Clean.Summary = "Too short."

	out := e.Review(context.Background(), v)
	if out.NextStatus != models.StatusNeedsRevision {
		t.Fatalf("expected NEEDS_REVISION, got %s", out.NextStatus)
	}
	found := false
	for _, issue := range out.Issues {
		if issue.Code == errors.CodeWeakSummary {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a WEAK_SUMMARY issue, got %+v", out.Issues)
	}
}

func TestReview_CleanRecordPublishes(t *testing.T) {
	e := New(DefaultConfig())
	out := e.Review(context.Background(), enrichedVenue())
	if out.NextStatus != models.StatusPublished {
		t.Fatalf("expected PUBLISHED, got %s (%s)", out.NextStatus, out.Reason)
	}
	if len(out.Issues) != 0 {
		t.Errorf("unexpected issues: %+v", out.Issues)
	}
}

func TestReview_WeakGradesHoldForHuman(t *testing.T) {
	// permissive floors let a weak record through the gate; grading still
	// counts it as weak and holds it
	cfg := DefaultConfig()
	cfg.MinSummaryChars = 1
	e := New(cfg)

	v := enrichedVenue()
	v.Clean.Summary = "Short but allowed."
	v.Media.Photos = nil

	out := e.Review(context.Background(), v)
	if out.NextStatus != models.StatusReviewPending {
		t.Fatalf("expected REVIEW_PENDING, got %s (%s)", out.NextStatus, out.Reason)
	}
	if len(out.Warnings) == 0 {
		t.Error("expected warnings on a held record")
	}
}

func TestReview_StrictModeHoldsEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StrictReview = true
	e := New(cfg)

	out := e.Review(context.Background(), enrichedVenue())
	if out.NextStatus != models.StatusReviewPending {
		t.Fatalf("expected REVIEW_PENDING under strict review, got %s", out.NextStatus)
	}
}

func TestPublish_StampsRecord(t *testing.T) {
	v := enrichedVenue()
	v.LastError = "old failure"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := Publish(context.Background(), &v, now)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected OK result, got %+v", res)
	}
	if v.Status != models.StatusPublished {
		t.Errorf("status = %s, want PUBLISHED", v.Status)
	}
	if v.PublishedAt == nil || !v.PublishedAt.Equal(now) {
		t.Errorf("published_at = %v, want %v", v.PublishedAt, now)
	}
	if v.LastError != "" {
		t.Errorf("last error not cleared: %q", v.LastError)
	}
}

func TestPublish_WarnsOnGaps(t *testing.T) {
	v := enrichedVenue()
	v.Media.Photos = nil

	res, err := Publish(context.Background(), &v, time.Now())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected warnings for missing photos and rating")
	}
	if v.Status != models.StatusPublished {
		t.Errorf("warnings must not block, status = %s", v.Status)
	}
}

func TestPublish_RefusesInvalidRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *models.Venue)
		code   errors.Code
	}{
		{"blank name", func(v *models.Venue) { v.Raw.Name = "" }, errors.CodeMissingName},
		{"wrong status", func(v *models.Venue) { v.Status = models.StatusNew }, errors.CodeInvalidStatus},
		{"no text", func(v *models.Venue) {
			v.Clean.Summary = ""
			v.Raw.Description = ""
		}, errors.CodeMissingDescriptionOrSum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := enrichedVenue()
			tt.mutate(&v)
			before := v.Status

			res, err := Publish(context.Background(), &v, time.Now())
			if err == nil {
				t.Fatal("expected error")
			}
			if res.OK() {
				t.Error("expected issues in result")
			}
			if !errors.HasCode(err, tt.code) {
				t.Errorf("expected code %s, got %v", tt.code, err)
			}
			if v.Status != before {
				t.Errorf("record mutated on refusal: %s", v.Status)
			}
		})
	}
}

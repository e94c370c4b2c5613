package specs

import (
	"context"
	"strings"
	"testing"

	"venue-rails/internal/models"
)

func publishableVenue() models.Venue {
	lat, lng := 13.7330, 100.5810
	pic := "https://img.example/cover.jpg"
	return models.Venue{
		ID:     42,
		Status: models.StatusEnriched,
		Raw: models.RawInfo{
			Name:        "Sky Garden",
			Category:    "rooftop_bar",
			Description: "Open-air bar on the 32nd floor with a river view.",
		},
		Clean: models.CleanInfo{
			Summary: strings.Repeat("Great rooftop spot. ", 4),
			Tags:    []string{"rooftop_bar", "cocktails", "river_view"},
		},
		Geo:   models.GeoInfo{Lat: &lat, Lng: &lng},
		Media: models.Media{PictureURL: &pic},
	}
}

func TestPublishSpec(t *testing.T) {
	opts := PublishRuleOptions{MinSummaryChars: 60, MinTags: 3}
	spec := BuildPublishSpec(opts)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(v *models.Venue)
		want   bool
	}{
		{name: "complete venue passes", mutate: func(v *models.Venue) {}, want: true},
		{name: "wrong status fails", mutate: func(v *models.Venue) { v.Status = models.StatusNew }, want: false},
		{name: "blank name fails", mutate: func(v *models.Venue) { v.Raw.Name = "  " }, want: false},
		{name: "missing coords fails", mutate: func(v *models.Venue) { v.Geo.Lat = nil }, want: false},
		{name: "out of range coords fails", mutate: func(v *models.Venue) {
			bad := 181.0
			v.Geo.Lng = &bad
		}, want: false},
		{name: "no text at all fails", mutate: func(v *models.Venue) {
			v.Clean.Summary = ""
			v.Raw.Description = ""
		}, want: false},
		{name: "weak summary fails", mutate: func(v *models.Venue) { v.Clean.Summary = "Nice." }, want: false},
		{name: "missing summary with description passes", mutate: func(v *models.Venue) { v.Clean.Summary = "" }, want: true},
		{name: "too few tags fails", mutate: func(v *models.Venue) { v.Clean.Tags = []string{"cocktails"} }, want: false},
		{name: "blank tags do not count", mutate: func(v *models.Venue) {
			v.Clean.Tags = []string{"cocktails", " ", ""}
		}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := publishableVenue()
			tt.mutate(&v)
			if got := spec.IsSatisfiedBy(ctx, v); got != tt.want {
				t.Fatalf("IsSatisfiedBy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublishSpecRequirePhotos(t *testing.T) {
	spec := BuildPublishSpec(PublishRuleOptions{MinSummaryChars: 60, MinTags: 3, RequirePhotos: true})
	ctx := context.Background()

	v := publishableVenue()
	if !spec.IsSatisfiedBy(ctx, v) {
		t.Fatal("venue with a cover picture should pass the photo gate")
	}
	v.Media.PictureURL = nil
	v.Media.Photos = nil
	if spec.IsSatisfiedBy(ctx, v) {
		t.Fatal("venue with no imagery should fail the photo gate")
	}
	v.Media.Photos = []string{"https://img.example/a.jpg"}
	if !spec.IsSatisfiedBy(ctx, v) {
		t.Fatal("gallery photos should satisfy the photo gate")
	}
}

func TestSpecComposition(t *testing.T) {
	ctx := context.Background()
	yes := New(func(ctx context.Context, v models.Venue) bool { return true })
	no := New(func(ctx context.Context, v models.Venue) bool { return false })
	v := publishableVenue()

	if yes.And(no).IsSatisfiedBy(ctx, v) {
		t.Error("true AND false should be false")
	}
	if !yes.Or(no).IsSatisfiedBy(ctx, v) {
		t.Error("true OR false should be true")
	}
	if !no.Not().IsSatisfiedBy(ctx, v) {
		t.Error("NOT false should be true")
	}
}

func TestSpecHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spec := HasDisplayName().And(HasValidCoords())
	if spec.IsSatisfiedBy(ctx, publishableVenue()) {
		t.Fatal("cancelled context should short-circuit composed specs to false")
	}
}

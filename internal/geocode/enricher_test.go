package geocode

import (
	"strings"
	"testing"

	"venue-rails/internal/models"
	"venue-rails/pkg/errors"

	"googlemaps.github.io/maps"
)

func testEnricher() *Enricher {
	return &Enricher{cfg: Config{MaxPhotos: 3, PhotoMaxWidth: 800}}
}

func TestBuildEnrichment_DetailsWin(t *testing.T) {
	top := maps.PlacesSearchResult{
		PlaceID:          "search-id",
		FormattedAddress: "search address",
		Rating:           4.5,
		UserRatingsTotal: 120,
		PriceLevel:       2,
		Geometry: maps.AddressGeometry{
			Location: maps.LatLng{Lat: 13.70, Lng: 100.50},
		},
	}
	details := maps.PlaceDetailsResult{
		PlaceID:              "details-id",
		FormattedAddress:     "55 Sukhumvit Soi 12, Bangkok",
		FormattedPhoneNumber: "+66 2 123 4567",
		Website:              "https://example.test",
		URL:                  "https://maps.google.com/?cid=1",
		BusinessStatus:       "OPERATIONAL",
		Geometry: maps.AddressGeometry{
			Location: maps.LatLng{Lat: 13.7384, Lng: 100.5609},
		},
	}

	enr, err := testEnricher().buildEnrichment(top, &details)
	if err != nil {
		t.Fatalf("buildEnrichment: %v", err)
	}

	if enr.PlaceID != "details-id" {
		t.Errorf("expected details place id, got %q", enr.PlaceID)
	}
	if enr.Lat != 13.7384 || enr.Lng != 100.5609 {
		t.Errorf("expected details coords, got %f,%f", enr.Lat, enr.Lng)
	}
	if enr.FormattedAddress != "55 Sukhumvit Soi 12, Bangkok" {
		t.Errorf("unexpected address %q", enr.FormattedAddress)
	}
	// rating and review count come from the search hit
	if enr.Rating != 4.5 {
		t.Errorf("expected rating 4.5, got %f", enr.Rating)
	}
	if enr.ReviewCount != 120 {
		t.Errorf("expected 120 reviews, got %d", enr.ReviewCount)
	}
	if enr.PriceLevel != 2 {
		t.Errorf("expected price level 2, got %d", enr.PriceLevel)
	}
	if !enr.BusinessOpen {
		t.Error("expected business open")
	}
}

func TestBuildEnrichment_SearchGeometryFallback(t *testing.T) {
	top := maps.PlacesSearchResult{
		PlaceID: "search-id",
		Geometry: maps.AddressGeometry{
			Location: maps.LatLng{Lat: 13.75, Lng: 100.49},
		},
	}
	details := maps.PlaceDetailsResult{}

	enr, err := testEnricher().buildEnrichment(top, &details)
	if err != nil {
		t.Fatalf("buildEnrichment: %v", err)
	}
	if enr.Lat != 13.75 || enr.Lng != 100.49 {
		t.Errorf("expected search coords, got %f,%f", enr.Lat, enr.Lng)
	}
	if enr.PlaceID != "search-id" {
		t.Errorf("expected search place id, got %q", enr.PlaceID)
	}
}

func TestBuildEnrichment_RejectsUnusableCoords(t *testing.T) {
	cases := []struct {
		name     string
		lat, lng float64
	}{
		{"null island", 0, 0},
		{"latitude out of range", 91.0, 100.5},
		{"longitude out of range", 13.7, 181.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			details := maps.PlaceDetailsResult{
				Geometry: maps.AddressGeometry{
					Location: maps.LatLng{Lat: tc.lat, Lng: tc.lng},
				},
			}
			_, err := testEnricher().buildEnrichment(maps.PlacesSearchResult{}, &details)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.HasCode(err, errors.CodeInvalidCoords) {
				t.Errorf("expected INVALID_COORDS, got %v", err)
			}
		})
	}
}

func TestBestCandidate(t *testing.T) {
	results := []maps.PlacesSearchResult{
		{Name: "Vertigo Rooftop Bar", FormattedAddress: "21/100 South Sathorn Road, Bangkok 10120"},
		{Name: "Vertigo TOO", FormattedAddress: "21/100 South Sathorn Road, Bangkok 10120"},
		{Name: "Sirocco Sky Bar", FormattedAddress: "1055 Silom Road, Bangkok 10500"},
	}

	t.Run("name and address pick the right hit", func(t *testing.T) {
		raw := models.RawInfo{Name: "Sirocco", Address: "1055 Silom Rd, Bangkok"}
		got, score := bestCandidate(results, raw)
		if got.Name != "Sirocco Sky Bar" {
			t.Errorf("picked %q, want Sirocco Sky Bar", got.Name)
		}
		if score < matchFloor {
			t.Errorf("score %f below floor for a genuine match", score)
		}
	})

	t.Run("name alone when the record has no address", func(t *testing.T) {
		raw := models.RawInfo{Name: "vertigo rooftop bar"}
		got, score := bestCandidate(results, raw)
		if got.Name != "Vertigo Rooftop Bar" {
			t.Errorf("picked %q, want Vertigo Rooftop Bar", got.Name)
		}
		if score < 0.99 {
			t.Errorf("folded exact name should score ~1.0, got %f", score)
		}
	})

	t.Run("unrelated hits stay under the floor", func(t *testing.T) {
		raw := models.RawInfo{Name: "Somtum Der Isaan Kitchen"}
		_, score := bestCandidate(results, raw)
		if score >= matchFloor {
			t.Errorf("score %f should miss the floor", score)
		}
	})
}

func TestPhotoURLs_CapsAndEscapes(t *testing.T) {
	photos := []maps.Photo{
		{PhotoReference: "ref one"},
		{PhotoReference: "ref2"},
		{PhotoReference: ""},
		{PhotoReference: "ref4"},
	}

	urls := testEnricher().photoURLs(photos)
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls (cap 3, one empty ref), got %d: %v", len(urls), urls)
	}
	if !strings.Contains(urls[0], "photoreference=ref+one") {
		t.Errorf("expected escaped reference, got %q", urls[0])
	}
	if !strings.Contains(urls[0], "maxwidth=800") {
		t.Errorf("expected maxwidth param, got %q", urls[0])
	}
}

func TestApply_FillsGapsOnly(t *testing.T) {
	curatedPhone := "+66 99 999 9999"
	v := models.Venue{}
	v.Clean.Phone = &curatedPhone

	enr := &Enrichment{
		PlaceID:          "pid",
		Lat:              13.7,
		Lng:              100.5,
		FormattedAddress: "addr",
		Phone:            "+66 2 000 0000",
		Website:          "https://site.test",
		Rating:           4.5,
		PriceLevel:       3,
		ReviewCount:      100,
		Photos:           []string{"p1", "p2"},
	}
	enr.Apply(&v)

	if v.Geo.Lat == nil || *v.Geo.Lat != 13.7 {
		t.Error("geo lat not applied")
	}
	if *v.Clean.Phone != curatedPhone {
		t.Errorf("curated phone clobbered: %q", *v.Clean.Phone)
	}
	if v.Clean.Website == nil || *v.Clean.Website != "https://site.test" {
		t.Error("website not filled")
	}
	if v.Commerce.Rating == nil || *v.Commerce.Rating != 4.5 {
		t.Error("rating not filled")
	}
	if v.Media.PictureURL == nil || *v.Media.PictureURL != "p1" {
		t.Error("picture url not set from first photo")
	}
	if v.Signals.Popularity <= 0 || v.Signals.Popularity > 1 {
		t.Errorf("popularity out of range: %f", v.Signals.Popularity)
	}
}

func TestApply_CanonicalizesPhone(t *testing.T) {
	v := models.Venue{}
	enr := &Enrichment{Lat: 13.7, Lng: 100.5, Phone: "02 123 4567"}
	enr.Apply(&v)

	if v.Clean.Phone == nil || *v.Clean.Phone != "+6621234567" {
		t.Errorf("expected canonical phone +6621234567, got %v", v.Clean.Phone)
	}
}

func TestApply_SecondRunKeepsFirstValues(t *testing.T) {
	v := models.Venue{}
	first := &Enrichment{Lat: 13.7, Lng: 100.5, Rating: 4.0, Website: "https://a.test"}
	first.Apply(&v)

	second := &Enrichment{Lat: 13.8, Lng: 100.6, Rating: 3.0, Website: "https://b.test"}
	second.Apply(&v)

	if *v.Geo.Lat != 13.8 {
		t.Errorf("geo should follow the latest run, got %f", *v.Geo.Lat)
	}
	if *v.Commerce.Rating != 4.0 {
		t.Errorf("rating should keep the first fill, got %f", *v.Commerce.Rating)
	}
	if *v.Clean.Website != "https://a.test" {
		t.Errorf("website should keep the first fill, got %q", *v.Clean.Website)
	}
}

func TestHoursDocument(t *testing.T) {
	oh := &maps.OpeningHours{
		Periods: []maps.OpeningHoursPeriod{
			{
				Open:  maps.OpeningHoursOpenClose{Day: 1, Time: "1700"},
				Close: maps.OpeningHoursOpenClose{Day: 2, Time: "0100"},
			},
			{
				Open:  maps.OpeningHoursOpenClose{Day: 1, Time: "1100"},
				Close: maps.OpeningHoursOpenClose{Day: 1, Time: "1400"},
			},
		},
	}

	doc := hoursDocument(oh)
	if doc == "" {
		t.Fatal("expected a document")
	}
	// intervals sorted by opening time
	lunch := strings.Index(doc, "11:00")
	dinner := strings.Index(doc, "17:00")
	if lunch == -1 || dinner == -1 || lunch > dinner {
		t.Errorf("expected sorted intervals, got %s", doc)
	}

	if got := hoursDocument(nil); got != "" {
		t.Errorf("expected empty document for nil hours, got %q", got)
	}
	if got := hoursDocument(&maps.OpeningHours{}); got != "" {
		t.Errorf("expected empty document for empty hours, got %q", got)
	}
}

func TestPopularityFromReviews(t *testing.T) {
	if got := popularityFromReviews(0); got != 0 {
		t.Errorf("expected 0 for no reviews, got %f", got)
	}
	if got := popularityFromReviews(10000); got != 1 {
		t.Errorf("expected saturation at 1, got %f", got)
	}
	mid := popularityFromReviews(100)
	if mid <= 0 || mid >= 1 {
		t.Errorf("expected mid-scale value, got %f", mid)
	}
	if popularityFromReviews(100) >= popularityFromReviews(1000) {
		t.Error("expected popularity to grow with review count")
	}
}

package search

import (
	"math"
	"testing"

	"venue-rails/internal/models"
	"venue-rails/internal/ontology"
	"venue-rails/internal/slotter"
)

func TestGeoScore(t *testing.T) {
	tests := []struct {
		name string
		d    *float64
		want float64
	}{
		{"no distance scores zero", nil, 0},
		{"at the caller", fptr(0), 1},
		{"at tau", fptr(500), 0.5},
		{"three tau out", fptr(1500), 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := geoScore(tt.d); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("geoScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	set := tagSet("rooftop_bar", []string{"skyline", "night_out"})

	tests := []struct {
		name string
		tags []string
		want float64
	}{
		{"disjoint", []string{"coffee"}, 0},
		{"identical", []string{"rooftop_bar", "skyline", "night_out"}, 1},
		{"partial", []string{"rooftop_bar", "cozy"}, 0.25}, // 1 of 4
		{"duplicates do not inflate", []string{"skyline", "skyline"}, 1.0 / 3},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jaccard(tt.tags, set); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("jaccard(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestSignalBoost(t *testing.T) {
	full := models.Signals{HQExperience: true, EditorPick: true, QualityScore: 1}
	if got := signalBoost(full); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("signalBoost(full) = %v, want 0.7", got)
	}
	if got := signalBoost(models.Signals{}); got != 0 {
		t.Errorf("signalBoost(zero) = %v, want 0", got)
	}
}

func TestBadgesFor(t *testing.T) {
	r := &models.SearchRow{
		DistanceM: fptr(400),
		Signals: models.Signals{
			HQExperience:  true,
			EditorPick:    true,
			LocalGem:      true,
			Extraordinary: true,
		},
	}
	got := badgesFor(r)
	want := []string{"hq", "editor", "local gem", "one of a kind", "near you"}
	if len(got) != len(want) {
		t.Fatalf("badges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("badge[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	far := &models.SearchRow{DistanceM: fptr(2500)}
	if b := badgesFor(far); len(b) != 0 {
		t.Errorf("badges for a distant plain row = %v, want none", b)
	}
}

func TestRankCandidates_TieBreaks(t *testing.T) {
	mk := func(id int64, rating float64, price int) scoredRow {
		r := &models.SearchRow{VenueID: id}
		if rating > 0 {
			r.Rating = fptr(rating)
		}
		if price > 0 {
			r.PriceLevel = iptr(price)
		}
		return scoredRow{row: r, score: 1.0}
	}

	t.Run("rating breaks score ties", func(t *testing.T) {
		cands := []scoredRow{mk(1, 4.2, 0), mk(2, 4.8, 0)}
		rankCandidates(cands, false)
		if cands[0].row.VenueID != 2 {
			t.Errorf("first = %d, want the higher-rated 2", cands[0].row.VenueID)
		}
	})

	t.Run("premium prefers pricier on equal rating", func(t *testing.T) {
		cands := []scoredRow{mk(1, 4.5, 2), mk(2, 4.5, 4)}
		rankCandidates(cands, true)
		if cands[0].row.VenueID != 2 {
			t.Errorf("first = %d, want the pricier 2", cands[0].row.VenueID)
		}
	})

	t.Run("non-premium ignores price and falls to id", func(t *testing.T) {
		cands := []scoredRow{mk(2, 4.5, 4), mk(1, 4.5, 2)}
		rankCandidates(cands, false)
		if cands[0].row.VenueID != 1 {
			t.Errorf("first = %d, want the lower id 1", cands[0].row.VenueID)
		}
	})
}

func TestImpliesPremium(t *testing.T) {
	tests := []struct {
		name string
		slot slotter.Slot
		want bool
	}{
		{"luxury canonical", slotter.Slot{Canonical: "luxury"}, true},
		{"premium expansion", slotter.Slot{Canonical: "wine", Expansions: []string{"wine", "fine_dining"}}, true},
		{"plain vibe", slotter.Slot{Canonical: "chill", Expansions: []string{"chill", "cozy"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := impliesPremium(tt.slot); got != tt.want {
				t.Errorf("impliesPremium = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetchLimit(t *testing.T) {
	if got := fetchLimit(6); got != 18 {
		t.Errorf("fetchLimit(6) = %d, want 18", got)
	}
	if got := fetchLimit(25); got != 60 {
		t.Errorf("fetchLimit(25) = %d, want the cap 60", got)
	}
}

func TestBooleanQuery_DedupsTerms(t *testing.T) {
	slot := slotter.Slot{
		Type:       ontology.TypeExperience,
		Canonical:  "rooftop_bar",
		Expansions: []string{"rooftop_bar", "skyline"},
	}
	if got := booleanQuery(slot); got != "rooftop_bar skyline" {
		t.Errorf("booleanQuery = %q, want %q", got, "rooftop_bar skyline")
	}
}

func TestModeWeights(t *testing.T) {
	if w := VibeWeights(); w.Vibe != 1.2 || w.Lex != 1.0 {
		t.Errorf("VibeWeights = %+v", w)
	}
	if w := SurpriseWeights(); w.Signal != 1.0 || w.Vibe != 0.6 {
		t.Errorf("SurpriseWeights = %+v", w)
	}
}

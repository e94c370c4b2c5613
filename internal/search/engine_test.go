package search

import (
	"context"
	"testing"
	"time"

	"venue-rails/internal/domain"
	"venue-rails/internal/models"
	"venue-rails/internal/ontology"
	"venue-rails/internal/slotter"
	testutil "venue-rails/internal/testing"
	errs "venue-rails/pkg/errors"
)

// fakeViewRepo serves canned rows and records the params it was asked for.
type fakeViewRepo struct {
	rows   []models.SearchRow
	total  int
	err    error
	delay  time.Duration
	params []domain.SearchParams
}

var _ domain.SearchRepository = (*fakeViewRepo)(nil)

func (f *fakeViewRepo) SearchViewCtx(ctx context.Context, p domain.SearchParams) ([]models.SearchRow, int, error) {
	f.params = append(f.params, p)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	total := f.total
	if total == 0 {
		total = len(f.rows)
	}
	return f.rows, total, nil
}

func (f *fakeViewRepo) lastParams(t *testing.T) domain.SearchParams {
	t.Helper()
	if len(f.params) == 0 {
		t.Fatal("no view query was issued")
	}
	return f.params[len(f.params)-1]
}

func newTestEngine(t *testing.T, repo *fakeViewRepo, cfg Config) *Engine {
	t.Helper()
	return New(repo, cfg, testutil.NewTestLogger(t))
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func rooftopSlot() slotter.Slot {
	return slotter.Slot{
		Type:       ontology.TypeExperience,
		Canonical:  "rooftop_bar",
		Label:      "Rooftop bars",
		Confidence: 0.95,
		MatchKind:  slotter.KindPhrase,
		Expansions: []string{"rooftop_bar", "skyline", "scenic_view", "night_out"},
	}
}

func TestSearchBySlot_RescoresBeyondStoreOrder(t *testing.T) {
	repo := &fakeViewRepo{rows: []models.SearchRow{
		{VenueID: 1, Name: "Loud Words", Relevance: 10},
		{VenueID: 2, Name: "Skyline Deck", Relevance: 8, DistanceM: fptr(200),
			Tags: []string{"rooftop_bar", "skyline"}},
		{VenueID: 3, Name: "Quiet Curation", Relevance: 5,
			Signals: models.Signals{HQExperience: true}},
	}}
	e := newTestEngine(t, repo, DefaultConfig())

	lat, lng := 13.73, 100.57
	res, err := e.SearchBySlot(context.Background(), rooftopSlot(), Options{
		Limit: 2, Lat: &lat, Lng: &lng, RadiusM: 3000,
	})
	if err != nil {
		t.Fatalf("SearchBySlot() error: %v", err)
	}

	if len(res.Cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(res.Cards))
	}
	// Geo proximity and tag overlap outrank a stronger lexical match.
	if res.Cards[0].ID != 2 || res.Cards[1].ID != 1 {
		t.Errorf("card order = [%d %d], want [2 1]", res.Cards[0].ID, res.Cards[1].ID)
	}
	if res.Cards[0].Score <= res.Cards[1].Score {
		t.Errorf("scores not descending: %v then %v", res.Cards[0].Score, res.Cards[1].Score)
	}
	if res.Total != 3 {
		t.Errorf("Total = %d, want 3", res.Total)
	}
	if want := "rooftop_bar skyline scenic_view night_out"; res.Expr != want {
		t.Errorf("Expr = %q, want %q", res.Expr, want)
	}
	if len(res.Cards[0].Badges) != 1 || res.Cards[0].Badges[0] != "near you" {
		t.Errorf("badges = %v, want [near you]", res.Cards[0].Badges)
	}

	p := repo.lastParams(t)
	if p.Sort != domain.SortRelevance {
		t.Errorf("sort = %q, want relevance", p.Sort)
	}
	if p.Limit != 6 { // 3x over-fetch of the requested 2
		t.Errorf("fetch limit = %d, want 6", p.Limit)
	}
	if p.RadiusM != 3000 || p.Lat == nil || *p.Lat != lat {
		t.Errorf("geo params did not pass through: %+v", p)
	}
}

func TestSearchBySlot_EditorialFallbackBrowses(t *testing.T) {
	repo := &fakeViewRepo{rows: []models.SearchRow{
		{VenueID: 7, Name: "Curated One", Signals: models.Signals{QualityScore: 0.9}},
		{VenueID: 8, Name: "Curated Two", Signals: models.Signals{QualityScore: 0.6}},
	}}
	e := newTestEngine(t, repo, DefaultConfig())

	slot := slotter.Slot{
		Type:      ontology.TypeVibe,
		Canonical: slotter.StrategyEditorial,
		MatchKind: slotter.KindFallback,
	}
	res, err := e.SearchBySlot(context.Background(), slot, Options{Limit: 5})
	if err != nil {
		t.Fatalf("SearchBySlot() error: %v", err)
	}

	if res.Kind != "editorial" {
		t.Errorf("Kind = %q, want editorial", res.Kind)
	}
	if p := repo.lastParams(t); p.Query != "" {
		t.Errorf("editorial browse sent a lexical query %q", p.Query)
	}
	// Store order is the ranking; the quality score rides as the score.
	if res.Cards[0].ID != 7 || res.Cards[0].Score != 0.9 {
		t.Errorf("card[0] = id %d score %v, want id 7 score 0.9", res.Cards[0].ID, res.Cards[0].Score)
	}
}

func TestSearchBySlot_AreaSlotBoundsByViewport(t *testing.T) {
	repo := &fakeViewRepo{}
	e := newTestEngine(t, repo, DefaultConfig())

	slot := slotter.Slot{Type: ontology.TypeArea, Canonical: "thonglor"}
	if _, err := e.SearchBySlot(context.Background(), slot, Options{Limit: 6}); err != nil {
		t.Fatalf("SearchBySlot() error: %v", err)
	}

	p := repo.lastParams(t)
	if p.Query != "" {
		t.Errorf("area slot still sent lexical query %q", p.Query)
	}
	if p.Viewport == nil {
		t.Fatal("area slot did not set a viewport")
	}
	if !p.Viewport.Contains(13.732, 100.585) { // Thonglor center
		t.Errorf("viewport %+v does not cover the area center", *p.Viewport)
	}
}

func TestSearchBySlot_DishSlotRequiresItsTag(t *testing.T) {
	repo := &fakeViewRepo{}
	e := newTestEngine(t, repo, DefaultConfig())

	slot := slotter.Slot{
		Type:       ontology.TypeDish,
		Canonical:  "tom_yum",
		Expansions: []string{"tom_yum", "thai", "spicy", "soup"},
	}
	if _, err := e.SearchBySlot(context.Background(), slot, Options{Limit: 6}); err != nil {
		t.Fatalf("SearchBySlot() error: %v", err)
	}

	p := repo.lastParams(t)
	if len(p.Tags) != 1 || p.Tags[0] != "tom_yum" {
		t.Errorf("required tags = %v, want [tom_yum]", p.Tags)
	}
}

func TestSearchBySlot_VibeVectorLiftsTasteMatches(t *testing.T) {
	repo := &fakeViewRepo{rows: []models.SearchRow{
		{VenueID: 1, Name: "Cocktail Den", Relevance: 5, Tags: []string{"cocktails"}},
		{VenueID: 2, Name: "Jazz Cellar", Relevance: 5, Tags: []string{"live_music"}},
	}}
	e := newTestEngine(t, repo, DefaultConfig())

	slot := slotter.Slot{Type: ontology.TypeVibe, Canonical: "chill", Expansions: []string{"chill"}}
	res, err := e.SearchBySlot(context.Background(), slot, Options{
		Limit:      2,
		VibeVector: map[string]float64{"live_music": 0.9},
	})
	if err != nil {
		t.Fatalf("SearchBySlot() error: %v", err)
	}
	if res.Cards[0].ID != 2 {
		t.Errorf("card[0].ID = %d, want the session-affine venue 2", res.Cards[0].ID)
	}
}

func TestSearch_TextQuery(t *testing.T) {
	t.Run("store order is preserved for pagination", func(t *testing.T) {
		repo := &fakeViewRepo{rows: []models.SearchRow{
			{VenueID: 4, Name: "First In Store", Relevance: 2},
			{VenueID: 5, Name: "Second In Store", Relevance: 9},
		}}
		e := newTestEngine(t, repo, DefaultConfig())

		res, err := e.Search(context.Background(), TextQuery{Query: "Craft +Beer -dive", Limit: 10, Offset: 10})
		if err != nil {
			t.Fatalf("Search() error: %v", err)
		}
		if res.Cards[0].ID != 4 || res.Cards[1].ID != 5 {
			t.Errorf("order = [%d %d], want store order [4 5]", res.Cards[0].ID, res.Cards[1].ID)
		}

		p := repo.lastParams(t)
		if p.Query != "craft beer dive" {
			t.Errorf("boolean query = %q, want operators stripped", p.Query)
		}
		if p.Offset != 10 {
			t.Errorf("offset = %d, want 10", p.Offset)
		}
	})

	t.Run("unsupported sort is rejected", func(t *testing.T) {
		e := newTestEngine(t, &fakeViewRepo{}, DefaultConfig())

		_, err := e.Search(context.Background(), TextQuery{Query: "rooftop", Sort: "rating"})
		if !errs.HasCode(err, errs.CodeInvalidSort) {
			t.Errorf("err = %v, want %s", err, errs.CodeInvalidSort)
		}
	})

	t.Run("empty text browses editorial", func(t *testing.T) {
		repo := &fakeViewRepo{}
		e := newTestEngine(t, repo, DefaultConfig())

		res, err := e.Search(context.Background(), TextQuery{Query: "   "})
		if err != nil {
			t.Fatalf("Search() error: %v", err)
		}
		if res.Kind != "editorial" {
			t.Errorf("Kind = %q, want editorial", res.Kind)
		}
	})
}

func TestBrowseEditorial_AreaViewport(t *testing.T) {
	repo := &fakeViewRepo{}
	e := newTestEngine(t, repo, DefaultConfig())

	if _, err := e.BrowseEditorial(context.Background(), Options{Area: "Thonglor"}); err != nil {
		t.Fatalf("BrowseEditorial() error: %v", err)
	}
	if p := repo.lastParams(t); p.Viewport == nil {
		t.Error("known area did not narrow the viewport")
	}

	if _, err := e.BrowseEditorial(context.Background(), Options{Area: "gotham"}); err != nil {
		t.Fatalf("BrowseEditorial() error: %v", err)
	}
	if p := repo.lastParams(t); p.Viewport != nil {
		t.Error("unknown area produced a viewport")
	}
}

func TestQuery_DeadlineYieldsTypedTimeout(t *testing.T) {
	repo := &fakeViewRepo{delay: 100 * time.Millisecond}
	e := newTestEngine(t, repo, Config{Timeout: 5 * time.Millisecond, DefaultLimit: 6})

	_, err := e.SearchBySlot(context.Background(), rooftopSlot(), Options{Limit: 6})
	if !errs.HasCode(err, errs.CodeTimeout) {
		t.Errorf("err = %v, want %s", err, errs.CodeTimeout)
	}
}

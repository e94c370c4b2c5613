package slotter

import (
	"context"
	"testing"

	"venue-rails/internal/ontology"
	testutil "venue-rails/internal/testing"
	"venue-rails/pkg/config"
)

func newTestSlotter(t *testing.T, cfg Config) *Slotter {
	t.Helper()
	onto, err := ontology.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	return New(onto, cfg, testutil.NewTestLogger(t))
}

func mustParse(t *testing.T, s *Slotter, query string) *Result {
	t.Helper()
	res, err := s.Parse(context.Background(), Request{Query: query})
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", query, err)
	}
	return res
}

func canonicals(res *Result) []string {
	out := make([]string, 0, len(res.Slots))
	for _, sl := range res.Slots {
		out = append(out, sl.Canonical)
	}
	return out
}

func TestParse_ExtractsSlots(t *testing.T) {
	s := newTestSlotter(t, DefaultConfig())

	tests := []struct {
		name     string
		query    string
		want     []string
		kinds    []MatchKind
		fallback bool
		reason   string
		vague    bool
	}{
		{
			name:  "phrase plus area unigram",
			query: "sky bar sukhumvit",
			want:  []string{"rooftop_bar", "sukhumvit"},
			kinds: []MatchKind{KindPhrase, KindUnigram},
		},
		{
			name:  "longest phrase absorbs its prefix",
			query: "tom yum goong",
			want:  []string{"tom_yum"},
			kinds: []MatchKind{KindPhrase},
		},
		{
			name:  "spaced canonical beats its unigrams",
			query: "spa massage tonight",
			want:  []string{"spa_massage"},
			kinds: []MatchKind{KindMultiword},
		},
		{
			name:  "same entry extracted once",
			query: "coffee cafe",
			want:  []string{"coffee"},
			kinds: []MatchKind{KindUnigram},
			vague: true,
		},
		{
			name:  "earlier intents win the slot cap",
			query: "thai rooftop cocktails sukhumvit live music",
			want:  []string{"thai", "rooftop_bar", "cocktails"},
		},
		{
			name:  "punctuation folds away",
			query: "today i wanna chill, eat tom yum and go on the rooftop",
			want:  []string{"chill", "tom_yum", "rooftop_bar"},
			kinds: []MatchKind{KindUnigram, KindPhrase, KindUnigram},
		},
		{
			name:  "conversational filler around unigrams",
			query: "i wanna chill movie and something romantic",
			want:  []string{"chill", "cinema", "romantic"},
			kinds: []MatchKind{KindUnigram, KindUnigram, KindUnigram},
		},
		{
			name:  "short query rescues a typo",
			query: "romantik rooftop",
			want:  []string{"romantic", "rooftop_bar"},
			kinds: []MatchKind{KindFuzzy, KindUnigram},
			vague: true,
		},
		{
			name:  "deny phrase kills the sport match",
			query: "thai boxing day",
			want:  []string{"thai"},
			kinds: []MatchKind{KindUnigram},
			vague: true,
		},
		{
			name:  "deny context kills the fuzzy rescue",
			query: "chilli crab",
			want:  []string{"seafood"},
			kinds: []MatchKind{KindUnigram},
			vague: true,
		},
		{
			name:     "unknown words fall back to editorial",
			query:    "somewhere nice tonight",
			want:     []string{StrategyEditorial},
			kinds:    []MatchKind{KindFallback},
			fallback: true,
			reason:   StrategyEditorial,
			vague:    true,
		},
		{
			name:   "empty query yields nothing",
			query:  "   ",
			want:   []string{},
			reason: ReasonEmptyQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustParse(t, s, tt.query)

			got := canonicals(res)
			if len(got) != len(tt.want) {
				t.Fatalf("slots = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("slot[%d] = %q, want %q", i, got[i], tt.want[i])
				}
				if tt.kinds != nil && res.Slots[i].MatchKind != tt.kinds[i] {
					t.Errorf("slot[%d] kind = %q, want %q", i, res.Slots[i].MatchKind, tt.kinds[i])
				}
			}
			if res.FallbackUsed != tt.fallback {
				t.Errorf("FallbackUsed = %v, want %v", res.FallbackUsed, tt.fallback)
			}
			if res.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", res.Reason, tt.reason)
			}
			if res.Vague != tt.vague {
				t.Errorf("Vague = %v, want %v", res.Vague, tt.vague)
			}
		})
	}
}

func TestParse_FloorDropsFuzzyInLongQueries(t *testing.T) {
	s := newTestSlotter(t, DefaultConfig())

	// Four tokens: the normal floor applies and a 0.44-confidence typo
	// rescue no longer qualifies.
	res := mustParse(t, s, "romantik rooftop sukhumvit bangkok")

	if res.Vague {
		t.Error("four-token query flagged vague")
	}
	got := canonicals(res)
	want := []string{"rooftop_bar", "sukhumvit"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("slots = %v, want %v", got, want)
	}
	for _, sl := range res.Slots {
		if sl.Canonical == "romantic" {
			t.Error("fuzzy rescue survived the normal confidence floor")
		}
	}
}

func TestParse_MinConfidenceOverridesFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.8

	s := newTestSlotter(t, cfg)
	res := mustParse(t, s, "rooftop sukhumvit cocktails")

	if !res.FallbackUsed {
		t.Fatalf("expected fallback once unigrams fell below 0.8, got slots %v", canonicals(res))
	}
	if res.Floor != 0.8 {
		t.Errorf("Floor = %v, want 0.8", res.Floor)
	}
}

func TestParse_FallbackOrder(t *testing.T) {
	t.Run("co-occurrence picks the most popular tag", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.FallbackOrder = []string{StrategyCoOccurrence}

		s := newTestSlotter(t, cfg)
		res := mustParse(t, s, "somewhere nice tonight")

		if !res.FallbackUsed || res.Reason != StrategyCoOccurrence {
			t.Fatalf("FallbackUsed = %v, Reason = %q", res.FallbackUsed, res.Reason)
		}
		if got := canonicals(res); len(got) != 1 || got[0] != "thai" {
			t.Errorf("slots = %v, want [thai]", got)
		}
		if res.Slots[0].Type == ontology.TypeArea {
			t.Error("co-occurrence fallback picked an area tag")
		}
	})

	t.Run("disabled fallback reports no intents", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DisableFallback = true

		s := newTestSlotter(t, cfg)
		res := mustParse(t, s, "somewhere nice tonight")

		if res.FallbackUsed {
			t.Error("fallback ran while disabled")
		}
		if res.Reason != ReasonNoIntents {
			t.Errorf("Reason = %q, want %q", res.Reason, ReasonNoIntents)
		}
		if len(res.Slots) != 0 {
			t.Errorf("slots = %v, want none", canonicals(res))
		}
	})
}

func TestParse_CacheReturnsIndependentCopies(t *testing.T) {
	s := newTestSlotter(t, DefaultConfig())

	first := mustParse(t, s, "sky bar")
	if first.CacheHit {
		t.Fatal("first parse reported a cache hit")
	}
	first.Slots[0].Canonical = "mutated"

	second := mustParse(t, s, "sky bar")
	if !second.CacheHit {
		t.Fatal("second parse missed the cache")
	}
	if second.Slots[0].Canonical != "rooftop_bar" {
		t.Errorf("cached slot = %q, caller mutation leaked into the cache", second.Slots[0].Canonical)
	}
	if n := s.CacheLen(); n != 1 {
		t.Errorf("CacheLen() = %d, want 1", n)
	}
}

func TestParse_CacheKeySpansAreaAndRoundedCoords(t *testing.T) {
	s := newTestSlotter(t, DefaultConfig())
	ctx := context.Background()

	lat, lng := 13.7563, 100.5018
	reqs := []Request{
		{Query: "rooftop"},
		{Query: "rooftop", Area: "Thonglor"},
		{Query: "rooftop", Lat: &lat, Lng: &lng},
	}
	for _, req := range reqs {
		res, err := s.Parse(ctx, req)
		if err != nil {
			t.Fatalf("Parse(%+v) error: %v", req, err)
		}
		if res.CacheHit {
			t.Errorf("Parse(%+v) hit the cache on a distinct key", req)
		}
	}
	if n := s.CacheLen(); n != 3 {
		t.Fatalf("CacheLen() = %d, want 3", n)
	}

	// Within ~11m the rounded coordinates collapse onto the same entry.
	nearLat, nearLng := 13.75631, 100.50179
	res, err := s.Parse(ctx, Request{Query: "rooftop", Lat: &nearLat, Lng: &nearLng})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !res.CacheHit {
		t.Error("nearby coordinates missed the shared cache entry")
	}
}

func TestParse_CacheDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheTTL = -1

	s := newTestSlotter(t, cfg)
	for i := 0; i < 2; i++ {
		if res := mustParse(t, s, "sky bar"); res.CacheHit {
			t.Fatal("cache hit with caching disabled")
		}
	}
	if n := s.CacheLen(); n != 0 {
		t.Errorf("CacheLen() = %d, want 0", n)
	}
}

func TestParse_DebugPayload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debug = true

	s := newTestSlotter(t, cfg)
	res := mustParse(t, s, "sky bar sukhumvit")

	if res.Debug == nil {
		t.Fatal("debug flag on but no debug payload")
	}
	if len(res.Debug.Tokens) != 3 {
		t.Errorf("debug tokens = %v, want 3 tokens", res.Debug.Tokens)
	}
	if res.Debug.Candidates == 0 {
		t.Error("debug payload reports zero candidates")
	}

	plain := mustParse(t, newTestSlotter(t, DefaultConfig()), "sky bar sukhumvit")
	if plain.Debug != nil {
		t.Error("debug payload present without the flag")
	}
}

func TestParse_ShadowDoesNotChangeResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shadow = true

	s := newTestSlotter(t, cfg)
	res := mustParse(t, s, "sky bar sukhumvit")

	if got := canonicals(res); len(got) != 2 || got[0] != "rooftop_bar" {
		t.Errorf("slots = %v, want [rooftop_bar sukhumvit]", got)
	}
}

func TestABPicksWide(t *testing.T) {
	if abPicksWide("rooftop bar", 0) {
		t.Error("ratio 0 sent a query to the wide arm")
	}
	if !abPicksWide("rooftop bar", 1) {
		t.Error("ratio 1 kept a query narrow")
	}

	first := abPicksWide("rooftop bar", 0.5)
	for i := 0; i < 20; i++ {
		if abPicksWide("rooftop bar", 0.5) != first {
			t.Fatal("cohort assignment is not deterministic")
		}
	}
}

func TestConfigFromFlags(t *testing.T) {
	cfg := ConfigFromFlags(config.Flags{
		Wide:          true,
		Shadow:        true,
		Debug:         true,
		ABTest:        true,
		ABRatio:       0.25,
		MaxSlots:      5,
		MinConfidence: 0.5,
	})

	if !cfg.Wide || !cfg.Shadow || !cfg.Debug || !cfg.ABTest {
		t.Error("boolean flags did not carry over")
	}
	if cfg.ABRatio != 0.25 || cfg.MaxSlots != 5 || cfg.MinConfidence != 0.5 {
		t.Errorf("numeric flags did not carry over: %+v", cfg)
	}
	if cfg.CacheTTL != DefaultConfig().CacheTTL {
		t.Errorf("CacheTTL = %v, want default when unset", cfg.CacheTTL)
	}

	def := ConfigFromFlags(config.Flags{})
	if def.MaxSlots != DefaultConfig().MaxSlots {
		t.Errorf("MaxSlots = %d, want default when unset", def.MaxSlots)
	}
}

func TestWithConfig_SharesDictionaryAndCache(t *testing.T) {
	s := newTestSlotter(t, DefaultConfig())
	mustParse(t, s, "sky bar")

	next := DefaultConfig()
	next.MaxSlots = 1
	swapped := s.WithConfig(next)

	if swapped.onto != s.onto {
		t.Error("WithConfig rebuilt the dictionary")
	}
	if res := mustParse(t, swapped, "sky bar"); !res.CacheHit {
		t.Error("WithConfig dropped the warm cache")
	}

	res := mustParse(t, swapped, "thai rooftop cocktails sukhumvit live music")
	if len(res.Slots) != 1 {
		t.Errorf("MaxSlots 1 produced %d slots", len(res.Slots))
	}
}

package ontology

import (
	"math"
	"strings"
	"testing"

	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/geo"
)

func mustLoadDefault(t *testing.T) *Ontology {
	t.Helper()
	o, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	return o
}

func TestLoadDefault(t *testing.T) {
	o := mustLoadDefault(t)

	if o.Version() == 0 {
		t.Error("expected a non-zero dictionary version")
	}
	rep := o.Validate()
	if !rep.Healthy() {
		t.Fatalf("embedded dictionary has validation errors: %+v", rep.Errors)
	}
	if rep.Err() != nil {
		t.Errorf("Err() = %v for a healthy report", rep.Err())
	}
	if len(o.Entries()) < 40 {
		t.Errorf("expected at least 40 entries, got %d", len(o.Entries()))
	}
	if o.MaxSurfaceTokens() < 3 {
		t.Errorf("MaxSurfaceTokens() = %d, expected at least 3", o.MaxSurfaceTokens())
	}

	h := o.Health()
	if !h.Healthy || h.Entries == 0 || h.Surfaces == 0 || h.Tags == 0 {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestLookupSurface(t *testing.T) {
	o := mustLoadDefault(t)

	tests := []struct {
		surface     string
		canonical   string
		slotType    SlotType
		fromSynonym bool
	}{
		{"tom yum", "tom_yum", TypeDish, true},
		{"tom yum goong", "tom_yum", TypeDish, true},
		{"sky bar", "rooftop_bar", TypeExperience, true},
		{"thong lo", "thonglor", TypeArea, true},
		{"cafe", "coffee", TypeDrink, true},
		{"spa massage", "spa_massage", TypeExperience, false},
	}

	for _, tt := range tests {
		t.Run(tt.surface, func(t *testing.T) {
			sf, ok := o.LookupSurface(tt.surface)
			if !ok {
				t.Fatalf("LookupSurface(%q) missed", tt.surface)
			}
			if sf.Entry.Canonical != tt.canonical {
				t.Errorf("canonical = %q, want %q", sf.Entry.Canonical, tt.canonical)
			}
			if sf.Entry.Type != tt.slotType {
				t.Errorf("type = %q, want %q", sf.Entry.Type, tt.slotType)
			}
			if sf.FromSynonym != tt.fromSynonym {
				t.Errorf("fromSynonym = %v, want %v", sf.FromSynonym, tt.fromSynonym)
			}
			if want := len(strings.Fields(tt.surface)); sf.Tokens != want {
				t.Errorf("tokens = %d, want %d", sf.Tokens, want)
			}
		})
	}

	if _, ok := o.LookupSurface("no such surface"); ok {
		t.Error("expected a miss for unknown surface")
	}
}

func TestDenyPhrasesFolded(t *testing.T) {
	o := mustLoadDefault(t)

	chill, ok := o.Entry("chill")
	if !ok {
		t.Fatal("chill entry missing")
	}
	found := false
	for _, d := range chill.Deny {
		if d == "chilli crab" {
			found = true
		}
	}
	if !found {
		t.Errorf("chill deny list %v lacks %q", chill.Deny, "chilli crab")
	}
}

func TestBoostMap(t *testing.T) {
	o := mustLoadDefault(t)

	m := o.BoostMap("editors_pick")
	if got := m["editors_pick"]; math.Abs(got-1.2) > 1e-9 {
		t.Errorf("self boost = %f, want 1.2", got)
	}
	if got := m["unique"]; math.Abs(got-1.2*0.6) > 1e-9 {
		t.Errorf("expansion boost = %f, want %f", got, 1.2*0.6)
	}

	if got := o.Boost("chill"); got != 1.0 {
		t.Errorf("default boost = %f, want 1.0", got)
	}
	if m := o.BoostMap("nope"); len(m) != 0 {
		t.Errorf("BoostMap for unknown tag = %v, want empty", m)
	}
}

func TestMostPopular(t *testing.T) {
	o := mustLoadDefault(t)

	top := o.MostPopular()
	if top == nil {
		t.Fatal("MostPopular() = nil")
	}
	if top.Canonical != "thai" {
		t.Errorf("most popular = %q, want thai", top.Canonical)
	}
	if top.Type == TypeArea {
		t.Error("areas must not win the popularity fallback")
	}
}

func TestSuggest(t *testing.T) {
	o := mustLoadDefault(t)

	got := o.Suggest("tom", 5)
	if len(got) == 0 || got[0].Canonical != "tom_yum" {
		t.Fatalf("Suggest(tom) = %+v, want tom_yum first", got)
	}

	got = o.Suggest("s", 3)
	if len(got) != 3 {
		t.Fatalf("Suggest(s, 3) returned %d results", len(got))
	}
	if got[0].Canonical != "street_food" {
		t.Errorf("Suggest(s) first = %q, want street_food (most popular)", got[0].Canonical)
	}

	if got := o.Suggest("", 5); got != nil {
		t.Errorf("Suggest with empty prefix = %+v, want nil", got)
	}
}

func TestAreaEntriesHaveViewports(t *testing.T) {
	o := mustLoadDefault(t)

	for _, e := range o.EntriesByType(TypeArea) {
		if _, ok := geo.LookupArea(e.Canonical); !ok {
			t.Errorf("area entry %q has no geo definition", e.Canonical)
		}
	}
}

func TestParseValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		yaml     string
		wantCode errs.Code
	}{
		{
			name: "missing canonical",
			yaml: `
entries:
  vibe:
    - label: Orphan
      synonyms: [orphan]
`,
			wantCode: errs.CodeMissingCanonical,
		},
		{
			name: "duplicate synonym across entries",
			yaml: `
entries:
  vibe:
    - canonical: calm
      synonyms: [serene]
    - canonical: peaceful
      synonyms: [serene]
`,
			wantCode: errs.CodeDuplicateSynonyms,
		},
		{
			name: "duplicate canonical",
			yaml: `
entries:
  vibe:
    - canonical: calm
      synonyms: [calm]
    - canonical: calm
      synonyms: [serene]
`,
			wantCode: errs.CodeDuplicateSynonyms,
		},
		{
			name: "expansion outside universe",
			yaml: `
entries:
  dish:
    - canonical: laksa
      synonyms: [laksa]
      expansions: [laksa, nonexistent_tag]
`,
			wantCode: errs.CodeInvalidTags,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse failed structurally: %v", err)
			}
			rep := o.Validate()
			if rep.Healthy() {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, is := range rep.Errors {
				if is.Code == tt.wantCode {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %+v lack code %s", rep.Errors, tt.wantCode)
			}
			if rep.Err() == nil {
				t.Error("Err() = nil for unhealthy report")
			}
		})
	}
}

func TestParseWarnings(t *testing.T) {
	t.Parallel()

	src := `
entries:
  vibe:
    - canonical: silent
`
	o, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	rep := o.Validate()
	if !rep.Healthy() {
		t.Fatalf("unexpected errors: %+v", rep.Errors)
	}
	if len(rep.Warnings) == 0 {
		t.Error("expected a warning for an entry without synonyms")
	}
}

func TestParseStructuralErrors(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("entries: [not, a, map]")); err == nil {
		t.Error("expected an error for malformed yaml")
	}
	if _, err := Parse([]byte("entries:\n  mood:\n    - canonical: x\n")); err == nil {
		t.Error("expected an error for unknown slot type")
	}
}

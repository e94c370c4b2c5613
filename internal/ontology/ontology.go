// Package ontology holds the slot dictionary: canonical concepts per slot
// type, their surface synonyms, tag expansions and denylists. The dictionary
// is loaded once (embedded default or ONTOLOGY_PATH) and is immutable after
// load, so readers need no locks.
package ontology

import (
	"sort"
	"strings"
	"time"
)

// SlotType classifies what kind of intent a dictionary entry expresses.
type SlotType string

const (
	TypeVibe       SlotType = "VIBE"
	TypeExperience SlotType = "EXPERIENCE"
	TypeDrink      SlotType = "DRINK"
	TypeCuisine    SlotType = "CUISINE"
	TypeDish       SlotType = "DISH"
	TypeArea       SlotType = "AREA"
)

// slotTypeOrder fixes entry ordering across loads. YAML maps iterate
// randomly in Go, so the loader walks types in this order.
var slotTypeOrder = []SlotType{TypeVibe, TypeExperience, TypeDrink, TypeCuisine, TypeDish, TypeArea}

// Valid reports whether t is one of the known slot types.
func (t SlotType) Valid() bool {
	switch t {
	case TypeVibe, TypeExperience, TypeDrink, TypeCuisine, TypeDish, TypeArea:
		return true
	}
	return false
}

// SlotTypes returns all known slot types in canonical order.
func SlotTypes() []SlotType {
	out := make([]SlotType, len(slotTypeOrder))
	copy(out, slotTypeOrder)
	return out
}

// ParseSlotType maps a string (any case) to a SlotType.
func ParseSlotType(s string) (SlotType, bool) {
	t := SlotType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Entry is one canonical concept. Surfaces and deny phrases are stored
// case-folded; Expansions reference tags that must exist in the universe.
type Entry struct {
	Type       SlotType
	Canonical  string
	Label      string
	Synonyms   []string
	Expansions []string
	Deny       []string
	Boost      float64 // ranking boost, 1.0 when unset in the source
	Popularity float64 // global popularity in [0,1]
}

// Surface is one indexed lookup form pointing at its entry.
type Surface struct {
	Text        string
	Tokens      int
	Entry       *Entry
	FromSynonym bool // false when derived from the canonical id
}

// Suggestion is a typeahead hit for the suggest endpoint.
type Suggestion struct {
	Canonical string   `json:"canonical"`
	Label     string   `json:"label"`
	Type      SlotType `json:"type"`
	Match     string   `json:"match"`
}

// Health is the dictionary's validation state for the health probe.
type Health struct {
	Healthy   bool      `json:"healthy"`
	Entries   int       `json:"entries"`
	Surfaces  int       `json:"surfaces"`
	Tags      int       `json:"tags"`
	Errors    int       `json:"errors"`
	Warnings  int       `json:"warnings"`
	CheckedAt time.Time `json:"checked_at"`
}

// Ontology is the loaded, indexed dictionary. All fields are written by the
// loader and only read afterwards.
type Ontology struct {
	version  int
	entries  []*Entry
	byCanon  map[string]*Entry
	byType   map[SlotType][]*Entry
	aliases  map[string]Surface
	unigrams []Surface
	tags     map[string]struct{}
	maxTok   int
	report   *Report
}

// Version returns the declared dictionary version.
func (o *Ontology) Version() int { return o.version }

// Entries returns all entries in load order.
func (o *Ontology) Entries() []*Entry { return o.entries }

// Entry looks up an entry by canonical id.
func (o *Ontology) Entry(canonical string) (*Entry, bool) {
	e, ok := o.byCanon[canonical]
	return e, ok
}

// EntriesByType returns the entries of one slot type in load order.
func (o *Ontology) EntriesByType(t SlotType) []*Entry { return o.byType[t] }

// AliasMap exposes the surface index. The map is shared and must be treated
// as read-only.
func (o *Ontology) AliasMap() map[string]Surface { return o.aliases }

// LookupSurface resolves a folded surface form to its entry.
func (o *Ontology) LookupSurface(s string) (Surface, bool) {
	sf, ok := o.aliases[s]
	return sf, ok
}

// MaxSurfaceTokens is the longest indexed surface in tokens. The matcher
// never needs windows wider than this.
func (o *Ontology) MaxSurfaceTokens() int { return o.maxTok }

// UnigramSurfaces returns all single-token surfaces, for fuzzy matching.
func (o *Ontology) UnigramSurfaces() []Surface { return o.unigrams }

// HasTag reports whether tag belongs to the universe (declared tags plus
// every canonical id).
func (o *Ontology) HasTag(tag string) bool {
	_, ok := o.tags[tag]
	return ok
}

// Tags returns the sorted tag universe.
func (o *Ontology) Tags() []string {
	out := make([]string, 0, len(o.tags))
	for t := range o.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Boost returns the ranking boost for a canonical tag, 1.0 when unknown.
func (o *Ontology) Boost(tag string) float64 {
	if e, ok := o.byCanon[tag]; ok && e.Boost > 0 {
		return e.Boost
	}
	return 1.0
}

// expansionWeight dampens expansion tags relative to the canonical in
// retrieval weighting.
const expansionWeight = 0.6

// BoostMap returns the retrieval weights for a canonical tag: the tag itself
// at full boost plus each expansion dampened. Empty map for unknown tags.
func (o *Ontology) BoostMap(tag string) map[string]float64 {
	e, ok := o.byCanon[tag]
	if !ok {
		return map[string]float64{}
	}
	boost := e.Boost
	if boost <= 0 {
		boost = 1.0
	}
	m := make(map[string]float64, len(e.Expansions)+1)
	m[e.Canonical] = boost
	for _, x := range e.Expansions {
		if x == e.Canonical {
			continue
		}
		m[x] = boost * expansionWeight
	}
	return m
}

// MostPopular returns the globally most popular non-AREA entry, used by the
// co-occurrence fallback. Nil when the dictionary is empty.
func (o *Ontology) MostPopular() *Entry {
	var best *Entry
	for _, e := range o.entries {
		if e.Type == TypeArea {
			continue
		}
		if best == nil || e.Popularity > best.Popularity {
			best = e
		}
	}
	return best
}

// Suggest returns up to limit entries whose label, canonical or synonyms
// start with the folded prefix, most popular first.
func (o *Ontology) Suggest(prefix string, limit int) []Suggestion {
	prefix = strings.TrimSpace(strings.ToLower(prefix))
	if prefix == "" || limit <= 0 {
		return nil
	}

	var hits []Suggestion
	seen := make(map[string]struct{})
	for _, e := range o.entries {
		match := ""
		if strings.HasPrefix(strings.ToLower(e.Label), prefix) {
			match = e.Label
		} else if strings.HasPrefix(e.Canonical, prefix) {
			match = e.Canonical
		} else {
			for _, s := range e.Synonyms {
				if strings.HasPrefix(s, prefix) {
					match = s
					break
				}
			}
		}
		if match == "" {
			continue
		}
		if _, dup := seen[e.Canonical]; dup {
			continue
		}
		seen[e.Canonical] = struct{}{}
		hits = append(hits, Suggestion{Canonical: e.Canonical, Label: e.Label, Type: e.Type, Match: match})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		pi := o.byCanon[hits[i].Canonical].Popularity
		pj := o.byCanon[hits[j].Canonical].Popularity
		if pi != pj {
			return pi > pj
		}
		return hits[i].Canonical < hits[j].Canonical
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Health summarizes the validation report for the health manager.
func (o *Ontology) Health() Health {
	r := o.report
	return Health{
		Healthy:   len(r.Errors) == 0,
		Entries:   len(o.entries),
		Surfaces:  len(o.aliases),
		Tags:      len(o.tags),
		Errors:    len(r.Errors),
		Warnings:  len(r.Warnings),
		CheckedAt: time.Now().UTC(),
	}
}

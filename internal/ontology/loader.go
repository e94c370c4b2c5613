package ontology

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/utils"
)

// document is the YAML shape. Entries are grouped by lowercase slot type;
// tags declares the expansion-only part of the tag universe (canonical ids
// are always part of it).
type document struct {
	Version int                   `yaml:"version"`
	Tags    []string              `yaml:"tags"`
	Entries map[string][]entryDoc `yaml:"entries"`
}

type entryDoc struct {
	Canonical  string   `yaml:"canonical"`
	Label      string   `yaml:"label"`
	Synonyms   []string `yaml:"synonyms"`
	Expansions []string `yaml:"expansions"`
	Deny       []string `yaml:"deny"`
	Boost      float64  `yaml:"boost"`
	Popularity float64  `yaml:"popularity"`
}

// LoadDefault parses the embedded dictionary.
func LoadDefault() (*Ontology, error) {
	return Parse(defaultYAML)
}

// Load parses a dictionary file from disk.
func Load(path string) (*Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewValidation("ontology.Load", fmt.Sprintf("read ontology file %s", path), err)
	}
	return Parse(data)
}

// Parse builds an indexed Ontology from YAML. It fails only on malformed
// input (bad YAML, unknown slot type); semantic problems such as duplicate
// synonyms land in the validation report, so callers can inspect Health()
// and decide.
func Parse(data []byte) (*Ontology, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.NewValidation("ontology.Parse", "malformed ontology yaml", err)
	}
	for key := range doc.Entries {
		if _, ok := ParseSlotType(key); !ok {
			return nil, errs.NewValidation("ontology.Parse", fmt.Sprintf("unknown slot type %q", key), nil)
		}
	}

	o := &Ontology{
		version: doc.Version,
		byCanon: make(map[string]*Entry),
		byType:  make(map[SlotType][]*Entry),
		aliases: make(map[string]Surface),
		tags:    make(map[string]struct{}),
	}
	report := &Report{}

	// Tag universe: declared tags first, canonicals join below.
	for _, t := range doc.Tags {
		t = foldTag(t)
		if t != "" {
			o.tags[t] = struct{}{}
		}
	}

	for _, st := range slotTypeOrder {
		docs := doc.Entries[strings.ToLower(string(st))]
		for i, d := range docs {
			e := buildEntry(st, d)
			if e.Canonical == "" {
				report.addError(Issue{
					Code: errs.CodeMissingCanonical,
					Msg:  fmt.Sprintf("%s entry %d (%q) has no canonical id", st, i, d.Label),
				})
				continue
			}
			if _, dup := o.byCanon[e.Canonical]; dup {
				report.addError(Issue{
					Code:  errs.CodeDuplicateSynonyms,
					Entry: e.Canonical,
					Msg:   fmt.Sprintf("canonical %q declared more than once", e.Canonical),
				})
				continue
			}
			o.entries = append(o.entries, e)
			o.byCanon[e.Canonical] = e
			o.byType[st] = append(o.byType[st], e)
			o.tags[e.Canonical] = struct{}{}
		}
	}

	o.buildSurfaces(report)
	validateEntries(o, report)
	report.Entries = len(o.entries)
	report.Surfaces = len(o.aliases)
	report.Tags = len(o.tags)
	o.report = report
	return o, nil
}

func buildEntry(st SlotType, d entryDoc) *Entry {
	e := &Entry{
		Type:       st,
		Canonical:  foldTag(d.Canonical),
		Label:      strings.TrimSpace(d.Label),
		Boost:      d.Boost,
		Popularity: clamp01(d.Popularity),
	}
	if e.Label == "" && e.Canonical != "" {
		e.Label = strings.ReplaceAll(e.Canonical, "_", " ")
	}
	// Folding merges punctuation variants ("laid-back", "laid back"),
	// so drop the duplicates it creates.
	seen := make(map[string]struct{}, len(d.Synonyms))
	for _, s := range d.Synonyms {
		f := utils.FoldText(s)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		e.Synonyms = append(e.Synonyms, f)
	}
	for _, x := range d.Expansions {
		if f := foldTag(x); f != "" {
			e.Expansions = append(e.Expansions, f)
		}
	}
	for _, dn := range d.Deny {
		if f := utils.FoldText(dn); f != "" {
			e.Deny = append(e.Deny, f)
		}
	}
	return e
}

// buildSurfaces indexes every synonym plus the spaced canonical form.
// First mapping wins on conflict; conflicting later mappings are reported
// as DUPLICATE_SYNONYMS.
func (o *Ontology) buildSurfaces(report *Report) {
	add := func(text string, e *Entry, fromSynonym bool) {
		if prev, exists := o.aliases[text]; exists {
			if prev.Entry != e {
				report.addError(Issue{
					Code:    errs.CodeDuplicateSynonyms,
					Entry:   e.Canonical,
					Surface: text,
					Msg:     fmt.Sprintf("surface %q already resolves to %q", text, prev.Entry.Canonical),
				})
			}
			return
		}
		sf := Surface{Text: text, Tokens: len(strings.Fields(text)), Entry: e, FromSynonym: fromSynonym}
		o.aliases[text] = sf
		if sf.Tokens > o.maxTok {
			o.maxTok = sf.Tokens
		}
		if sf.Tokens == 1 {
			o.unigrams = append(o.unigrams, sf)
		}
	}

	for _, e := range o.entries {
		for _, s := range e.Synonyms {
			add(s, e, true)
		}
		if spaced := strings.ReplaceAll(e.Canonical, "_", " "); spaced != "" {
			add(spaced, e, false)
		}
	}
}

func foldTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

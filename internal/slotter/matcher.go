package slotter

import (
	"sort"
	"strings"
	"unicode/utf8"

	"venue-rails/internal/constants"
	"venue-rails/internal/ontology"
	"venue-rails/pkg/utils"
)

// candidate is a dictionary match before overlap resolution.
type candidate struct {
	surface ontology.Surface
	kind    MatchKind
	conf    float64
	start   int
	span    int
	text    string
}

// extract runs the match passes over the normalized query and reduces the
// candidates to ordered, deduplicated slots above the confidence floor.
func (s *Slotter) extract(norm string, wide bool) *Result {
	res := &Result{Query: norm, Floor: constants.ConfidenceFloorNormal}

	tokens := strings.Fields(norm)
	if len(tokens) == 0 {
		res.Reason = ReasonEmptyQuery
		res.Slots = []Slot{}
		return res
	}

	cands := s.collect(tokens, wide)
	cands = denyFilter(norm, cands)
	if s.cfg.Debug {
		res.Debug = &Debug{Tokens: tokens, Candidates: len(cands)}
	}
	kept := resolveOverlaps(cands)

	// Present intents in query order.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].start < kept[j].start })

	phraseMatched := false
	seen := make(map[string]struct{}, len(kept))
	slots := make([]Slot, 0, len(kept))
	for _, c := range kept {
		if c.span >= 2 {
			phraseMatched = true
		}
		key := string(c.surface.Entry.Type) + "|" + c.surface.Entry.Canonical
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		slots = append(slots, slotFrom(c))
	}
	if len(slots) > s.cfg.MaxSlots {
		slots = slots[:s.cfg.MaxSlots]
	}

	// Short queries without a phrase match get the forgiving floor so
	// fuzzy rescues survive; anything else must clear the normal bar.
	res.Vague = len(tokens) <= constants.VagueQueryMaxTokens && !phraseMatched
	floor := constants.ConfidenceFloorNormal
	if res.Vague {
		floor = constants.ConfidenceFloorVague
	}
	if s.cfg.MinConfidence > floor {
		floor = s.cfg.MinConfidence
	}
	res.Floor = floor

	filtered := slots[:0]
	for _, sl := range slots {
		if sl.Confidence >= floor {
			filtered = append(filtered, sl)
		}
	}
	res.Slots = filtered
	return res
}

// collect gathers all candidates from the four match passes. Overlaps are
// resolved globally afterwards, so passes never consume tokens.
func (s *Slotter) collect(tokens []string, wide bool) []candidate {
	var cands []candidate

	// Dictionary phrases (multi-token synonyms), longest window first.
	maxW := s.onto.MaxSurfaceTokens()
	if maxW > len(tokens) {
		maxW = len(tokens)
	}
	for w := maxW; w >= 2; w-- {
		for i := 0; i+w <= len(tokens); i++ {
			text := strings.Join(tokens[i:i+w], " ")
			sf, ok := s.onto.LookupSurface(text)
			if !ok || !sf.FromSynonym {
				continue
			}
			cands = append(cands, candidate{
				surface: sf,
				kind:    KindPhrase,
				conf:    constants.ConfidencePhrase,
				start:   i,
				span:    w,
				text:    text,
			})
		}
	}

	// Spaced multi-word canonicals.
	maxCanonW := 3
	if wide {
		maxCanonW = 4
	}
	if maxCanonW > len(tokens) {
		maxCanonW = len(tokens)
	}
	for w := maxCanonW; w >= 2; w-- {
		for i := 0; i+w <= len(tokens); i++ {
			text := strings.Join(tokens[i:i+w], " ")
			sf, ok := s.onto.LookupSurface(text)
			if !ok || sf.FromSynonym {
				continue
			}
			cands = append(cands, candidate{
				surface: sf,
				kind:    KindMultiword,
				conf:    constants.ConfidenceMultiword,
				start:   i,
				span:    w,
				text:    text,
			})
		}
	}

	// Single tokens, synonym or canonical alike.
	for i, tok := range tokens {
		sf, ok := s.onto.LookupSurface(tok)
		if !ok || sf.Tokens != 1 {
			continue
		}
		cands = append(cands, candidate{
			surface: sf,
			kind:    KindUnigram,
			conf:    constants.ConfidenceUnigram,
			start:   i,
			span:    1,
			text:    tok,
		})
	}

	// Edit-distance rescue for tokens that matched nothing exactly.
	if s.cfg.EnableFuzzy {
		minLen := constants.FuzzyMinTokenLen
		if wide {
			minLen--
		}
		for i, tok := range tokens {
			if utf8.RuneCountInString(tok) < minLen {
				continue
			}
			if _, exact := s.onto.LookupSurface(tok); exact {
				continue
			}
			sf, sim := s.closestUnigram(tok)
			if sf == nil || sim < s.cfg.FuzzyThreshold {
				continue
			}
			cands = append(cands, candidate{
				surface: *sf,
				kind:    KindFuzzy,
				conf:    constants.ConfidenceFuzzyBase * sim,
				start:   i,
				span:    1,
				text:    tok,
			})
		}
	}

	return cands
}

// closestUnigram returns the most similar single-token surface.
func (s *Slotter) closestUnigram(tok string) (*ontology.Surface, float64) {
	surfaces := s.onto.UnigramSurfaces()
	var best *ontology.Surface
	bestSim := 0.0
	for i := range surfaces {
		sim := utils.StringSimilarity(tok, surfaces[i].Text)
		if sim > bestSim {
			bestSim = sim
			best = &surfaces[i]
		}
	}
	return best, bestSim
}

// denyFilter drops candidates whose entry lists a denylist phrase that
// occurs anywhere in the query. Deny phrases mark confusable contexts
// ("chilli crab" is not a chill vibe), so even the matched text itself
// can disqualify a fuzzy rescue.
func denyFilter(norm string, cands []candidate) []candidate {
	out := cands[:0]
	for _, c := range cands {
		if deniedBy(norm, c) == "" {
			out = append(out, c)
		}
	}
	return out
}

func deniedBy(norm string, c candidate) string {
	for _, d := range c.surface.Entry.Deny {
		if d != "" && strings.Contains(norm, d) {
			return d
		}
	}
	return ""
}

// resolveOverlaps keeps at most one candidate per token span. Higher
// confidence wins, then the longer match, then the earlier one.
func resolveOverlaps(cands []candidate) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.conf != b.conf {
			return a.conf > b.conf
		}
		if a.span != b.span {
			return a.span > b.span
		}
		return a.start < b.start
	})

	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		clash := false
		for _, k := range kept {
			if c.start < k.start+k.span && k.start < c.start+c.span {
				clash = true
				break
			}
		}
		if !clash {
			kept = append(kept, c)
		}
	}
	return kept
}

func slotFrom(c candidate) Slot {
	e := c.surface.Entry
	return Slot{
		Type:       e.Type,
		Canonical:  e.Canonical,
		Label:      e.Label,
		Surface:    c.text,
		Confidence: c.conf,
		MatchKind:  c.kind,
		Expansions: e.Expansions,
		Boost:      e.Boost,
		Pos:        c.start,
		Span:       c.span,
	}
}

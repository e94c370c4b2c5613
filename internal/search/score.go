package search

import (
	"sort"

	"venue-rails/internal/constants"
	"venue-rails/internal/models"
	"venue-rails/internal/slotter"
)

// Weights blend the five ranking terms. All terms live in [0,1] before
// weighting.
type Weights struct {
	Lex     float64
	Geo     float64
	Vibe    float64
	Signal  float64
	Novelty float64
}

// DefaultWeights is the balanced profile.
func DefaultWeights() Weights {
	return Weights{
		Lex:     constants.WeightLexical,
		Geo:     constants.WeightGeo,
		Vibe:    constants.WeightVibe,
		Signal:  constants.WeightSignal,
		Novelty: constants.WeightNovelty,
	}
}

// VibeWeights raises the vibe term for taste-led composition.
func VibeWeights() Weights {
	w := DefaultWeights()
	w.Vibe = constants.WeightVibeBoosted
	return w
}

// SurpriseWeights raises the signal term so curation outranks relevance.
func SurpriseWeights() Weights {
	w := DefaultWeights()
	w.Signal = constants.WeightSignalBoosted
	return w
}

type scoredRow struct {
	row   *models.SearchRow
	score float64
}

// scoreRows computes the composite score for every row. The lexical term
// is the store relevance normalized against the best match in the batch;
// a nil slot (free-text search) zeroes the vibe term.
func scoreRows(rows []models.SearchRow, slot *slotter.Slot, vibeVector map[string]float64, w Weights) []scoredRow {
	maxRel := 0.0
	for i := range rows {
		if rows[i].Relevance > maxRel {
			maxRel = rows[i].Relevance
		}
	}

	var slotTags map[string]struct{}
	if slot != nil {
		slotTags = tagSet(slot.Canonical, slot.Expansions)
	}

	out := make([]scoredRow, 0, len(rows))
	for i := range rows {
		r := &rows[i]

		lex := 0.0
		if maxRel > 0 {
			lex = r.Relevance / maxRel
		}
		vibe := 0.0
		if len(slotTags) > 0 {
			vibe = jaccard(r.Tags, slotTags)
		}
		if len(vibeVector) > 0 {
			vibe = clamp01(vibe + affinity(r.Tags, vibeVector))
		}

		score := w.Lex*lex +
			w.Geo*geoScore(r.DistanceM) +
			w.Vibe*vibe +
			w.Signal*signalBoost(r.Signals) +
			w.Novelty*r.Signals.Novelty()
		out = append(out, scoredRow{row: r, score: score})
	}
	return out
}

const scoreEps = 1e-9

// rankCandidates orders by score, then rating, then price level when the
// slot implies premium, then id for stability.
func rankCandidates(cands []scoredRow, premium bool) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if d := a.score - b.score; d > scoreEps || d < -scoreEps {
			return a.score > b.score
		}
		if ra, rb := ratingOf(a.row), ratingOf(b.row); ra != rb {
			return ra > rb
		}
		if premium {
			if pa, pb := priceOf(a.row), priceOf(b.row); pa != pb {
				return pa > pb
			}
		}
		return a.row.VenueID < b.row.VenueID
	})
}

// geoScore decays with distance: 1 at the caller's feet, 0.5 at τ.
func geoScore(distanceM *float64) float64 {
	if distanceM == nil {
		return 0
	}
	return 1 / (1 + *distanceM/constants.GeoTauMeters)
}

func signalBoost(s models.Signals) float64 {
	b := constants.BoostQualityScale * s.QualityScore
	if s.HQExperience {
		b += constants.BoostHQExperience
	}
	if s.EditorPick {
		b += constants.BoostEditorPick
	}
	return b
}

// jaccard measures tag-set overlap. Venue tags are deduplicated first so
// repeated tags cannot inflate the intersection.
func jaccard(tags []string, set map[string]struct{}) float64 {
	if len(tags) == 0 || len(set) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(tags))
	inter := 0
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			inter++
		}
	}
	union := len(seen) + len(set) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// affinity sums the session's weight for each venue tag. The vector is
// L1-normalized, so the sum stays in [0,1] for disjoint tags; clamp
// guards the pathological case anyway.
func affinity(tags []string, vector map[string]float64) float64 {
	var sum float64
	for _, t := range tags {
		sum += vector[t]
	}
	return clamp01(sum)
}

// badgesFor derives the explanation badges shown on a card.
func badgesFor(r *models.SearchRow) []string {
	var b []string
	if r.Signals.HQExperience {
		b = append(b, "hq")
	}
	if r.Signals.EditorPick {
		b = append(b, "editor")
	}
	if r.Signals.LocalGem {
		b = append(b, "local gem")
	}
	if r.Signals.Extraordinary {
		b = append(b, "one of a kind")
	}
	if r.DistanceM != nil && *r.DistanceM <= constants.NearYouMaxMeters {
		b = append(b, "near you")
	}
	return b
}

var premiumTags = map[string]struct{}{
	"luxury":      {},
	"upscale":     {},
	"fine_dining": {},
}

// impliesPremium reports whether price level should break ties upward.
func impliesPremium(slot slotter.Slot) bool {
	if _, ok := premiumTags[slot.Canonical]; ok {
		return true
	}
	for _, x := range slot.Expansions {
		if _, ok := premiumTags[x]; ok {
			return true
		}
	}
	return false
}

func tagSet(canonical string, expansions []string) map[string]struct{} {
	set := make(map[string]struct{}, len(expansions)+1)
	if canonical != "" {
		set[canonical] = struct{}{}
	}
	for _, x := range expansions {
		if x != "" {
			set[x] = struct{}{}
		}
	}
	return set
}

func ratingOf(r *models.SearchRow) float64 {
	if r.Rating == nil {
		return 0
	}
	return *r.Rating
}

func priceOf(r *models.SearchRow) int {
	if r.PriceLevel == nil {
		return 0
	}
	return *r.PriceLevel
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

package rails

import (
	"math"
	"sort"

	"venue-rails/internal/constants"
	"venue-rails/internal/models"
)

// Similarity proxy weights: sharing a category matters more than sharing
// tags, and both stay cheap to compute per pair.
const (
	simCategoryWeight = 0.6
	simTagWeight      = 0.4
)

// dedupe keeps each venue in exactly one rail: the one where it scored
// highest, earlier rails winning ties.
func dedupe(rails []Rail) {
	owner := make(map[int64]int)
	best := make(map[int64]float64)
	for i := range rails {
		for _, it := range rails[i].Items {
			if _, seen := owner[it.ID]; !seen || it.Score > best[it.ID] {
				owner[it.ID] = i
				best[it.ID] = it.Score
			}
		}
	}
	for i := range rails {
		kept := rails[i].Items[:0]
		for _, it := range rails[i].Items {
			if owner[it.ID] == i {
				kept = append(kept, it)
			}
		}
		rails[i].Items = kept
	}
}

// diversify selects up to limit cards greedily, penalizing each candidate by
// its closest similarity to what is already picked. The selection is then
// ordered by composite score so rails read best-first. forceSignal seeds the
// pick with the highest-scoring extraordinary or hq venue when one exists.
func diversify(items []models.PlaceCard, limit int, forceSignal bool) []models.PlaceCard {
	if limit <= 0 || len(items) == 0 {
		return []models.PlaceCard{}
	}

	pool := make([]models.PlaceCard, len(items))
	copy(pool, items)
	picked := make([]models.PlaceCard, 0, limit)

	if forceSignal {
		// items arrive score-descending, so the first hit is the best one
		for i := range pool {
			if pool[i].Signals.Extraordinary || pool[i].Signals.HQExperience {
				picked = append(picked, pool[i])
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
	}

	for len(picked) < limit && len(pool) > 0 {
		bestIdx, bestVal := 0, math.Inf(-1)
		for i := range pool {
			val := pool[i].Score - constants.MMRLambda*maxSimilarity(&pool[i], picked)
			if val > bestVal {
				bestIdx, bestVal = i, val
			}
		}
		picked = append(picked, pool[bestIdx])
		pool = append(pool[:bestIdx], pool[bestIdx+1:]...)
	}

	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].Score != picked[j].Score {
			return picked[i].Score > picked[j].Score
		}
		return picked[i].ID < picked[j].ID
	})
	return picked
}

func maxSimilarity(c *models.PlaceCard, picked []models.PlaceCard) float64 {
	top := 0.0
	for i := range picked {
		if s := similarity(c, &picked[i]); s > top {
			top = s
		}
	}
	return top
}

// similarity is the category + tag-signature proxy used for diversification.
func similarity(a, b *models.PlaceCard) float64 {
	s := 0.0
	if a.Category != "" && a.Category == b.Category {
		s += simCategoryWeight
	}
	s += simTagWeight * tagJaccard(a.Tags, b.Tags)
	return s
}

func tagJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		if t != "" {
			seen[t] = true
		}
	}
	other := make(map[string]bool, len(b))
	for _, t := range b {
		if t != "" {
			other[t] = true
		}
	}
	inter := 0
	for t := range other {
		if seen[t] {
			inter++
		}
	}
	union := len(seen) + len(other) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

package signals

import (
	"fmt"
	"strings"

	"venue-rails/internal/models"
	"venue-rails/pkg/utils"
)

// Derived is the unified result of editorial signal evaluation.
// QualityScore is 0.0-1.0 and feeds the ranking signal_boost term.
// Reason gives a concise human-friendly explanation for logs/debug.
type Derived struct {
	Signals models.Signals
	Reason  string
}

// Config allows tuning the calculator without code changes.
// Trigger phrases are matched against folded name+summary+description+tags.
type Config struct {
	HQTriggers    []string
	GemTriggers   []string
	DateTriggers  []string
	ExtraTriggers []string

	WeightSummary float64
	WeightTags    float64
	WeightPhotos  float64
	WeightCoords  float64
}

// DefaultConfig returns trigger sets tuned for the reference city corpus.
func DefaultConfig() Config {
	return Config{
		HQTriggers: []string{
			"michelin", "omakase", "chef's table", "chefs table", "tasting menu",
			"fine dining", "degustation", "sommelier",
		},
		GemTriggers: []string{
			"hidden gem", "hole in the wall", "locals only", "family run",
			"tucked away", "no sign",
		},
		DateTriggers: []string{
			"romantic", "candlelit", "date night", "intimate", "sunset view",
			"rooftop",
		},
		ExtraTriggers: []string{
			"one of a kind", "unique experience", "immersive", "secret bar",
			"speakeasy", "supper club",
		},
		WeightSummary: 0.4,
		WeightTags:    0.25,
		WeightPhotos:  0.2,
		WeightCoords:  0.15,
	}
}

// Calculator derives editorial signals consistently across agents.
type Calculator struct {
	cfg Config
}

// NewCalculator folds every trigger phrase so matching stays aligned
// with the folded corpus ("chef's table" and "chefs table" both hit).
func NewCalculator(cfg Config) *Calculator {
	cfg.HQTriggers = foldPhrases(cfg.HQTriggers)
	cfg.GemTriggers = foldPhrases(cfg.GemTriggers)
	cfg.DateTriggers = foldPhrases(cfg.DateTriggers)
	cfg.ExtraTriggers = foldPhrases(cfg.ExtraTriggers)
	return &Calculator{cfg: cfg}
}

func NewDefault() *Calculator { return NewCalculator(DefaultConfig()) }

func foldPhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if f := utils.FoldText(p); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Derive evaluates a record's text and quality grades into signals.
// Booleans already set on the record stay set: trigger detection only
// ever adds, so upstream editorial curation is never undone.
func (c *Calculator) Derive(v *models.Venue) Derived {
	out := v.Signals

	text := c.foldCorpus(v)

	var hits []string
	if !out.HQExperience && c.anyTrigger(text, c.cfg.HQTriggers) {
		out.HQExperience = true
		hits = append(hits, "hq")
	}
	if !out.LocalGem && c.anyTrigger(text, c.cfg.GemTriggers) {
		out.LocalGem = true
		hits = append(hits, "gem")
	}
	if !out.Dateworthy && c.anyTrigger(text, c.cfg.DateTriggers) {
		out.Dateworthy = true
		hits = append(hits, "date")
	}
	if !out.Extraordinary && c.anyTrigger(text, c.cfg.ExtraTriggers) {
		out.Extraordinary = true
		hits = append(hits, "extraordinary")
	}

	out.QualityScore = c.qualityScore(v.Quality)

	return Derived{
		Signals: out,
		Reason:  c.buildReason(hits, out.QualityScore),
	}
}

// qualityScore folds the editor's per-field grades into one [0,1] number.
func (c *Calculator) qualityScore(q models.QualityFlags) float64 {
	score := c.cfg.WeightSummary*gradeValue(q.Summary) +
		c.cfg.WeightTags*gradeValue(q.Tags) +
		c.cfg.WeightPhotos*gradeValue(q.Photos) +
		c.cfg.WeightCoords*gradeValue(q.Coords)
	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}

func gradeValue(f models.QualityFlag) float64 {
	switch f {
	case models.FlagExcellent, models.FlagRich, models.FlagPresent:
		return 1.0
	case models.FlagGood, models.FlagOK:
		return 0.7
	case models.FlagWeak, models.FlagSparse:
		return 0.3
	default: // missing, unknown
		return 0.0
	}
}

func (c *Calculator) foldCorpus(v *models.Venue) string {
	parts := []string{v.Raw.Name, v.Clean.Summary, v.Raw.Description,
		models.TagsCSV(v.Clean.Tags)}
	return utils.FoldText(strings.Join(parts, " "))
}

func (c *Calculator) anyTrigger(text string, triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func (c *Calculator) buildReason(hits []string, quality float64) string {
	if len(hits) == 0 {
		return fmt.Sprintf("no triggers, quality=%.2f", quality)
	}
	return fmt.Sprintf("triggers: %s, quality=%.2f", strings.Join(hits, ", "), quality)
}

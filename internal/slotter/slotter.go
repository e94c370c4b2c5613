// Package slotter turns free-text queries into typed intent slots by
// matching them against the ontology dictionary. Matching is longest-first
// with per-kind confidence, followed by deny filtering, overlap resolution
// and a dynamic confidence floor. Queries that yield nothing fall back to
// editorial or popularity strategies so the caller always has something to
// retrieve with.
package slotter

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	"venue-rails/internal/constants"
	"venue-rails/internal/ontology"
	"venue-rails/pkg/config"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
	"venue-rails/pkg/utils"
)

// MatchKind records how a slot was found, in descending order of trust.
type MatchKind string

const (
	KindPhrase    MatchKind = "phrase"    // multi-token synonym from the dictionary
	KindMultiword MatchKind = "multiword" // spaced multi-token canonical
	KindUnigram   MatchKind = "unigram"   // single-token surface
	KindFuzzy     MatchKind = "fuzzy"     // edit-distance rescue
	KindFallback  MatchKind = "fallback"  // synthetic slot, no query evidence
)

// Fallback strategy names. StrategyEditorial doubles as the canonical of
// the synthetic slot it emits; the search layer treats that canonical as
// "browse editorial picks" rather than a dictionary tag.
const (
	StrategyEditorial    = "signals:editorial"
	StrategyCoOccurrence = "co-occurrence"
)

// Parse failure reasons surfaced when no slots could be built.
const (
	ReasonEmptyQuery = "empty_query"
	ReasonNoIntents  = "no_intents"
)

// Slot is one extracted intent: a canonical dictionary tag plus the query
// evidence that produced it.
type Slot struct {
	Type       ontology.SlotType `json:"type"`
	Canonical  string            `json:"canonical"`
	Label      string            `json:"label"`
	Surface    string            `json:"surface,omitempty"`
	Confidence float64           `json:"confidence"`
	MatchKind  MatchKind         `json:"match_kind"`
	Expansions []string          `json:"expansions,omitempty"`
	Boost      float64           `json:"boost,omitempty"`

	// Token window in the normalized query. Internal to overlap handling.
	Pos  int `json:"-"`
	Span int `json:"-"`
}

// Result is a full parse outcome. Reason is set when Slots came from a
// fallback strategy or when nothing at all could be extracted.
type Result struct {
	Query        string  `json:"query"`
	Slots        []Slot  `json:"slots"`
	FallbackUsed bool    `json:"fallback_used"`
	Reason       string  `json:"reason,omitempty"`
	Vague        bool    `json:"vague"`
	Floor        float64 `json:"floor"`
	Debug        *Debug  `json:"debug,omitempty"`

	CacheHit bool `json:"-"`
}

// Debug carries extraction internals when the debug flag is on.
type Debug struct {
	Tokens     []string `json:"tokens"`
	Wide       bool     `json:"wide"`
	Candidates int      `json:"candidates"`
}

func (r *Result) clone() *Result {
	out := *r
	out.Slots = make([]Slot, len(r.Slots))
	copy(out.Slots, r.Slots)
	return &out
}

// Request is a single parse call. Area and coordinates only shape the
// cache identity; extraction itself is text-only.
type Request struct {
	Query string
	Area  string
	Lat   *float64
	Lng   *float64
}

// Config controls matching width, floors and caching. Zero values fall
// back to package defaults; pass a negative CacheTTL or CacheSize to run
// without a cache.
type Config struct {
	MaxSlots       int
	MinConfidence  float64
	EnableFuzzy    bool
	FuzzyThreshold float64

	Wide    bool
	Shadow  bool
	ABTest  bool
	ABRatio float64
	Debug   bool

	DisableFallback bool
	FallbackOrder   []string

	CacheTTL  time.Duration
	CacheSize int
}

func DefaultConfig() Config {
	return Config{
		MaxSlots:       constants.MaxSlotsDefault,
		EnableFuzzy:    true,
		FuzzyThreshold: constants.FuzzySimilarityThreshold,
		FallbackOrder:  []string{StrategyEditorial, StrategyCoOccurrence},
		CacheTTL:       constants.ParseCacheTTLDefault,
		CacheSize:      constants.ParseCacheMaxEntries,
	}
}

// ConfigFromFlags projects a hot-reloadable flag snapshot onto a slotter
// configuration. The config watcher calls this on every reload and swaps
// the result in via WithConfig.
func ConfigFromFlags(f config.Flags) Config {
	cfg := DefaultConfig()
	cfg.Wide = f.Wide
	cfg.Shadow = f.Shadow
	cfg.ABTest = f.ABTest
	cfg.ABRatio = f.ABRatio
	cfg.Debug = f.Debug
	if f.MaxSlots > 0 {
		cfg.MaxSlots = f.MaxSlots
	}
	if f.MinConfidence > 0 {
		cfg.MinConfidence = f.MinConfidence
	}
	if f.CacheTTL > 0 {
		cfg.CacheTTL = f.CacheTTL
	}
	return cfg
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxSlots <= 0 {
		cfg.MaxSlots = def.MaxSlots
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = def.FuzzyThreshold
	}
	if len(cfg.FallbackOrder) == 0 {
		cfg.FallbackOrder = def.FallbackOrder
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = def.CacheSize
	}
	return cfg
}

// Slotter is safe for concurrent use; the dictionary is immutable and the
// cache locks internally.
type Slotter struct {
	onto  *ontology.Ontology
	cfg   Config
	cache *parseCache
	log   *logging.ComponentLogger
}

func New(onto *ontology.Ontology, cfg Config, log *logging.Logger) *Slotter {
	cfg = normalizeConfig(cfg)
	return &Slotter{
		onto:  onto,
		cfg:   cfg,
		cache: newParseCache(cfg.CacheSize, cfg.CacheTTL),
		log:   log.WithComponent("slotter"),
	}
}

// WithConfig returns a slotter with a new flag snapshot that shares the
// dictionary, cache and logger of the receiver. Swapping the returned
// pointer atomically gives readers a consistent view across one request;
// parses cached under the previous snapshot serve until they expire.
func (s *Slotter) WithConfig(cfg Config) *Slotter {
	return &Slotter{
		onto:  s.onto,
		cfg:   normalizeConfig(cfg),
		cache: s.cache,
		log:   s.log,
	}
}

// Parse extracts intent slots from the request query. Results are cached
// by (normalized query, area, rounded coordinates); cached hits are
// returned as copies so callers may mutate them freely.
func (s *Slotter) Parse(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	norm := utils.FoldText(req.Query)
	key := fingerprint(norm, req.Area, req.Lat, req.Lng)

	if s.cache != nil {
		if hit, ok := s.cache.Get(key); ok {
			metrics.CacheEvents.WithLabelValues("parse", "hit").Inc()
			metrics.ParseRequests.WithLabelValues("hit", boolLabel(hit.FallbackUsed)).Inc()
			out := hit.clone()
			out.CacheHit = true
			return out, nil
		}
		metrics.CacheEvents.WithLabelValues("parse", "miss").Inc()
	}

	wide := s.cfg.Wide
	if !wide && s.cfg.ABTest {
		wide = abPicksWide(norm, s.cfg.ABRatio)
	}

	res := s.extract(norm, wide)

	if s.cfg.Shadow && !wide {
		s.logShadowDiff(res, s.extract(norm, true))
	}

	if len(res.Slots) == 0 && res.Reason == "" {
		if s.cfg.DisableFallback {
			res.Reason = ReasonNoIntents
		} else {
			s.applyFallback(res)
		}
	}

	if res.Debug != nil {
		res.Debug.Wide = wide
	}

	metrics.ParseRequests.WithLabelValues("miss", boolLabel(res.FallbackUsed)).Inc()
	metrics.ParseSlots.Observe(float64(len(res.Slots)))

	if s.cache != nil {
		s.cache.Add(key, res)
	}
	return res.clone(), nil
}

// CacheLen reports the number of live parse cache entries.
func (s *Slotter) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// applyFallback tries the configured strategies in order and installs the
// first slot one of them yields.
func (s *Slotter) applyFallback(res *Result) {
	for _, strat := range s.cfg.FallbackOrder {
		var slot *Slot
		switch strat {
		case StrategyEditorial:
			slot = &Slot{
				Type:       ontology.TypeVibe,
				Canonical:  StrategyEditorial,
				Label:      "Editor's picks",
				Confidence: constants.ConfidenceFuzzyBase,
				MatchKind:  KindFallback,
			}
		case StrategyCoOccurrence:
			if e := s.onto.MostPopular(); e != nil {
				slot = &Slot{
					Type:       e.Type,
					Canonical:  e.Canonical,
					Label:      e.Label,
					Confidence: constants.ConfidenceFuzzyBase,
					MatchKind:  KindFallback,
					Expansions: e.Expansions,
					Boost:      e.Boost,
				}
			}
		default:
			s.log.Warn("unknown fallback strategy", logging.String("strategy", strat))
		}
		if slot != nil {
			res.Slots = []Slot{*slot}
			res.FallbackUsed = true
			res.Reason = strat
			return
		}
	}
	res.Reason = ReasonNoIntents
}

func (s *Slotter) logShadowDiff(narrow, wide *Result) {
	n, w := slotKey(narrow.Slots), slotKey(wide.Slots)
	if n == w {
		return
	}
	s.log.Info("wide parse diverged in shadow",
		logging.String("query", narrow.Query),
		logging.String("narrow", n),
		logging.String("wide", w))
}

func slotKey(slots []Slot) string {
	parts := make([]string, 0, len(slots))
	for _, sl := range slots {
		parts = append(parts, string(sl.Type)+":"+sl.Canonical)
	}
	return strings.Join(parts, ",")
}

// abPicksWide assigns a query to the wide arm deterministically so the
// same text always lands in the same cohort.
func abPicksWide(norm string, ratio float64) bool {
	if ratio <= 0 {
		return false
	}
	if ratio >= 1 {
		return true
	}
	h := fnv.New32a()
	h.Write([]byte(norm))
	return float64(h.Sum32()%1000) < ratio*1000
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

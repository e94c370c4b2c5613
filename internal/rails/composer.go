// Package rails turns a parsed query into the final response: one rail per
// intent slot, populated concurrently, deduplicated across rails, and
// diversified within each rail.
package rails

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"venue-rails/internal/constants"
	"venue-rails/internal/models"
	"venue-rails/internal/ontology"
	"venue-rails/internal/search"
	"venue-rails/internal/slotter"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
	"venue-rails/pkg/utils"
)

// Mode selects the composition policy.
type Mode string

const (
	ModeLight    Mode = "light"
	ModeVibe     Mode = "vibe"
	ModeSurprise Mode = "surprise"
)

// ParseMode maps the query parameter onto a Mode. Empty means light.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLight:
		return ModeLight, nil
	case ModeVibe:
		return ModeVibe, nil
	case ModeSurprise:
		return ModeSurprise, nil
	}
	return "", errs.NewValidation("rails.ParseMode", fmt.Sprintf("unknown mode %q", s), nil)
}

// Diagnostics recorded on rails that could not be populated.
const (
	DiagTimeout         = "timeout"
	DiagRetrievalFailed = "retrieval_failed"
)

// qualityHighMin is the quality_score floor applied when the caller asks
// for quality=high.
const qualityHighMin = 0.6

// Parser produces intent slots from a raw query.
type Parser interface {
	Parse(ctx context.Context, req slotter.Request) (*slotter.Result, error)
}

// Retriever runs one retrieval call per slot.
type Retriever interface {
	SearchBySlot(ctx context.Context, slot slotter.Slot, opts search.Options) (*search.Result, error)
}

// VibeSource supplies a session's taste vector. May be absent.
type VibeSource interface {
	VibeVector(sessionID string) map[string]float64
}

// Request is one composition request.
type Request struct {
	Query  string
	Parsed *slotter.Result // pre-parsed input from POST /api/compose

	SessionID string
	Lat, Lng  *float64
	RadiusM   float64
	Area      string

	Mode    Mode
	Limit   int    // per-rail target length
	Quality string // "" or "high"
}

// Rail is one populated intent lane.
type Rail struct {
	Step       int                `json:"step"`
	Label      string             `json:"label"`
	Origin     string             `json:"origin"`
	Reason     string             `json:"reason"`
	Items      []models.PlaceCard `json:"items"`
	Diagnostic string             `json:"diagnostic,omitempty"`

	Candidates int    `json:"-"` // matching rows before dedup/diversify
	Expr       string `json:"-"` // boolean view query, debug headers only
}

// Response is the rails payload.
type Response struct {
	Rails        []Rail `json:"rails"`
	Query        string `json:"query"`
	Mode         Mode   `json:"mode"`
	FallbackUsed bool   `json:"fallback_used"`
	Vague        bool   `json:"vague,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ProcessingMS int64  `json:"processing_time_ms"`
	CacheHit     bool   `json:"cache_hit"`
}

// RailCounts renders the X-Rails header value: origin=count per rail.
func (r *Response) RailCounts() string {
	parts := make([]string, 0, len(r.Rails))
	for i := range r.Rails {
		parts = append(parts, fmt.Sprintf("%s=%d", r.Rails[i].Origin, len(r.Rails[i].Items)))
	}
	return strings.Join(parts, ",")
}

// RouteDebug renders the X-Route-Debug header value.
func (r *Response) RouteDebug() string {
	return fmt.Sprintf("mode=%s slots=%d fallback=%t vague=%t",
		r.Mode, len(r.Rails), r.FallbackUsed, r.Vague)
}

// SearchDebug renders the X-Search-Debug header value: the boolean view
// query issued for each rail.
func (r *Response) SearchDebug() string {
	parts := make([]string, 0, len(r.Rails))
	for i := range r.Rails {
		if r.Rails[i].Expr == "" {
			continue
		}
		parts = append(parts, r.Rails[i].Origin+"="+r.Rails[i].Expr)
	}
	return strings.Join(parts, "; ")
}

// Config bounds the fan-out and the response cache.
type Config struct {
	Concurrency  int
	StepTimeout  time.Duration // per retrieval call; zero disables the extra bound
	PerRailLimit int
	CacheTTL     time.Duration // negative disables the response cache
	CacheSize    int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:  constants.RailConcurrencyDefault,
		StepTimeout:  constants.RailStepTimeoutDefault,
		PerRailLimit: constants.RailLengthDefault,
		CacheTTL:     constants.RailsCacheTTLDefault,
		CacheSize:    constants.RailsCacheMaxEntries,
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = constants.RailConcurrencyDefault
	}
	if cfg.PerRailLimit <= 0 {
		cfg.PerRailLimit = constants.RailLengthDefault
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = constants.RailsCacheTTLDefault
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = constants.RailsCacheMaxEntries
	}
	return cfg
}

// Composer owns the parse → fan-out → dedup → diversify flow.
type Composer struct {
	parser    Parser
	retriever Retriever
	sessions  VibeSource
	cfg       Config
	cache     *railsCache
	log       *logging.ComponentLogger
}

// New creates a composer. sessions may be nil when no profile store is
// wired; vibe mode then runs on weights alone.
func New(parser Parser, retriever Retriever, sessions VibeSource, cfg Config, log *logging.Logger) *Composer {
	cfg = normalizeConfig(cfg)
	return &Composer{
		parser:    parser,
		retriever: retriever,
		sessions:  sessions,
		cfg:       cfg,
		cache:     newRailsCache(cfg.CacheSize, cfg.CacheTTL),
		log:       log.WithComponent("rails"),
	}
}

// Compose builds the rails response. A rail that cannot be populated is
// rendered empty with a diagnostic; Compose fails only on invalid input or
// when parsing itself is cut off.
func (c *Composer) Compose(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = c.cfg.PerRailLimit
	}

	// Vibe mode with a session is personal; serving it from the shared
	// cache would leak one user's taste into another's rails.
	cacheable := c.cache != nil && !(mode == ModeVibe && req.SessionID != "")
	key := cacheKey(req, mode, limit)
	if cacheable {
		if hit, ok := c.cache.Get(key); ok {
			out := *hit
			out.CacheHit = true
			out.ProcessingMS = time.Since(start).Milliseconds()
			return &out, nil
		}
	}

	parsed := req.Parsed
	if parsed == nil {
		parsed, err = c.parser.Parse(ctx, slotter.Request{
			Query: req.Query,
			Area:  req.Area,
			Lat:   req.Lat,
			Lng:   req.Lng,
		})
		if err != nil {
			return nil, err
		}
	}

	resp := &Response{
		Rails:        []Rail{},
		Query:        parsed.Query,
		Mode:         mode,
		FallbackUsed: parsed.FallbackUsed,
		Vague:        parsed.Vague,
		Reason:       parsed.Reason,
	}

	if len(parsed.Slots) > 0 {
		resp.Rails = c.populate(ctx, parsed.Slots, req, mode, limit)
	}

	metrics.RailsComposed.WithLabelValues(string(mode)).Inc()
	resp.ProcessingMS = time.Since(start).Milliseconds()
	if cacheable {
		c.cache.Add(key, resp)
	}
	return resp, nil
}

// populate fans out one retrieval call per slot, then dedups across rails
// and diversifies within each.
func (c *Composer) populate(ctx context.Context, slots []slotter.Slot, req Request, mode Mode, limit int) []Rail {
	weights, vibeVec := c.modeSetup(mode, req.SessionID)
	hasGeo := req.Lat != nil && req.Lng != nil

	// Fetch double the rail length so dedup and diversification have
	// something to choose from.
	fetch := limit * 2

	rails := make([]Rail, len(slots))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i := range slots {
		i := i
		slot := slots[i]
		g.Go(func() error {
			rail := Rail{
				Step:   i,
				Label:  slot.Label,
				Origin: railOrigin(slot),
				Reason: railReason(slot, hasGeo),
				Items:  []models.PlaceCard{},
			}

			stepCtx := ctx
			if c.cfg.StepTimeout > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, c.cfg.StepTimeout)
				defer cancel()
			}
			res, err := c.retriever.SearchBySlot(stepCtx, slot, search.Options{
				Limit:      fetch,
				Lat:        req.Lat,
				Lng:        req.Lng,
				RadiusM:    req.RadiusM,
				Area:       req.Area,
				Weights:    &weights,
				VibeVector: vibeVec,
			})
			switch {
			case err == nil:
				rail.Items = res.Cards
				rail.Candidates = res.Total
				rail.Expr = res.Expr
			case isTimeout(err):
				metrics.RailTimeouts.Inc()
				rail.Diagnostic = DiagTimeout
				c.log.Warn("rail retrieval timed out",
					logging.String("origin", rail.Origin))
			default:
				rail.Diagnostic = DiagRetrievalFailed
				c.log.Warn("rail retrieval failed",
					logging.String("origin", rail.Origin),
					logging.String("error", err.Error()))
			}
			rails[i] = rail
			return nil
		})
	}
	_ = g.Wait() // failures land in rail diagnostics, never here

	dedupe(rails)
	for i := range rails {
		items := rails[i].Items
		if req.Quality == "high" {
			items = filterQuality(items, qualityHighMin)
		}
		rails[i].Items = diversify(items, limit, mode == ModeSurprise)
	}
	return rails
}

func (c *Composer) modeSetup(mode Mode, sessionID string) (search.Weights, map[string]float64) {
	switch mode {
	case ModeVibe:
		var vec map[string]float64
		if c.sessions != nil && sessionID != "" {
			vec = c.sessions.VibeVector(sessionID)
		}
		return search.VibeWeights(), vec
	case ModeSurprise:
		return search.SurpriseWeights(), nil
	default:
		return search.DefaultWeights(), nil
	}
}

func isTimeout(err error) bool {
	return errs.HasCode(err, errs.CodeTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// railOrigin names the rail after its slot, e.g. "vibe:chill".
func railOrigin(slot slotter.Slot) string {
	if slot.Canonical == slotter.StrategyEditorial {
		return slotter.StrategyEditorial
	}
	return strings.ToLower(string(slot.Type)) + ":" + slot.Canonical
}

// railReason writes the human line shown above a rail.
func railReason(slot slotter.Slot, hasGeo bool) string {
	if slot.Canonical == slotter.StrategyEditorial {
		return "Editor's picks to get you started"
	}
	label := slot.Label
	switch slot.Type {
	case ontology.TypeArea:
		return "Around " + label
	case ontology.TypeVibe:
		if hasGeo {
			return label + " spots close to you"
		}
		return label + " spots around town"
	case ontology.TypeDish, ontology.TypeCuisine:
		if hasGeo {
			return label + " near you"
		}
		return "The best " + strings.ToLower(label) + " in town"
	case ontology.TypeExperience:
		if hasGeo {
			return label + " near you"
		}
		return label + " worth the trip"
	}
	return label
}

// filterQuality keeps cards at or above the quality floor.
func filterQuality(items []models.PlaceCard, min float64) []models.PlaceCard {
	kept := items[:0]
	for _, it := range items {
		if it.Signals.QualityScore >= min {
			kept = append(kept, it)
		}
	}
	return kept
}

// cacheKey folds everything that changes the response into one string.
func cacheKey(req Request, mode Mode, limit int) string {
	q := req.Query
	if q == "" && req.Parsed != nil {
		q = req.Parsed.Query
	}

	var b strings.Builder
	b.WriteString(utils.FoldText(q))
	fmt.Fprintf(&b, "|%s|%d|%s|%s", mode, limit, req.Quality, utils.FoldText(req.Area))
	if req.Lat != nil && req.Lng != nil {
		fmt.Fprintf(&b, "|%.4f,%.4f", *req.Lat, *req.Lng)
	}
	if req.RadiusM > 0 {
		fmt.Fprintf(&b, "|r%.0f", req.RadiusM)
	}
	return b.String()
}

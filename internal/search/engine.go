// Package search ranks venues from the derived search view. One call
// serves one intent slot (or raw text) and returns scored place cards;
// the store does the lexical and geo narrowing, the engine does the
// composite scoring, tie-breaking and badges.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"venue-rails/internal/constants"
	"venue-rails/internal/domain"
	"venue-rails/internal/models"
	"venue-rails/internal/ontology"
	"venue-rails/internal/slotter"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/geo"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
	"venue-rails/pkg/utils"
)

// candidateCap bounds the over-fetch used for in-process rescoring.
const candidateCap = 60

// Config tunes one engine instance.
type Config struct {
	// Timeout bounds each view query. Zero relies on the caller's
	// deadline alone.
	Timeout time.Duration
	// DefaultLimit applies when a caller passes no limit.
	DefaultLimit int
}

func DefaultConfig() Config {
	return Config{DefaultLimit: constants.RailLengthDefault}
}

// Options shape one retrieval call.
type Options struct {
	Limit   int
	Offset  int // editorial browsing only; slot retrieval always rescores page one
	Lat     *float64
	Lng     *float64
	RadiusM float64
	Area    string

	// Weights override the balanced profile (rails modes).
	Weights *Weights
	// VibeVector is the session's normalized tag affinity; it raises the
	// vibe term for venues matching the session's taste.
	VibeVector map[string]float64
}

// Result is one ranked retrieval.
type Result struct {
	Cards []models.PlaceCard `json:"cards"`
	Total int                `json:"total"`
	Kind  string             `json:"kind"`           // slot, text, editorial
	Expr  string             `json:"expr,omitempty"` // boolean query sent to the view
}

// TextQuery is a free-text search request from the HTTP surface.
type TextQuery struct {
	Query   string
	Limit   int
	Offset  int
	Lat     *float64
	Lng     *float64
	RadiusM float64
	Sort    domain.Sort
	Area    string
}

// Engine executes retrievals against the view repository.
type Engine struct {
	repo domain.SearchRepository
	cfg  Config
	log  *logging.ComponentLogger
}

func New(repo domain.SearchRepository, cfg Config, log *logging.Logger) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = constants.RailLengthDefault
	}
	return &Engine{repo: repo, cfg: cfg, log: log.WithComponent("search")}
}

// SearchBySlot retrieves and ranks venues for one intent slot. The view
// narrows by the slot's tag expansion; scoring blends lexical rank, geo
// proximity, vibe overlap, curation signals and novelty.
func (e *Engine) SearchBySlot(ctx context.Context, slot slotter.Slot, opts Options) (*Result, error) {
	const op = "search.SearchBySlot"

	// The synthetic fallback slot means "browse the curation surface".
	if slot.Canonical == slotter.StrategyEditorial {
		return e.BrowseEditorial(ctx, opts)
	}
	metrics.SearchQueries.WithLabelValues("slot").Inc()

	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	p := domain.SearchParams{
		Query:   booleanQuery(slot),
		Sort:    domain.SortRelevance,
		Limit:   fetchLimit(limit),
		Lat:     opts.Lat,
		Lng:     opts.Lng,
		RadiusM: opts.RadiusM,
	}
	if requiresTag(slot) {
		p.Tags = []string{slot.Canonical}
	}
	if slot.Type == ontology.TypeArea {
		// A known area bounds by geography; the lexical query would only
		// guess at address spellings.
		if vp := areaViewport(slot.Canonical); vp != nil {
			p.Viewport = vp
			p.Query = ""
		}
	} else if vp := areaViewport(opts.Area); vp != nil {
		p.Viewport = vp
	}

	rows, total, err := e.query(ctx, op, p)
	if err != nil {
		return nil, err
	}

	w := DefaultWeights()
	if opts.Weights != nil {
		w = *opts.Weights
	}
	scored := scoreRows(rows, &slot, opts.VibeVector, w)
	rankCandidates(scored, impliesPremium(slot))
	if len(scored) > limit {
		scored = scored[:limit]
	}

	cards := make([]models.PlaceCard, 0, len(scored))
	for _, sc := range scored {
		cards = append(cards, models.CardFromRow(sc.row, sc.score, badgesFor(sc.row)))
	}
	return &Result{Cards: cards, Total: total, Kind: "slot", Expr: p.Query}, nil
}

// Search serves free-text queries from the search endpoint. Store order
// is preserved so pagination stays stable across pages; scores and badges
// decorate each row.
func (e *Engine) Search(ctx context.Context, q TextQuery) (*Result, error) {
	const op = "search.Search"

	folded := utils.FoldText(q.Query)
	if folded == "" {
		return e.BrowseEditorial(ctx, Options{
			Limit: q.Limit, Offset: q.Offset,
			Lat: q.Lat, Lng: q.Lng, RadiusM: q.RadiusM, Area: q.Area,
		})
	}

	if q.Sort != "" && !q.Sort.Valid() {
		return nil, errs.NewValidationCode(op, errs.CodeInvalidSort,
			fmt.Sprintf("unsupported sort %q", q.Sort))
	}
	metrics.SearchQueries.WithLabelValues("text").Inc()

	p := domain.SearchParams{
		Query:   booleanText(folded),
		Sort:    q.Sort,
		Limit:   q.Limit,
		Offset:  q.Offset,
		Lat:     q.Lat,
		Lng:     q.Lng,
		RadiusM: q.RadiusM,
	}
	if vp := areaViewport(q.Area); vp != nil {
		p.Viewport = vp
	}

	rows, total, err := e.query(ctx, op, p)
	if err != nil {
		return nil, err
	}

	scored := scoreRows(rows, nil, nil, DefaultWeights())
	cards := make([]models.PlaceCard, 0, len(scored))
	for _, sc := range scored {
		cards = append(cards, models.CardFromRow(sc.row, sc.score, badgesFor(sc.row)))
	}
	return &Result{Cards: cards, Total: total, Kind: "text", Expr: p.Query}, nil
}

// BrowseEditorial returns the curation surface: best quality first,
// optionally narrowed by area or radius. Card scores carry the quality
// score that ranked them.
func (e *Engine) BrowseEditorial(ctx context.Context, opts Options) (*Result, error) {
	const op = "search.BrowseEditorial"
	metrics.SearchQueries.WithLabelValues("editorial").Inc()

	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	p := domain.SearchParams{
		Limit:   limit,
		Offset:  opts.Offset,
		Lat:     opts.Lat,
		Lng:     opts.Lng,
		RadiusM: opts.RadiusM,
	}
	if vp := areaViewport(opts.Area); vp != nil {
		p.Viewport = vp
	}

	rows, total, err := e.query(ctx, op, p)
	if err != nil {
		return nil, err
	}

	cards := make([]models.PlaceCard, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		cards = append(cards, models.CardFromRow(r, r.Signals.QualityScore, badgesFor(r)))
	}
	return &Result{Cards: cards, Total: total, Kind: "editorial"}, nil
}

func (e *Engine) query(ctx context.Context, op string, p domain.SearchParams) ([]models.SearchRow, int, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	rows, total, err := e.repo.SearchViewCtx(ctx, p)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.log.Warn("view query cut off by deadline",
				logging.String("op", op),
				logging.String("query", p.Query))
			return nil, 0, errs.NewTimeout(op, "search view", err)
		}
		return nil, 0, err
	}
	return rows, total, nil
}

// fetchLimit over-fetches so in-process rescoring has candidates beyond
// the store's lexical order.
func fetchLimit(limit int) int {
	n := limit * 3
	if n > candidateCap {
		n = candidateCap
	}
	if n < limit {
		n = limit
	}
	return n
}

// requiresTag reports whether the slot's canonical must appear in the
// row's tag set. Dishes are binary: a tom yum rail must serve tom yum.
// Vibes, drinks and experiences can ride on lexical and vibe evidence.
func requiresTag(slot slotter.Slot) bool { return slot.Type == ontology.TypeDish }

// booleanQuery ORs the slot's canonical and expansion tags into one
// boolean-mode expression. Tags are single FULLTEXT tokens (underscores
// count as word characters).
func booleanQuery(slot slotter.Slot) string {
	terms := make([]string, 0, len(slot.Expansions)+1)
	seen := make(map[string]struct{}, len(slot.Expansions)+1)
	for _, t := range append([]string{slot.Canonical}, slot.Expansions...) {
		t = booleanText(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return strings.Join(terms, " ")
}

// booleanText strips the boolean-mode operators from user text so free
// input cannot change the query structure.
func booleanText(s string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '+', '-', '<', '>', '(', ')', '~', '*', '"', '@':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(clean), " ")
}

func areaViewport(name string) *geo.Viewport {
	if name == "" {
		return nil
	}
	a, ok := geo.LookupArea(name)
	if !ok {
		return nil
	}
	vp := a.Viewport()
	return &vp
}

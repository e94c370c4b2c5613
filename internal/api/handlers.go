package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"venue-rails/internal/constants"
	"venue-rails/internal/domain"
	"venue-rails/internal/models"
	"venue-rails/internal/ontology"
	"venue-rails/internal/search"
	"venue-rails/internal/slotter"
	"venue-rails/pkg/config"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/health"
	"venue-rails/pkg/logging"
)

// HealthHandler reports the aggregate system verdict. An unhealthy system
// answers 503 so load balancers rotate the instance out.
func HealthHandler(manager *health.HealthManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if manager != nil {
			switch manager.CheckAll(r.Context()).Status {
			case health.HealthStatusUnhealthy:
				status, code = "unhealthy", http.StatusServiceUnavailable
			case health.HealthStatusDegraded:
				status = "degraded"
			}
		}
		writeJSON(w, code, map[string]any{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// DBHealthHandler probes database connectivity only.
func DBHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := db.PingCtx(r.Context()); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":    status,
			"scope":     "db",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// FeatureFlagsHandler exposes the live flag snapshot plus the non-secret
// config values that shape request handling.
func FeatureFlagsHandler(flags *config.FlagSource, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":        true,
			"flags":     config.FlagSummary(flags.Current()),
			"config":    cfg.Summary(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type searchResponse struct {
	Results    []models.PlaceCard `json:"results"`
	TotalCount int                `json:"total_count"`
	Query      string             `json:"query"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
	HasMore    bool               `json:"has_more"`
}

// SearchHandler serves free-text search over the derived view. An empty
// query browses the editorial surface.
func SearchHandler(engine Searcher, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		lat, lng, err := parseGeo("api.SearchHandler", q)
		if err != nil {
			writeError(w, log, err)
			return
		}
		limit := clampInt(q.Get("limit"), constants.SearchLimitDefault, constants.SearchLimitMax)
		offset := intAtLeast(q.Get("offset"), 0)

		res, err := engine.Search(r.Context(), search.TextQuery{
			Query:   q.Get("q"),
			Limit:   limit,
			Offset:  offset,
			Lat:     lat,
			Lng:     lng,
			RadiusM: floatAtLeast(q.Get("radius_m"), 0),
			Sort:    domain.Sort(strings.TrimSpace(q.Get("sort"))),
			Area:    q.Get("area"),
		})
		if err != nil {
			writeError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, searchResponse{
			Results:    res.Cards,
			TotalCount: res.Total,
			Query:      q.Get("q"),
			Limit:      limit,
			Offset:     offset,
			HasMore:    offset+len(res.Cards) < res.Total,
		})
	}
}

type suggestion struct {
	Kind      string            `json:"kind"` // tag or venue
	Label     string            `json:"label"`
	Canonical string            `json:"canonical,omitempty"`
	Type      ontology.SlotType `json:"type,omitempty"`
	Match     string            `json:"match,omitempty"`
	PlaceID   int64             `json:"place_id,omitempty"`
}

type suggestResponse struct {
	Suggestions []suggestion `json:"suggestions"`
	Query       string       `json:"query"`
}

// SuggestHandler serves typeahead: dictionary labels first, venue names
// from the view filling the remainder.
func SuggestHandler(onto *ontology.Ontology, engine Searcher, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := clampInt(r.URL.Query().Get("limit"), constants.SuggestLimitDefault, constants.SuggestLimitMax)

		out := make([]suggestion, 0, limit)
		for _, s := range onto.Suggest(q, limit) {
			out = append(out, suggestion{
				Kind:      "tag",
				Label:     s.Label,
				Canonical: s.Canonical,
				Type:      s.Type,
				Match:     s.Match,
			})
		}

		if remaining := limit - len(out); remaining > 0 && q != "" {
			res, err := engine.Search(r.Context(), search.TextQuery{Query: q, Limit: remaining})
			if err != nil {
				// Dictionary hits still serve; venue names are filler.
				log.Warn("venue suggestions failed", logging.String("q", q), logging.Error(err))
			} else {
				for i := range res.Cards {
					out = append(out, suggestion{Kind: "venue", Label: res.Cards[i].Name, PlaceID: res.Cards[i].ID})
				}
			}
		}

		writeJSON(w, http.StatusOK, suggestResponse{Suggestions: out, Query: q})
	}
}

// PlaceHandler returns the full venue record, lifecycle fields included.
func PlaceHandler(store VenueStore, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, log, errs.NewValidation("api.PlaceHandler", "invalid venue id", err))
			return
		}
		v, err := store.GetVenueCtx(r.Context(), id)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

type parseRequest struct {
	Query   string   `json:"query"`
	Area    string   `json:"area,omitempty"`
	UserLat *float64 `json:"user_lat,omitempty"`
	UserLng *float64 `json:"user_lng,omitempty"`
}

type parseResponse struct {
	Query        string         `json:"query"`
	Slots        []slotter.Slot `json:"slots"`
	Vibes        []string       `json:"vibes"`
	Confidence   float64        `json:"confidence"`
	FallbackUsed bool           `json:"fallback_used"`
	Vague        bool           `json:"vague"`
	Reason       string         `json:"reason,omitempty"`
	Debug        *slotter.Debug `json:"debug,omitempty"`
	ProcessingMS int64          `json:"processing_time_ms"`
	CacheHit     bool           `json:"cache_hit"`
}

// ParseHandler runs slot extraction without composing rails, for clients
// that drive their own retrieval.
func ParseHandler(parser Parser, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.ParseHandler"
		var body parseRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, log, errs.NewValidation(op, "invalid JSON body", err))
			return
		}
		if err := validGeoPair(op, body.UserLat, body.UserLng); err != nil {
			writeError(w, log, err)
			return
		}

		start := time.Now()
		res, err := parser.Parse(r.Context(), slotter.Request{
			Query: body.Query,
			Area:  body.Area,
			Lat:   body.UserLat,
			Lng:   body.UserLng,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newParseResponse(res, time.Since(start)))
	}
}

// newParseResponse flattens the parse result for clients: VIBE canonicals
// surface as a vibes list and the strongest slot sets the top-level
// confidence.
func newParseResponse(res *slotter.Result, d time.Duration) parseResponse {
	vibes := make([]string, 0, 2)
	conf := 0.0
	for i := range res.Slots {
		if res.Slots[i].Type == ontology.TypeVibe {
			vibes = append(vibes, res.Slots[i].Canonical)
		}
		if res.Slots[i].Confidence > conf {
			conf = res.Slots[i].Confidence
		}
	}
	slots := res.Slots
	if slots == nil {
		slots = []slotter.Slot{}
	}
	return parseResponse{
		Query:        res.Query,
		Slots:        slots,
		Vibes:        vibes,
		Confidence:   conf,
		FallbackUsed: res.FallbackUsed,
		Vague:        res.Vague,
		Reason:       res.Reason,
		Debug:        res.Debug,
		ProcessingMS: d.Milliseconds(),
		CacheHit:     res.CacheHit,
	}
}

// parseGeo extracts the optional caller coordinates from query params.
// Half a pair or an out-of-range value is rejected.
func parseGeo(op string, q url.Values) (lat, lng *float64, err error) {
	latS := strings.TrimSpace(q.Get("user_lat"))
	lngS := strings.TrimSpace(q.Get("user_lng"))
	if latS == "" && lngS == "" {
		return nil, nil, nil
	}
	if latS == "" || lngS == "" {
		return nil, nil, errs.NewValidationCode(op, errs.CodeInvalidCoords,
			"user_lat and user_lng must be supplied together")
	}
	la, err1 := strconv.ParseFloat(latS, 64)
	ln, err2 := strconv.ParseFloat(lngS, 64)
	if err1 != nil || err2 != nil || !models.CoordsValid(la, ln) {
		return nil, nil, errs.NewValidationCode(op, errs.CodeInvalidCoords,
			fmt.Sprintf("invalid coordinates %q,%q", latS, lngS))
	}
	return &la, &ln, nil
}

// validGeoPair checks body coordinates the same way parseGeo checks query
// params.
func validGeoPair(op string, lat, lng *float64) error {
	if lat == nil && lng == nil {
		return nil
	}
	if lat == nil || lng == nil {
		return errs.NewValidationCode(op, errs.CodeInvalidCoords,
			"user_lat and user_lng must be supplied together")
	}
	if !models.CoordsValid(*lat, *lng) {
		return errs.NewValidationCode(op, errs.CodeInvalidCoords,
			fmt.Sprintf("invalid coordinates %v,%v", *lat, *lng))
	}
	return nil
}

// clampInt parses s into [1, max], falling back to def when absent or
// unparsable.
func clampInt(s string, def, max int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func intAtLeast(s string, min int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < min {
		return min
	}
	return n
}

func floatAtLeast(s string, min float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < min {
		return min
	}
	return f
}

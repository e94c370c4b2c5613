package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"venue-rails/internal/constants"
	"venue-rails/internal/models"
	"venue-rails/internal/rails"
	"venue-rails/internal/slotter"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
)

// RailsHandler composes rails from query parameters.
func RailsHandler(composer Composer, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		lat, lng, err := parseGeo("api.RailsHandler", q)
		if err != nil {
			writeError(w, log, err)
			return
		}

		serveRails(w, r, composer, rails.Request{
			Query:     q.Get("q"),
			SessionID: strings.TrimSpace(q.Get("session_id")),
			Lat:       lat,
			Lng:       lng,
			RadiusM:   floatAtLeast(q.Get("radius_m"), 0),
			Area:      q.Get("area"),
			Mode:      rails.Mode(q.Get("mode")),
			Limit:     clampInt(q.Get("limit"), 0, constants.RailLengthMax),
			Quality:   q.Get("quality"),
		}, log)
	}
}

type composeRequest struct {
	Query     string          `json:"query"`
	Parsed    *slotter.Result `json:"parsed,omitempty"` // /api/parse output, skips re-parsing
	SessionID string          `json:"session_id,omitempty"`
	UserLat   *float64        `json:"user_lat,omitempty"`
	UserLng   *float64        `json:"user_lng,omitempty"`
	RadiusM   float64         `json:"radius_m,omitempty"`
	Area      string          `json:"area,omitempty"`
	Mode      string          `json:"mode,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Quality   string          `json:"quality,omitempty"`
}

// ComposeHandler composes rails from a JSON body. A client that already
// called /api/parse can hand the result back to skip re-parsing.
func ComposeHandler(composer Composer, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.ComposeHandler"
		var body composeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, log, errs.NewValidation(op, "invalid JSON body", err))
			return
		}
		if err := validGeoPair(op, body.UserLat, body.UserLng); err != nil {
			writeError(w, log, err)
			return
		}
		limit := body.Limit
		if limit < 0 {
			limit = 0
		}
		if limit > constants.RailLengthMax {
			limit = constants.RailLengthMax
		}

		serveRails(w, r, composer, rails.Request{
			Query:     body.Query,
			Parsed:    body.Parsed,
			SessionID: strings.TrimSpace(body.SessionID),
			Lat:       body.UserLat,
			Lng:       body.UserLng,
			RadiusM:   body.RadiusM,
			Area:      body.Area,
			Mode:      rails.Mode(body.Mode),
			Limit:     limit,
			Quality:   body.Quality,
		}, log)
	}
}

// serveRails runs the composition and writes the payload plus the debug
// headers. Headers must land before the body.
func serveRails(w http.ResponseWriter, r *http.Request, composer Composer, req rails.Request, log *logging.ComponentLogger) {
	resp, err := composer.Compose(r.Context(), req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	h := w.Header()
	h.Set("X-Rails", resp.RailCounts())
	h.Set("X-Mode", string(resp.Mode))
	if resp.CacheHit {
		h.Set("X-Rails-Cache", "HIT")
	} else {
		h.Set("X-Rails-Cache", "MISS")
	}
	h.Set("X-Route-Debug", resp.RouteDebug())
	if sd := resp.SearchDebug(); sd != "" {
		h.Set("X-Search-Debug", sd)
	}

	writeJSON(w, http.StatusOK, resp)
}

type feedbackAck struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// FeedbackHandler records one session interaction. The venue's tags feed
// the session's vibe vector; the raw signal also lands in storage for
// offline mining, best effort.
func FeedbackHandler(sessions SessionStore, store VenueStore, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.FeedbackHandler"
		var sig models.FeedbackSignal
		if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
			writeError(w, log, errs.NewValidation(op, "invalid JSON body", err))
			return
		}
		sig.SessionID = sessions.EnsureSession(sig.SessionID)
		if sig.At.IsZero() {
			sig.At = time.Now().UTC()
		}
		if err := sig.Validate(); err != nil {
			writeError(w, log, errs.NewValidation(op, "invalid feedback signal", err))
			return
		}

		var tags []string
		v, err := store.GetVenueCtx(r.Context(), sig.PlaceID)
		switch {
		case err == nil:
			tags = v.Clean.Tags
		case errs.HasCode(err, errs.CodeNotFound):
			writeError(w, log, err)
			return
		default:
			// Tag lookup enriches the profile; the signal still counts.
			log.Warn("venue lookup for feedback failed",
				logging.Int64("place_id", sig.PlaceID), logging.Error(err))
		}

		if err := sessions.AddSignal(sig, tags); err != nil {
			writeError(w, log, err)
			return
		}
		metrics.FeedbackSignals.WithLabelValues(string(sig.Action)).Inc()

		if err := store.CreateFeedbackCtx(r.Context(), &sig); err != nil {
			log.Warn("feedback persistence failed",
				logging.Int64("place_id", sig.PlaceID), logging.Error(err))
		}

		writeJSON(w, http.StatusOK, feedbackAck{Status: "recorded", SessionID: sig.SessionID})
	}
}

// ProfileHandler returns the session's profile snapshot.
func ProfileHandler(sessions SessionStore, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["session_id"]
		st, ok := sessions.Profile(id)
		if !ok {
			writeError(w, log, errs.NewNotFound("api.ProfileHandler", "session", id))
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

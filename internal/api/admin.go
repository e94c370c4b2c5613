package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"venue-rails/internal/constants"
	"venue-rails/internal/models"
	"venue-rails/internal/pipeline"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/events"
	"venue-rails/pkg/logging"
)

// pipelineVenueTimeout bounds a synchronous single-venue run; the full
// chain makes two provider calls with retries.
const pipelineVenueTimeout = 2 * time.Minute

type createPlaceRequest struct {
	Source      string   `json:"source,omitempty"`
	SourceID    string   `json:"source_id,omitempty"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Address     string   `json:"address,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
}

// CreatePlaceHandler accepts a venue at the top of the ingest funnel. The
// record lands in NEW and is nudged into the pipeline when one is running;
// the batch sweep picks it up otherwise.
func CreatePlaceHandler(store VenueStore, engine pipeline.Runner, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.CreatePlaceHandler"
		var body createPlaceRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, log, errs.NewValidation(op, "invalid JSON body", err))
			return
		}
		if strings.TrimSpace(body.Name) == "" {
			writeError(w, log, errs.NewValidationCode(op, errs.CodeMissingName, "name is required"))
			return
		}
		if err := validGeoPair(op, body.Lat, body.Lng); err != nil {
			writeError(w, log, err)
			return
		}

		now := time.Now().UTC()
		v := &models.Venue{
			Source:   strings.TrimSpace(body.Source),
			SourceID: strings.TrimSpace(body.SourceID),
			Raw: models.RawInfo{
				Name:        strings.TrimSpace(body.Name),
				Category:    strings.TrimSpace(body.Category),
				Description: strings.TrimSpace(body.Description),
				Address:     strings.TrimSpace(body.Address),
			},
			Geo:       models.GeoInfo{Lat: body.Lat, Lng: body.Lng},
			Status:    models.StatusNew,
			ScrapedAt: now,
			UpdatedAt: now,
		}
		if err := store.CreateVenueCtx(r.Context(), v); err != nil {
			writeError(w, log, err)
			return
		}
		log.Info("venue created", logging.Int64("venue_id", v.ID), logging.String("name", v.Raw.Name))

		if engine != nil {
			if err := engine.Enqueue(v.ID); err != nil {
				log.Warn("enqueue after create failed",
					logging.Int64("venue_id", v.ID), logging.Error(err))
			}
		}

		writeJSON(w, http.StatusCreated, v)
	}
}

type pipelineRunRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// PipelineRunHandler queues a batch of venues in the given lifecycle
// state. Defaults to sweeping NEW records.
func PipelineRunHandler(engine pipeline.Runner, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.PipelineRunHandler"
		if engine == nil {
			serviceUnavailable(w, "ingestion pipeline is disabled")
			return
		}

		var body pipelineRunRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, log, errs.NewValidation(op, "invalid JSON body", err))
			return
		}

		status := models.StatusNew
		if s := strings.TrimSpace(body.Status); s != "" {
			status = models.Status(strings.ToUpper(s))
			if !status.Valid() {
				writeError(w, log, errs.NewValidationCode(op, errs.CodeInvalidStatus,
					fmt.Sprintf("unknown status %q", body.Status)))
				return
			}
		}
		limit := body.Limit
		if limit <= 0 {
			limit = constants.PipelineBatchDefault
		}
		if limit > constants.PipelineBatchMax {
			limit = constants.PipelineBatchMax
		}

		queued, err := engine.EnqueueBatch(r.Context(), status, limit)
		if err != nil {
			writeError(w, log, err)
			return
		}
		log.Info("pipeline batch queued",
			logging.String("status", string(status)), logging.Int("queued", queued))

		writeJSON(w, http.StatusAccepted, map[string]any{
			"queued": queued,
			"status": status,
			"stats":  engine.Stats(),
		})
	}
}

// PipelineVenueHandler runs the full chain synchronously for one venue
// and returns the record as the pipeline left it.
func PipelineVenueHandler(engine pipeline.Runner, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.PipelineVenueHandler"
		if engine == nil {
			serviceUnavailable(w, "ingestion pipeline is disabled")
			return
		}
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, log, errs.NewValidation(op, "invalid venue id", err))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), pipelineVenueTimeout)
		defer cancel()

		v, err := engine.RunVenue(ctx, id)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// RefreshHandler forces a view rebuild outside the regular cadence and
// reports the refresher's state afterwards.
func RefreshHandler(views ViewRefresher, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if views == nil {
			serviceUnavailable(w, "view refresher is not running")
			return
		}
		if err := views.RunOnce(); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "refreshed",
			"view":   views.Status(),
		})
	}
}

// VenueEventsHandler answers "where did this record end up and why": the
// replayed timeline plus the raw per-venue log.
func VenueEventsHandler(store events.Store, log *logging.ComponentLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.VenueEventsHandler"
		if store == nil {
			serviceUnavailable(w, "event log is not available")
			return
		}
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, log, errs.NewValidation(op, "invalid venue id", err))
			return
		}

		list, err := store.ListByVenue(r.Context(), id)
		if err != nil {
			writeError(w, log, err)
			return
		}
		if len(list) == 0 {
			writeError(w, log, errs.NewNotFound(op, "venue events", id))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"timeline": events.RebuildState(list),
			"events":   list,
		})
	}
}

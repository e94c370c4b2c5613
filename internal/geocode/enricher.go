// Package geocode resolves venue records against the Google Places API.
// A TextSearch finds candidates, the closest name/address match supplies
// the place id, PlaceDetails fetches the masked field set; all of it runs
// behind a circuit breaker so a flapping provider degrades the pipeline
// instead of stalling it.
package geocode

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"venue-rails/internal/constants"
	"venue-rails/internal/models"
	"venue-rails/pkg/circuit"
	"venue-rails/pkg/errors"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
	"venue-rails/pkg/utils"

	"googlemaps.github.io/maps"
)

const photoEndpoint = "https://maps.googleapis.com/maps/api/place/photo"

// matchFloor is the minimum name/address agreement before a search hit
// counts as the same venue rather than a nearby lookalike.
const matchFloor = 0.45

// Enrichment is the patch the places provider contributes to one record.
type Enrichment struct {
	PlaceID          string
	Lat              float64
	Lng              float64
	FormattedAddress string
	MapURL           string
	Phone            string
	Website          string
	Rating           float64 // 0 when the provider sent none
	PriceLevel       int     // 0 when the provider sent none
	ReviewCount      int
	OpeningHours     string // normalized JSON document, "" when absent
	Photos           []string
	BusinessOpen     bool
}

// Config tunes the enricher.
type Config struct {
	APIKey        string
	Timeout       time.Duration // per provider round-trip
	MaxPhotos     int
	PhotoMaxWidth int
}

type Enricher struct {
	cfg     Config
	client  *maps.Client
	breaker *circuit.Breaker
	log     *logging.ComponentLogger
}

func New(cfg Config, log *logging.Logger) (*Enricher, error) {
	const op = "geocode.New"
	if cfg.APIKey == "" {
		return nil, errors.NewValidation(op, "maps api key required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.GoogleMapsOperationTimeout
	}
	if cfg.MaxPhotos <= 0 {
		cfg.MaxPhotos = 5
	}
	if cfg.PhotoMaxWidth <= 0 {
		cfg.PhotoMaxWidth = 800
	}

	client, err := maps.NewClient(maps.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, errors.NewExternal(op, "googlemaps", "client init failed", err)
	}

	breaker := circuit.New(circuit.Config{
		Name:              "googlemaps",
		OperationTimeout:  cfg.Timeout,
		OpenFor:           constants.GoogleMapsOpenFor,
		MaxConsecFailures: 5,
		WindowSize:        20,
		FailureRate:       constants.CircuitFailureRate,
		SlowCallThreshold: constants.GoogleMapsSlowCallThreshold,
		SlowCallRate:      constants.CircuitSlowCallRate,
	}, log)

	return &Enricher{
		cfg:     cfg,
		client:  client,
		breaker: breaker,
		log:     log.WithComponent("geocode"),
	}, nil
}

// Enrich resolves one venue. NOT_FOUND and INVALID_COORDS are domain facts
// for the caller to route; provider and breaker failures come back retryable.
func (e *Enricher) Enrich(ctx context.Context, v models.Venue) (*Enrichment, error) {
	const op = "geocode.Enrich"

	query := strings.TrimSpace(v.Raw.Name)
	if query == "" {
		return nil, errors.NewValidationCode(op, errors.CodeMissingName, "cannot geocode a venue without a name")
	}
	if addr := strings.TrimSpace(v.Raw.Address); addr != "" {
		query += " " + addr
	}

	var enr *Enrichment
	err := e.breaker.Do(ctx, func(ctx context.Context) error {
		found, lerr := e.lookup(ctx, query, v.Raw)
		if lerr != nil {
			return lerr
		}
		enr = found
		return nil
	}, nil)

	switch {
	case err == nil:
		metrics.GeocodeCalls.WithLabelValues("ok").Inc()
		e.log.Debug("venue resolved",
			logging.Int64("venue_id", v.ID),
			logging.String("place_id", enr.PlaceID))
		return enr, nil
	case errors.HasCode(err, errors.CodeNotFound):
		metrics.GeocodeCalls.WithLabelValues("not_found").Inc()
		return nil, err
	case errors.HasCode(err, errors.CodeInvalidCoords):
		metrics.GeocodeCalls.WithLabelValues("invalid_coords").Inc()
		return nil, err
	case errors.Is(err, circuit.ErrOpen):
		metrics.GeocodeCalls.WithLabelValues("short_circuit").Inc()
		return nil, errors.NewProviderError(op, "googlemaps", err)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.GeocodeCalls.WithLabelValues("timeout").Inc()
		return nil, errors.NewTimeout(op, "googlemaps", err)
	default:
		metrics.GeocodeCalls.WithLabelValues("error").Inc()
		return nil, err
	}
}

func (e *Enricher) lookup(ctx context.Context, query string, raw models.RawInfo) (*Enrichment, error) {
	const op = "geocode.lookup"

	search, err := e.client.TextSearch(ctx, &maps.TextSearchRequest{Query: query})
	if err != nil {
		return nil, errors.NewProviderError(op, "googlemaps", err)
	}
	if len(search.Results) == 0 {
		return nil, errors.NewNotFound(op, "place", query)
	}
	top, match := bestCandidate(search.Results, raw)
	if match < matchFloor {
		e.log.Debug("best candidate rejected",
			logging.String("query", query),
			logging.String("candidate", top.Name),
			logging.Float64("match", match))
		return nil, errors.NewNotFound(op, "place", query)
	}

	details, err := e.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
		PlaceID: top.PlaceID,
		// The rating mask is skipped: the library spells it "ratings",
		// which the API rejects. Rating rides in on the search result.
		Fields: []maps.PlaceDetailsFieldMask{
			maps.PlaceDetailsFieldMaskPlaceID,
			maps.PlaceDetailsFieldMaskName,
			maps.PlaceDetailsFieldMaskGeometry,
			maps.PlaceDetailsFieldMaskFormattedAddress,
			maps.PlaceDetailsFieldMaskFormattedPhoneNumber,
			maps.PlaceDetailsFieldMaskWebsite,
			maps.PlaceDetailsFieldMaskPriceLevel,
			maps.PlaceDetailsFieldMaskOpeningHours,
			maps.PlaceDetailsFieldMaskPhotos,
			maps.PlaceDetailsFieldMaskBusinessStatus,
			maps.PlaceDetailsFieldMaskURL,
		},
	})
	if err != nil {
		return nil, errors.NewProviderError(op, "googlemaps", err)
	}

	return e.buildEnrichment(top, &details)
}

// bestCandidate scores every search hit against the raw record. Name
// similarity dominates; the address refines the score when both sides
// carry one.
func bestCandidate(results []maps.PlacesSearchResult, raw models.RawInfo) (maps.PlacesSearchResult, float64) {
	name := utils.FoldText(raw.Name)
	best := results[0]
	bestScore := -1.0
	for _, r := range results {
		score := utils.StringSimilarity(name, utils.FoldText(r.Name))
		if raw.Address != "" && r.FormattedAddress != "" {
			score = 0.6*score + 0.4*utils.CompareAddresses(raw.Address, r.FormattedAddress)
		}
		if score > bestScore {
			best, bestScore = r, score
		}
	}
	return best, bestScore
}

// buildEnrichment merges the search hit and the details response into one
// patch. Details win where both carry a value; the search result backfills
// rating and review counts, which the details field mask cannot request.
func (e *Enricher) buildEnrichment(top maps.PlacesSearchResult, details *maps.PlaceDetailsResult) (*Enrichment, error) {
	const op = "geocode.buildEnrichment"

	lat := details.Geometry.Location.Lat
	lng := details.Geometry.Location.Lng
	if lat == 0 && lng == 0 {
		lat = top.Geometry.Location.Lat
		lng = top.Geometry.Location.Lng
	}
	if (lat == 0 && lng == 0) || !models.CoordsValid(lat, lng) {
		return nil, errors.NewValidationCode(op, errors.CodeInvalidCoords,
			fmt.Sprintf("provider returned unusable coordinates %.6f,%.6f", lat, lng))
	}

	placeID := details.PlaceID
	if placeID == "" {
		placeID = top.PlaceID
	}
	formatted := details.FormattedAddress
	if formatted == "" {
		formatted = top.FormattedAddress
	}

	rating := float64(top.Rating)
	if details.Rating > 0 {
		rating = float64(details.Rating)
	}
	priceLevel := details.PriceLevel
	if priceLevel == 0 {
		priceLevel = top.PriceLevel
	}
	reviews := top.UserRatingsTotal
	if details.UserRatingsTotal > reviews {
		reviews = details.UserRatingsTotal
	}

	photos := details.Photos
	if len(photos) == 0 {
		photos = top.Photos
	}

	return &Enrichment{
		PlaceID:          placeID,
		Lat:              lat,
		Lng:              lng,
		FormattedAddress: formatted,
		MapURL:           details.URL,
		Phone:            details.FormattedPhoneNumber,
		Website:          details.Website,
		Rating:           rating,
		PriceLevel:       priceLevel,
		ReviewCount:      reviews,
		OpeningHours:     hoursDocument(details.OpeningHours),
		Photos:           e.photoURLs(photos),
		BusinessOpen:     details.BusinessStatus == "OPERATIONAL",
	}, nil
}

// photoURLs renders up to MaxPhotos provider photo references as fetchable
// URLs. The API key is attached by the serving layer, never stored.
func (e *Enricher) photoURLs(photos []maps.Photo) []string {
	if len(photos) == 0 {
		return nil
	}
	n := len(photos)
	if n > e.cfg.MaxPhotos {
		n = e.cfg.MaxPhotos
	}
	out := make([]string, 0, n)
	for _, p := range photos[:n] {
		if p.PhotoReference == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s?maxwidth=%d&photoreference=%s",
			photoEndpoint, e.cfg.PhotoMaxWidth, url.QueryEscape(p.PhotoReference)))
	}
	return out
}

// Apply writes the patch onto the record. Geo fields always win; contact,
// commerce and media fields only fill gaps so curated values survive re-runs.
func (enr *Enrichment) Apply(v *models.Venue) {
	v.Geo.Lat = &enr.Lat
	v.Geo.Lng = &enr.Lng
	if enr.PlaceID != "" {
		v.Geo.PlaceID = &enr.PlaceID
	}
	if enr.MapURL != "" {
		v.Geo.MapURL = &enr.MapURL
	}
	if enr.FormattedAddress != "" {
		v.Geo.FormattedAddress = &enr.FormattedAddress
	}

	if enr.Phone != "" && (v.Clean.Phone == nil || *v.Clean.Phone == "") {
		phone := utils.NormalizePhoneNumber(enr.Phone)
		v.Clean.Phone = &phone
	}
	if enr.Website != "" && (v.Clean.Website == nil || *v.Clean.Website == "") {
		v.Clean.Website = &enr.Website
	}
	if enr.OpeningHours != "" && (v.Clean.OpeningHours == nil || *v.Clean.OpeningHours == "") {
		v.Clean.OpeningHours = &enr.OpeningHours
	}

	if enr.Rating > 0 && v.Commerce.Rating == nil {
		v.Commerce.Rating = &enr.Rating
	}
	if enr.PriceLevel > 0 && v.Commerce.PriceLevel == nil {
		v.Commerce.PriceLevel = &enr.PriceLevel
	}
	if len(enr.Photos) > 0 && len(v.Media.Photos) == 0 {
		v.Media.Photos = enr.Photos
		if v.Media.PictureURL == nil {
			v.Media.PictureURL = &enr.Photos[0]
		}
	}
	if v.Signals.Popularity == 0 && enr.ReviewCount > 0 {
		v.Signals.Popularity = popularityFromReviews(enr.ReviewCount)
	}
}

// popularityFromReviews maps a review count onto [0,1] on a log scale.
// 5000 reviews saturates the signal.
func popularityFromReviews(n int) float64 {
	if n <= 0 {
		return 0
	}
	p := math.Log1p(float64(n)) / math.Log1p(5000)
	if p > 1 {
		return 1
	}
	return p
}

// Package api is the HTTP surface: health probes, search and suggest,
// parse, rails composition, feedback, and the token-guarded admin routes.
// Handlers depend on narrow interfaces so tests can run against fakes.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"venue-rails/internal/auth"
	"venue-rails/internal/domain"
	"venue-rails/internal/models"
	"venue-rails/internal/ontology"
	"venue-rails/internal/pipeline"
	"venue-rails/internal/rails"
	"venue-rails/internal/refresher"
	"venue-rails/internal/search"
	"venue-rails/internal/session"
	"venue-rails/internal/slotter"
	"venue-rails/pkg/config"
	"venue-rails/pkg/events"
	"venue-rails/pkg/health"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/monitoring"
)

// Searcher runs free-text retrieval against the derived view.
type Searcher interface {
	Search(ctx context.Context, q search.TextQuery) (*search.Result, error)
}

// Parser extracts intent slots from a raw query.
type Parser interface {
	Parse(ctx context.Context, req slotter.Request) (*slotter.Result, error)
}

// Composer builds the rails response.
type Composer interface {
	Compose(ctx context.Context, req rails.Request) (*rails.Response, error)
}

// SessionStore tracks per-session taste profiles.
type SessionStore interface {
	EnsureSession(id string) string
	AddSignal(sig models.FeedbackSignal, tags []string) error
	Profile(id string) (*session.Stats, bool)
}

// VenueStore is the slice of the repository the handlers touch.
type VenueStore interface {
	domain.VenueReader
	domain.VenueWriter
	domain.FeedbackRepository
}

// ViewRefresher forces a derived-view rebuild outside the regular cadence.
type ViewRefresher interface {
	RunOnce() error
	Status() refresher.Status
}

// Pinger probes database connectivity.
type Pinger interface {
	PingCtx(ctx context.Context) error
}

// Deps carries everything the HTTP surface needs. Pipeline, Refresher and
// Events may be nil; their endpoints then answer 503 instead of panicking.
type Deps struct {
	Search    Searcher
	Parser    Parser
	Composer  Composer
	Sessions  SessionStore
	Store     VenueStore
	Pipeline  pipeline.Runner
	Refresher ViewRefresher
	Events    events.Store
	Onto      *ontology.Ontology
	DB        Pinger
	Health    *health.HealthManager
	Flags     *config.FlagSource
	Cfg       *config.Config
	Guard     *auth.Guard
	Log       *logging.Logger
	Sampler   *monitoring.Metrics
}

// NewRouter wires every endpoint with request observation and CORS.
func NewRouter(d Deps) http.Handler {
	log := d.Log.WithComponent("api")

	r := mux.NewRouter()
	r.Use(observe(log, d.Sampler))

	r.HandleFunc("/health", HealthHandler(d.Health)).Methods(http.MethodGet)
	r.HandleFunc("/health/db", DBHealthHandler(d.DB)).Methods(http.MethodGet)
	r.HandleFunc("/health/feature-flags", FeatureFlagsHandler(d.Flags, d.Cfg)).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/places/search", SearchHandler(d.Search, log)).Methods(http.MethodGet)
	api.HandleFunc("/places/suggest", SuggestHandler(d.Onto, d.Search, log)).Methods(http.MethodGet)
	api.HandleFunc("/places/{id:[0-9]+}", PlaceHandler(d.Store, log)).Methods(http.MethodGet)
	api.HandleFunc("/parse", ParseHandler(d.Parser, log)).Methods(http.MethodPost)
	api.HandleFunc("/rails", RailsHandler(d.Composer, log)).Methods(http.MethodGet)
	api.HandleFunc("/compose", ComposeHandler(d.Composer, log)).Methods(http.MethodPost)
	api.HandleFunc("/feedback", FeedbackHandler(d.Sessions, d.Store, log)).Methods(http.MethodPost)
	api.HandleFunc("/feedback/profile/{session_id}", ProfileHandler(d.Sessions, log)).Methods(http.MethodGet)

	// Venue creation mutates the base table; it shares the admin token.
	api.Handle("/places", d.Guard.Handler(CreatePlaceHandler(d.Store, d.Pipeline, log))).Methods(http.MethodPost)

	adm := r.PathPrefix("/admin").Subrouter()
	adm.Use(d.Guard.Handler)
	adm.Handle("/pipeline/run", PipelineRunHandler(d.Pipeline, log)).Methods(http.MethodPost)
	adm.Handle("/pipeline/venue/{id:[0-9]+}", PipelineVenueHandler(d.Pipeline, log)).Methods(http.MethodPost)
	adm.Handle("/refresh", RefreshHandler(d.Refresher, log)).Methods(http.MethodPost)
	adm.Handle("/venues/{id:[0-9]+}/events", VenueEventsHandler(d.Events, log)).Methods(http.MethodGet)

	return corsFor(d.Cfg).Handler(r)
}

func corsFor(cfg *config.Config) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", auth.TokenHeader},
		ExposedHeaders: []string{"X-Rails", "X-Mode", "X-Rails-Cache", "X-Route-Debug", "X-Search-Debug"},
		MaxAge:         300,
	})
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"venue-rails/internal/api"
	"venue-rails/internal/auth"
	"venue-rails/internal/domain"
	"venue-rails/internal/geocode"
	"venue-rails/internal/infrastructure/repository"
	"venue-rails/internal/ontology"
	"venue-rails/internal/pipeline"
	"venue-rails/internal/rails"
	"venue-rails/internal/refresher"
	"venue-rails/internal/search"
	"venue-rails/internal/session"
	"venue-rails/internal/slotter"
	"venue-rails/internal/summarize"
	"venue-rails/pkg/config"
	"venue-rails/pkg/container"
	"venue-rails/pkg/database"
	"venue-rails/pkg/events"
	"venue-rails/pkg/health"
	"venue-rails/pkg/logging"
	metricsPkg "venue-rails/pkg/metrics"
	"venue-rails/pkg/monitoring"
)

func main() {
	// Build container and register providers
	c := container.New()

	// Config (singleton)
	_ = c.Provide(func() *config.Config { return config.Load() }, true)

	// Structured logger (singleton)
	_ = c.Provide(func(cfg *config.Config) (*logging.Logger, error) {
		return logging.NewLogger(logConfigFrom(cfg))
	}, true)

	// Feature-flag snapshots (singleton)
	_ = c.Provide(func(cfg *config.Config) *config.FlagSource { return config.NewFlagSource(cfg.Flags) }, true)

	// Database (singleton)
	_ = c.Provide(func(cfg *config.Config) (*database.DB, error) { return database.NewWithConfig(cfg.DatabaseURL, cfg) }, true)

	// Repository, unit-of-work factory and event log (singletons)
	_ = c.Provide(func(db *database.DB) (domain.Repository, error) { return repository.NewSQLRepository(db) }, true)
	_ = c.Provide(func(db *database.DB) domain.UnitOfWorkFactory { return repository.NewSQLUnitOfWorkFactory(db) }, true)
	_ = c.Provide(func(db *database.DB) (events.Store, error) { return events.NewSQLEventStore(db) }, true)

	// Ontology dictionary (singleton)
	_ = c.Provide(func(cfg *config.Config) (*ontology.Ontology, error) {
		if cfg.OntologyPath != "" {
			return ontology.Load(cfg.OntologyPath)
		}
		return ontology.LoadDefault()
	}, true)

	// Slot extraction behind a swappable holder so config reloads can
	// publish a slotter built from the new flag snapshot (singleton)
	_ = c.Provide(func(onto *ontology.Ontology, cfg *config.Config, lg *logging.Logger) *hotSlotter {
		h := &hotSlotter{}
		h.swap(slotter.New(onto, slotter.ConfigFromFlags(cfg.Flags), lg))
		return h
	}, true)

	// Retrieval engine over the derived view (singleton)
	_ = c.Provide(func(repo domain.Repository, cfg *config.Config, lg *logging.Logger) *search.Engine {
		return search.New(repo, search.Config{Timeout: cfg.SearchTimeout, DefaultLimit: cfg.DefaultRailLength}, lg)
	}, true)

	// Session profiles (singleton)
	_ = c.Provide(func(onto *ontology.Ontology, cfg *config.Config, lg *logging.Logger) *session.Store {
		return session.New(onto, session.Config{TTL: cfg.SessionTTL}, lg)
	}, true)

	// Rails composer (singleton)
	_ = c.Provide(func(hot *hotSlotter, eng *search.Engine, sess *session.Store, cfg *config.Config, lg *logging.Logger) *rails.Composer {
		return rails.New(hot, eng, sess, rails.Config{
			StepTimeout:  cfg.SearchTimeout,
			PerRailLimit: cfg.DefaultRailLength,
			CacheTTL:     cfg.RailsCacheTTL,
		}, lg)
	}, true)

	// Resolve config early for monitoring setup
	var cfg *config.Config
	if err := c.Resolve(&cfg); err != nil {
		log.Fatal("config resolve:", err)
	}
	monitoring.EnableProfiling(cfg.ProfilingEnabled)

	var lg *logging.Logger
	if err := c.Resolve(&lg); err != nil {
		log.Fatal("logger resolve:", err)
	}
	defer lg.Close()
	mainLog := lg.WithComponent("main")
	mainLog.Info("starting venue rails service",
		logging.String("env", cfg.Env), logging.String("port", cfg.Port))
	mainLog.Debug("configuration loaded", logging.Any("config", cfg.Summary()))

	// Resolve runtime dependencies in one pass
	var (
		db       *database.DB
		repo     domain.Repository
		uowf     domain.UnitOfWorkFactory
		eventLog events.Store
		onto     *ontology.Ontology
		flags    *config.FlagSource
		hot      *hotSlotter
		engine   *search.Engine
		sessions *session.Store
		composer *rails.Composer
	)
	if err := c.Invoke(func(
		d *database.DB, r domain.Repository, u domain.UnitOfWorkFactory, es events.Store,
		o *ontology.Ontology, f *config.FlagSource, h *hotSlotter,
		se *search.Engine, ss *session.Store, rc *rails.Composer,
	) {
		db, repo, uowf, eventLog = d, r, u, es
		onto, flags, hot = o, f, h
		engine, sessions, composer = se, ss, rc
	}); err != nil {
		log.Fatal("container resolve:", err)
	}

	// Base tables and both search view generations must exist before the
	// refresher's first rebuild.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureSchema(bootCtx); err != nil {
		bootCancel()
		log.Fatal("schema ensure:", err)
	}
	bootCancel()

	// Ingestion pipeline. A provider misconfiguration disables ingest but
	// never takes down search; the admin endpoints answer 503 instead.
	var pipe *pipeline.Engine
	if cfg.PipelineEnabled {
		p, err := buildPipeline(cfg, repo, uowf, onto, lg)
		if err != nil {
			mainLog.Warn("ingestion pipeline disabled", logging.Error(err))
		} else {
			pipe = p
			pipe.Start()
		}
	}

	// View refresher; revalidates the dictionary each iteration
	ref := refresher.New(repo, db, func() error { return onto.Validate().Err() },
		refresher.Config{Interval: cfg.RefreshInterval}, lg)
	ref.Start()

	sessions.Start()

	// Health checks
	hm := health.NewHealthManager(health.DefaultHealthConfig(), lg)
	hm.RegisterChecker(health.NewDatabaseHealthChecker(db.Conn(), "database"))
	hm.RegisterChecker(health.NewViewFreshnessChecker(db, database.LiveSearchTable, 3*cfg.RefreshInterval, "search_view"))
	hm.RegisterChecker(health.NewHealthCheckFunc("ontology", func(context.Context) health.ComponentHealth {
		return ontologyHealth(onto)
	}))
	if pipe != nil {
		hm.RegisterChecker(health.NewPipelineHealthChecker("pipeline", func() any { return pipe.Stats() }))
	}

	// Start config watcher for hot reload; the watcher swaps the flag
	// source itself, the subscription republishes the slotter
	cw := config.NewWatcher(time.Duration(cfg.ConfigReloadIntervalSeconds)*time.Second, flags)
	cw.Start()
	chgCh := cw.Subscribe()
	go func() {
		for chg := range chgCh {
			if chg.Err != nil {
				mainLog.Warn("config reload rejected", logging.Error(chg.Err))
				continue
			}
			hot.reload(slotter.ConfigFromFlags(chg.New.Flags))
			mainLog.Info("config applied", logging.Any("fields", chg.Fields))
		}
	}()

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		mainLog.Info("shutdown signal received")
		if pipe != nil {
			if err := pipe.Stop(30 * time.Second); err != nil {
				mainLog.Warn("pipeline shutdown", logging.Error(err))
			}
		}
		ref.Stop()
		sessions.Stop()
		cw.Close()
		cancel()
	}()

	guard := auth.NewGuard(cfg.AdminToken, lg)

	var sampler *monitoring.Metrics
	if cfg.MetricsEnabled {
		sampler = monitoring.NewMetrics(512)
	}

	// A nil *Engine must stay a nil interface for the handlers' checks.
	var runner pipeline.Runner
	if pipe != nil {
		runner = pipe
	}

	handler := api.NewRouter(api.Deps{
		Search:    engine,
		Parser:    hot,
		Composer:  composer,
		Sessions:  sessions,
		Store:     repo,
		Pipeline:  runner,
		Refresher: ref,
		Events:    eventLog,
		Onto:      onto,
		DB:        db,
		Health:    hm,
		Flags:     flags,
		Cfg:       cfg,
		Guard:     guard,
		Log:       lg,
		Sampler:   sampler,
	})
	server := &http.Server{Addr: ":" + cfg.Port, Handler: handler}

	var adminServer *http.Server
	if cfg.ProfilingEnabled || cfg.MetricsEnabled {
		adm := http.NewServeMux()
		if cfg.ProfilingEnabled {
			monitoring.RegisterPprof(adm)
		}
		if cfg.MetricsEnabled {
			adm.Handle(cfg.MetricsPath, metricsPkg.Handler())
		}
		if sampler != nil {
			adm.Handle("/debug/stats", monitoring.MetricsHandler(sampler))
		}
		adm.Handle("/health", api.HealthHandler(hm))
		adm.Handle("/health/db", api.DBHealthHandler(db))
		adminServer = &http.Server{Addr: ":" + cfg.AdminPort, Handler: adm}
		go func() {
			mainLog.Info("admin server starting", logging.String("port", cfg.AdminPort))
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				mainLog.Error("admin server", err)
			}
		}()
	}

	go func() {
		mainLog.Info("server starting", logging.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error:", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLog.Warn("server shutdown", logging.Error(err))
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			mainLog.Warn("admin server shutdown", logging.Error(err))
		}
	}
	mainLog.Info("shutdown complete")
}

// hotSlotter hands the live slotter to every parser consumer. Reloads
// swap the pointer; in-flight requests keep the snapshot they started
// with.
type hotSlotter struct {
	p atomic.Pointer[slotter.Slotter]
}

func (h *hotSlotter) swap(s *slotter.Slotter) { h.p.Store(s) }

func (h *hotSlotter) reload(cfg slotter.Config) { h.p.Store(h.p.Load().WithConfig(cfg)) }

func (h *hotSlotter) Parse(ctx context.Context, req slotter.Request) (*slotter.Result, error) {
	return h.p.Load().Parse(ctx, req)
}

// buildPipeline assembles the ingest chain with both provider clients
// paced to their configured request rates.
func buildPipeline(cfg *config.Config, repo domain.Repository, uowf domain.UnitOfWorkFactory, onto *ontology.Ontology, lg *logging.Logger) (*pipeline.Engine, error) {
	sum, err := summarize.New(summarize.Config{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Timeout:     cfg.OpenAITimeout,
		MaxChars:    cfg.SummaryMaxChars,
		Vocabulary:  onto.Tags(),
	}, lg)
	if err != nil {
		return nil, err
	}
	geo, err := geocode.New(geocode.Config{APIKey: cfg.GoogleMapsAPIKey}, lg)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Config{
		Workers:    cfg.WorkerCount,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		JobTimeout: cfg.JobTimeout,
	}, pipeline.Deps{
		Reader:     repo,
		UnitOfWork: uowf,
		Summarizer: pipeline.PaceSummarizer(sum, cfg.SummarizerRPS),
		Enricher:   pipeline.PaceEnricher(geo, cfg.GeocoderRPS),
		Log:        lg,
	}), nil
}

func ontologyHealth(onto *ontology.Ontology) health.ComponentHealth {
	oh := onto.Health()
	res := health.ComponentHealth{
		Name:        "ontology",
		Status:      health.HealthStatusHealthy,
		Message:     "Dictionary loaded",
		LastChecked: time.Now(),
		Metadata: map[string]any{
			"entries":  oh.Entries,
			"surfaces": oh.Surfaces,
			"tags":     oh.Tags,
			"warnings": oh.Warnings,
		},
	}
	switch {
	case !oh.Healthy:
		res.Status = health.HealthStatusUnhealthy
		res.Message = "Dictionary has validation errors"
	case oh.Warnings > 0:
		res.Status = health.HealthStatusDegraded
		res.Message = "Dictionary has validation warnings"
	}
	return res
}

// logConfigFrom maps the flat service config onto the logger's config.
func logConfigFrom(cfg *config.Config) logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = logLevelFrom(cfg.LogLevel)
	if cfg.LogFormat != "" {
		lc.Format = cfg.LogFormat
	}
	lc.EnableFile = cfg.EnableFileLogging
	if cfg.LogFile != "" {
		lc.FilePath = cfg.LogFile
	}
	return lc
}

func logLevelFrom(s string) logging.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logging.LevelTrace
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

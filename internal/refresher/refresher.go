// Package refresher keeps the derived search view fresh: a single background
// loop rebuilds the offline generation, promotes it atomically, marks the
// heartbeat, and revalidates the intent dictionary. One bad iteration never
// stops the loop.
package refresher

import (
	"context"
	"sync"
	"time"

	"venue-rails/internal/constants"
	"venue-rails/internal/domain"
	"venue-rails/pkg/database"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
)

// ViewStore rebuilds and promotes search view generations.
type ViewStore interface {
	RebuildOfflineCtx(ctx context.Context) (*domain.RefreshResult, error)
	PromoteCtx(ctx context.Context, offlineTable string) error
}

// HeartbeatStore records completed refreshes.
type HeartbeatStore interface {
	UpsertHeartbeatCtx(ctx context.Context, hb *database.Heartbeat) error
}

// Config sets the cadence and the failure backoff.
type Config struct {
	Interval          time.Duration
	IterationDeadline time.Duration
	BackoffStep       time.Duration
	BackoffCap        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:          constants.RefreshIntervalDefault,
		IterationDeadline: constants.RefreshIterationDeadline,
		BackoffStep:       constants.RefreshBackoffStep,
		BackoffCap:        constants.RefreshBackoffCap,
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.Interval <= 0 {
		cfg.Interval = constants.RefreshIntervalDefault
	}
	if cfg.IterationDeadline <= 0 {
		cfg.IterationDeadline = constants.RefreshIterationDeadline
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = constants.RefreshBackoffStep
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = constants.RefreshBackoffCap
	}
	return cfg
}

// Status is a snapshot of the refresher for health and debug surfaces.
type Status struct {
	LastAttempt    time.Time `json:"last_attempt"`
	LastSuccess    time.Time `json:"last_success"`
	LastRows       int64     `json:"last_rows"`
	LastDurationMS int64     `json:"last_duration_ms"`
	Failures       int       `json:"consecutive_failures"`
	OntologyOK     bool      `json:"ontology_ok"`
	LastError      string    `json:"last_error,omitempty"`
}

// Refresher owns the background refresh loop.
type Refresher struct {
	views      ViewStore
	beats      HeartbeatStore
	revalidate func() error
	cfg        Config
	log        *logging.ComponentLogger

	runMu sync.Mutex // one refresh at a time; forced runs share the path
	mu    sync.Mutex // guards st
	st    Status

	stop      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a refresher. revalidate re-runs dictionary validation each
// iteration; nil skips the check (embedded dictionaries cannot regress).
func New(views ViewStore, beats HeartbeatStore, revalidate func() error, cfg Config, log *logging.Logger) *Refresher {
	return &Refresher{
		views:      views,
		beats:      beats,
		revalidate: revalidate,
		cfg:        normalizeConfig(cfg),
		log:        log.WithComponent("refresher"),
		st:         Status{OntologyOK: true},
		stop:       make(chan struct{}),
	}
}

// Start launches the refresh loop. Idempotent.
func (r *Refresher) Start() {
	r.startOnce.Do(func() {
		r.log.Info("starting view refresher",
			logging.Duration("interval", r.cfg.Interval))
		go r.loop()
	})
}

// Stop halts the loop. A refresh already in flight finishes on its own
// iteration deadline.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

func (r *Refresher) loop() {
	// run right away so a fresh boot serves a fresh view
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-timer.C:
			err := r.RunOnce()
			delay := r.cfg.Interval
			if err != nil {
				extra := time.Duration(r.Status().Failures) * r.cfg.BackoffStep
				if extra > r.cfg.BackoffCap {
					extra = r.cfg.BackoffCap
				}
				delay += extra
				r.log.Warn("view refresh failed, backing off",
					logging.String("error", err.Error()),
					logging.Duration("next_attempt_in", delay))
			}
			timer.Reset(delay)
		}
	}
}

// RunOnce executes one refresh iteration: rebuild the offline generation,
// swap it live, mark the heartbeat, revalidate the dictionary. The admin
// force endpoint calls it directly, out of cadence.
func (r *Refresher) RunOnce() error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	// The view outlives any request, so iterations carry their own
	// deadline instead of inheriting a caller's.
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.IterationDeadline)
	defer cancel()

	start := time.Now()
	r.mu.Lock()
	r.st.LastAttempt = start
	r.mu.Unlock()

	res, err := r.views.RebuildOfflineCtx(ctx)
	if err != nil {
		return r.fail("rebuild offline generation", err)
	}
	if err := r.views.PromoteCtx(ctx, res.Table); err != nil {
		return r.fail("promote offline generation", err)
	}

	hb := &database.Heartbeat{
		ViewName:    database.LiveSearchTable,
		RefreshedAt: time.Now().UTC(),
		RowCount:    res.Rows,
		DurationMS:  res.Duration,
	}
	if err := r.beats.UpsertHeartbeatCtx(ctx, hb); err != nil {
		// The swap already happened and readers are on fresh data; a
		// stale heartbeat surfaces through health until the next run.
		return r.fail("upsert heartbeat", err)
	}

	r.mu.Lock()
	r.st.LastSuccess = time.Now()
	r.st.LastRows = res.Rows
	r.st.LastDurationMS = res.Duration
	r.st.LastError = ""
	r.st.Failures = 0
	r.mu.Unlock()

	metrics.RefreshRuns.WithLabelValues("ok").Inc()
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	metrics.ViewRows.Set(float64(res.Rows))
	metrics.ViewLastRefresh.Set(float64(time.Now().Unix()))

	r.revalidateOntology()

	r.log.Info("search view refreshed",
		logging.Int64("rows", res.Rows),
		logging.Int64("duration_ms", res.Duration))
	return nil
}

func (r *Refresher) fail(what string, err error) error {
	r.mu.Lock()
	r.st.Failures++
	r.st.LastError = err.Error()
	r.mu.Unlock()

	metrics.RefreshRuns.WithLabelValues("error").Inc()
	r.log.Error("view refresh iteration failed: "+what, err)
	return err
}

// revalidateOntology re-runs dictionary validation. A regression flips the
// health flag and logs; the loop keeps refreshing regardless.
func (r *Refresher) revalidateOntology() {
	if r.revalidate == nil {
		return
	}
	err := r.revalidate()

	r.mu.Lock()
	r.st.OntologyOK = err == nil
	r.mu.Unlock()

	if err != nil {
		r.log.Error("ontology revalidation regressed", err)
	}
}

// Healthy reports whether the last dictionary revalidation passed.
func (r *Refresher) Healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.OntologyOK
}

// Status returns a snapshot of the refresher state.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st
}

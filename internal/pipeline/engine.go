// Package pipeline drives venue records through the ingest state
// machine: summarize, enrich, editorial review, publish. A worker pool
// drains a job queue; every step commits its patch and audit events in
// one transaction, guarded by the record's version token.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"venue-rails/internal/constants"
	"venue-rails/internal/domain"
	"venue-rails/internal/editor"
	"venue-rails/internal/models"
	"venue-rails/internal/signals"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/events"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
)

const (
	// maxHops bounds how many steps one job may take; the longest legal
	// chain is summarize, enrich, review.
	maxHops = 6
	// maxStaleRetries bounds refetch-and-rerun cycles after a version
	// conflict inside one job.
	maxStaleRetries = 2
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	Workers    int
	QueueSize  int
	MaxRetries int           // transient retries per step
	RetryDelay time.Duration // backoff unit, scaled quadratically
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  256,
		MaxRetries: 2,
		RetryDelay: constants.PipelineRetryDelayDefault,
		JobTimeout: constants.PipelineJobTimeoutDefault,
	}
}

// Deps are the collaborators the engine drives. Editor and Calc may be
// nil; defaults are constructed.
type Deps struct {
	Reader     domain.VenueReader
	UnitOfWork domain.UnitOfWorkFactory
	Summarizer Summarizer
	Enricher   Enricher
	Editor     *editor.Editor
	Calc       *signals.Calculator
	Log        *logging.Logger
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Enqueued   int64 `json:"enqueued"`
	Processed  int64 `json:"processed"`
	Published  int64 `json:"published"`
	InReview   int64 `json:"in_review"`
	Revisions  int64 `json:"revisions"`
	Failed     int64 `json:"failed"`
	Errors     int64 `json:"errors"`
	QueueDepth int64 `json:"queue_depth"`
}

type job struct {
	venueID  int64
	enqueued time.Time
}

type jobResult struct {
	venueID  int64
	status   models.Status
	venue    *models.Venue
	hops     int
	err      error
	duration time.Duration
}

// Engine is the worker pool. One job advances one venue through as many
// steps as its status allows.
type Engine struct {
	cfg Config

	reader domain.VenueReader
	uowf   domain.UnitOfWorkFactory

	summarize *summarizeStep
	enrich    *enrichStep
	editorial *editorStep

	log *logging.ComponentLogger

	jobs    chan job
	results chan jobResult

	ctx    context.Context
	cancel context.CancelFunc

	qmu    sync.Mutex
	closed bool
	queued int64 // atomic

	wg        sync.WaitGroup
	collector sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	statsMu sync.RWMutex
	stats   Stats
}

func New(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}

	calc := deps.Calc
	if calc == nil {
		calc = signals.NewDefault()
	}
	ed := deps.Editor
	if ed == nil {
		ed = editor.New(editor.DefaultConfig())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       cfg,
		reader:    deps.Reader,
		uowf:      deps.UnitOfWork,
		summarize: &summarizeStep{cap: deps.Summarizer, calc: calc},
		enrich:    &enrichStep{cap: deps.Enricher},
		editorial: &editorStep{ed: ed, calc: calc, now: time.Now},
		log:       deps.Log.WithComponent("pipeline"),
		jobs:      make(chan job, cfg.QueueSize),
		results:   make(chan jobResult, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker pool. Idempotent.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.log.Info("starting pipeline engine",
			logging.Int("workers", e.cfg.Workers),
			logging.Int("queue_size", e.cfg.QueueSize))

		for i := 0; i < e.cfg.Workers; i++ {
			e.wg.Add(1)
			go e.worker(i)
		}
		e.collector.Add(1)
		go e.collect()
	})
}

// Stop drains the queue and shuts the pool down. Returns an error when
// the workers do not finish inside the timeout; running jobs are then
// cancelled and abandoned.
func (e *Engine) Stop(timeout time.Duration) error {
	var err error
	e.stopOnce.Do(func() {
		e.log.Info("stopping pipeline engine",
			logging.Int64("queue_depth", atomic.LoadInt64(&e.queued)))

		e.qmu.Lock()
		e.closed = true
		close(e.jobs)
		e.qmu.Unlock()

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			err = errs.NewTimeout("pipeline.stop", "pipeline", context.DeadlineExceeded)
			e.cancel()
			<-done
		}

		close(e.results)
		e.collector.Wait()
		e.cancel()

		e.log.Info("pipeline engine stopped")
	})
	return err
}

// Enqueue queues one venue without blocking. A full queue is the
// caller's backpressure signal.
func (e *Engine) Enqueue(venueID int64) error {
	const op = "pipeline.enqueue"

	e.qmu.Lock()
	defer e.qmu.Unlock()
	if e.closed {
		return errs.NewBiz(op, "pipeline engine is shut down", nil)
	}
	select {
	case e.jobs <- job{venueID: venueID, enqueued: time.Now()}:
		atomic.AddInt64(&e.queued, 1)
		e.statsMu.Lock()
		e.stats.Enqueued++
		e.statsMu.Unlock()
		return nil
	default:
		return errs.NewBiz(op, "job queue is full", nil)
	}
}

// EnqueueBatch queues up to limit venues currently in the given status,
// oldest first. Returns how many made it onto the queue.
func (e *Engine) EnqueueBatch(ctx context.Context, status models.Status, limit int) (int, error) {
	batch, err := e.reader.BatchByStatusCtx(ctx, status, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range batch {
		if err := e.Enqueue(batch[i].ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// RunVenue advances one venue synchronously and returns the settled
// record. The admin surface uses this for targeted runs; the engine
// does not need to be started.
func (e *Engine) RunVenue(ctx context.Context, venueID int64) (*models.Venue, error) {
	res := e.processJob(ctx, venueID)
	e.record(res)
	if res.err != nil {
		return res.venue, res.err
	}
	return res.venue, nil
}

// Stats returns a copy of the counters.
func (e *Engine) Stats() Stats {
	e.statsMu.RLock()
	s := e.stats
	e.statsMu.RUnlock()
	s.QueueDepth = atomic.LoadInt64(&e.queued)
	return s
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()

	log := e.log
	log.Debug("worker started", logging.Int("worker", id))
	defer log.Debug("worker stopped", logging.Int("worker", id))

	for {
		select {
		case j, ok := <-e.jobs:
			if !ok {
				return
			}
			atomic.AddInt64(&e.queued, -1)

			res := e.processJob(e.ctx, j.venueID)
			select {
			case e.results <- res:
			case <-e.ctx.Done():
				return
			}

		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) collect() {
	defer e.collector.Done()
	for res := range e.results {
		e.record(res)
	}
}

func (e *Engine) record(res jobResult) {
	e.statsMu.Lock()
	e.stats.Processed++
	switch {
	case res.err != nil:
		e.stats.Errors++
	case res.status == models.StatusPublished:
		e.stats.Published++
	case res.status == models.StatusReviewPending:
		e.stats.InReview++
	case res.status == models.StatusNeedsRevision:
		e.stats.Revisions++
	case res.status == models.StatusFailed:
		e.stats.Failed++
	}
	e.statsMu.Unlock()

	if res.err != nil {
		e.log.Error("job failed", res.err,
			logging.Int64("venue_id", res.venueID),
			logging.Duration("took", res.duration))
		return
	}
	e.log.Info("job done",
		logging.Int64("venue_id", res.venueID),
		logging.String("status", string(res.status)),
		logging.Int("hops", res.hops),
		logging.Duration("took", res.duration))
}

// processJob fetches the record and advances it until it settles, the
// hop bound is hit, or an infrastructure error aborts the job.
func (e *Engine) processJob(ctx context.Context, venueID int64) jobResult {
	start := time.Now()
	res := jobResult{venueID: venueID}

	jobCtx, cancel := context.WithTimeout(ctx, e.cfg.JobTimeout)
	defer cancel()

	v, err := e.reader.GetVenueCtx(jobCtx, venueID)
	if err != nil {
		res.err = err
		res.duration = time.Since(start)
		return res
	}

	staleRetries := 0
	for hop := 0; hop < maxHops; hop++ {
		st := e.route(v, hop == 0)
		if st == nil {
			break
		}

		next, err := e.advance(jobCtx, st, v)
		if err != nil {
			if errs.HasCode(err, errs.CodeStaleWrite) && staleRetries < maxStaleRetries {
				staleRetries++
				fresh, ferr := e.reader.GetVenueCtx(jobCtx, venueID)
				if ferr != nil {
					res.err = ferr
					break
				}
				e.log.Warn("version conflict, rerunning step on fresh record",
					logging.Int64("venue_id", venueID),
					logging.Int("retry", staleRetries))
				v = fresh
				hop-- // replay this hop
				continue
			}
			res.err = err
			break
		}

		v = next
		res.hops++
	}

	res.status = v.Status
	res.venue = v
	res.duration = time.Since(start)
	return res
}

// advance runs one step to completion: input checks, the step itself
// with backoff on transient errors, then one transaction persisting the
// patch and its events. Semantic failures settle the record rather than
// erroring the job.
func (e *Engine) advance(ctx context.Context, st step, v *models.Venue) (*models.Venue, error) {
	agent := st.Agent()
	timer := time.Now()
	defer func() {
		metrics.PipelineStepDuration.WithLabelValues(agent).Observe(time.Since(timer).Seconds())
	}()

	if hold, reason := precheck(agent, v); hold {
		return e.park(ctx, agent, *v, reason)
	}

	work := *v
	var (
		next models.Venue
		evs  []events.Event
		err  error
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt*attempt) * e.cfg.RetryDelay
			e.log.Warn("retrying step",
				logging.Int64("venue_id", v.ID),
				logging.String("agent", agent),
				logging.Int("attempt", attempt+1),
				logging.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return v, errs.NewTimeout("pipeline.advance", "pipeline", ctx.Err())
			}
		}

		next, evs, err = st.Run(ctx, work)
		if err == nil {
			break
		}
		work = next // keep attempt counters from the failed try
		if !errs.IsRetryable(err) || attempt >= e.cfg.MaxRetries {
			return e.settle(ctx, agent, work, err)
		}
	}

	if perr := e.persist(ctx, &next, evs); perr != nil {
		return v, perr
	}
	metrics.PipelineJobs.WithLabelValues(agent, outcomeFor(next.Status)).Inc()
	return &next, nil
}

// park sends a record back for revision before any provider call was
// spent on it. Attempt counters are left alone: bad input is not the
// agent's failure.
func (e *Engine) park(ctx context.Context, agent string, v models.Venue, reason HoldReason) (*models.Venue, error) {
	const op = "pipeline.park"

	from := v.Status
	if !v.Status.CanTransition(models.StatusNeedsRevision) {
		return &v, errs.NewBizCode(op, errs.CodeInvalidStatus,
			"cannot park a record in status "+string(v.Status))
	}
	v.Status = models.StatusNeedsRevision
	v.LastError = reason.Note

	tr := events.Transition(v.ID, agent, from, v.Status)
	tr.Code = reason.Code
	tr.Note = reason.Note

	if err := e.persist(ctx, &v, []events.Event{tr, events.StepError(v.ID, agent, reason.Code, reason.Note)}); err != nil {
		return &v, err
	}
	metrics.PipelineJobs.WithLabelValues(agent, "held").Inc()
	e.log.Warn("record held before agent ran",
		logging.Int64("venue_id", v.ID),
		logging.String("agent", agent),
		logging.String("reason", reason.String()))
	return &v, nil
}

// settle records a step failure. The record goes back for revision
// until the agent's attempt cap, after which it fails hard. Fatal codes
// fail immediately.
func (e *Engine) settle(ctx context.Context, agent string, v models.Venue, cause error) (*models.Venue, error) {
	from := v.Status
	code := errs.CodeOf(cause)

	to := models.StatusNeedsRevision
	outcome := "revision"
	if attemptsFor(agent, &v) >= attemptCap(agent) || fatalCode(code) {
		to = models.StatusFailed
		outcome = "failed"
	}
	if !v.Status.CanTransition(to) {
		to = v.Status // keep status, still record the error
	}

	evs := make([]events.Event, 0, 2)
	if to != from {
		tr := events.Transition(v.ID, agent, from, to)
		tr.Code = code
		evs = append(evs, tr)
	}
	evs = append(evs, events.StepError(v.ID, agent, code, cause.Error()))

	v.Status = to
	v.LastError = cause.Error()

	if err := e.persist(ctx, &v, evs); err != nil {
		return &v, err
	}
	metrics.PipelineJobs.WithLabelValues(agent, outcome).Inc()
	e.log.Warn("step failed, record settled",
		logging.Int64("venue_id", v.ID),
		logging.String("agent", agent),
		logging.String("status", string(to)),
		logging.String("code", string(code)),
		logging.Int("attempts", attemptsFor(agent, &v)))
	return &v, nil
}

// persist writes the patch and its events in one transaction.
func (e *Engine) persist(ctx context.Context, v *models.Venue, evs []events.Event) error {
	uow, err := e.uowf.Begin(ctx)
	if err != nil {
		return err
	}
	if err := uow.UpdateVenueCtx(ctx, v); err != nil {
		_ = uow.Rollback()
		return err
	}
	if len(evs) > 0 {
		if err := uow.AppendEventsCtx(ctx, evs...); err != nil {
			_ = uow.Rollback()
			return err
		}
	}
	return uow.Commit()
}

func attemptsFor(agent string, v *models.Venue) int {
	switch agent {
	case events.AgentSummarizer:
		return v.Attempts.Summarizer
	case events.AgentEnricher:
		return v.Attempts.Enricher
	default:
		return v.Attempts.Editor
	}
}

func attemptCap(agent string) int {
	switch agent {
	case events.AgentSummarizer:
		return constants.SummarizerMaxAttempts
	case events.AgentEnricher:
		return constants.EnricherMaxAttempts
	default:
		return constants.EditorMaxAttempts
	}
}

func fatalCode(c errs.Code) bool {
	return c == errs.CodeFatalInvariant || c == errs.CodeFatalConfig
}

func outcomeFor(s models.Status) string {
	switch s {
	case models.StatusPublished:
		return "published"
	case models.StatusReviewPending:
		return "review"
	case models.StatusNeedsRevision:
		return "revision"
	case models.StatusFailed:
		return "failed"
	default:
		return "advanced"
	}
}

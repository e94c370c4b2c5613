// Package health aggregates component probes into one system verdict.
// Components register checkers; the manager fans the checks out, caches the
// results and folds them into healthy / degraded / unhealthy. Probe handlers
// on the HTTP surfaces read from here.
package health

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"venue-rails/pkg/database"
	"venue-rails/pkg/logging"
)

// HealthStatus grades a component or the whole system.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// ComponentHealth is one probe result.
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      HealthStatus   `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// SystemHealth is the aggregated verdict served on the probe endpoints.
type SystemHealth struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	Summary    HealthSummary              `json:"summary"`
}

// HealthSummary counts components per status.
type HealthSummary struct {
	TotalComponents int `json:"total_components"`
	HealthyCount    int `json:"healthy_count"`
	DegradedCount   int `json:"degraded_count"`
	UnhealthyCount  int `json:"unhealthy_count"`
	UnknownCount    int `json:"unknown_count"`
}

// verdict folds the counts into a system status: one unhealthy component
// makes the system unhealthy, one degraded makes it degraded, and anything
// unprobed keeps it unknown.
func (s HealthSummary) verdict() HealthStatus {
	switch {
	case s.TotalComponents == 0:
		return HealthStatusUnknown
	case s.UnhealthyCount > 0:
		return HealthStatusUnhealthy
	case s.DegradedCount > 0:
		return HealthStatusDegraded
	case s.HealthyCount == s.TotalComponents:
		return HealthStatusHealthy
	default:
		return HealthStatusUnknown
	}
}

func summarize(components map[string]ComponentHealth) HealthSummary {
	sum := HealthSummary{TotalComponents: len(components)}
	for _, c := range components {
		switch c.Status {
		case HealthStatusHealthy:
			sum.HealthyCount++
		case HealthStatusDegraded:
			sum.DegradedCount++
		case HealthStatusUnhealthy:
			sum.UnhealthyCount++
		default:
			sum.UnknownCount++
		}
	}
	return sum
}

// HealthChecker is one registered probe.
type HealthChecker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

// HealthCheckFunc adapts a bare function into a HealthChecker.
type HealthCheckFunc struct {
	name string
	fn   func(ctx context.Context) ComponentHealth
}

func (f HealthCheckFunc) Check(ctx context.Context) ComponentHealth { return f.fn(ctx) }
func (f HealthCheckFunc) Name() string                              { return f.name }

func NewHealthCheckFunc(name string, fn func(ctx context.Context) ComponentHealth) HealthChecker {
	return HealthCheckFunc{name: name, fn: fn}
}

// HealthConfig tunes the manager: per-probe timeout and the version string
// echoed in every report.
type HealthConfig struct {
	Timeout time.Duration `json:"timeout"`
	Version string        `json:"version"`
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{Timeout: 30 * time.Second, Version: "1.0.0"}
}

// HealthManager runs the registered probes and keeps their latest results.
type HealthManager struct {
	mu        sync.RWMutex
	checkers  map[string]HealthChecker
	results   map[string]ComponentHealth
	startTime time.Time
	version   string
	timeout   time.Duration
	log       *logging.ComponentLogger
}

func NewHealthManager(cfg HealthConfig, logger *logging.Logger) *HealthManager {
	return &HealthManager{
		checkers:  make(map[string]HealthChecker),
		results:   make(map[string]ComponentHealth),
		startTime: time.Now(),
		version:   cfg.Version,
		timeout:   cfg.Timeout,
		log:       logger.WithComponent("health"),
	}
}

// RegisterChecker adds a probe. Until its first run the component reports
// unknown.
func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	name := checker.Name()

	hm.mu.Lock()
	hm.checkers[name] = checker
	hm.results[name] = ComponentHealth{Name: name, Status: HealthStatusUnknown}
	hm.mu.Unlock()

	hm.log.Info("health checker registered", logging.String("checker", name))
}

// CheckAll runs every probe concurrently, each under the manager timeout,
// and refreshes the cached results.
func (hm *HealthManager) CheckAll(ctx context.Context) SystemHealth {
	start := time.Now()

	hm.mu.RLock()
	checkers := make([]HealthChecker, 0, len(hm.checkers))
	for _, c := range hm.checkers {
		checkers = append(checkers, c)
	}
	hm.mu.RUnlock()

	var (
		wg         sync.WaitGroup
		resMu      sync.Mutex
		components = make(map[string]ComponentHealth, len(checkers))
	)
	for _, c := range checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, hm.timeout)
			defer cancel()
			res := c.Check(probeCtx)
			resMu.Lock()
			components[res.Name] = res
			resMu.Unlock()
		}(c)
	}
	wg.Wait()

	hm.mu.Lock()
	for name, res := range components {
		hm.results[name] = res
	}
	hm.mu.Unlock()

	sys := hm.report(components)
	hm.log.Debug("health sweep finished",
		logging.String("status", string(sys.Status)),
		logging.Duration("duration", time.Since(start)),
		logging.Int("components", len(components)))
	return sys
}

// GetCachedHealth returns the last known results without re-running probes.
func (hm *HealthManager) GetCachedHealth() SystemHealth {
	hm.mu.RLock()
	components := make(map[string]ComponentHealth, len(hm.results))
	for name, res := range hm.results {
		components[name] = res
	}
	hm.mu.RUnlock()

	return hm.report(components)
}

func (hm *HealthManager) report(components map[string]ComponentHealth) SystemHealth {
	sum := summarize(components)
	return SystemHealth{
		Status:     sum.verdict(),
		Timestamp:  time.Now(),
		Version:    hm.version,
		Uptime:     time.Since(hm.startTime),
		Components: components,
		Summary:    sum,
	}
}

// DatabaseHealthChecker verifies MySQL connectivity.
type DatabaseHealthChecker struct {
	db   *sql.DB
	name string
}

func NewDatabaseHealthChecker(db *sql.DB, name string) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db, name: name}
}

func (c *DatabaseHealthChecker) Name() string { return c.name }

func (c *DatabaseHealthChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	res := ComponentHealth{Name: c.name, LastChecked: start, Metadata: make(map[string]any)}

	if err := c.db.PingContext(ctx); err != nil {
		res.Status = HealthStatusUnhealthy
		res.Error = err.Error()
		res.Message = "database unreachable"
		res.Duration = time.Since(start)
		return res
	}

	// A ping can succeed on a wedged server; run a real round trip too.
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		res.Status = HealthStatusDegraded
		res.Error = err.Error()
		res.Message = "database query failed"
	} else {
		res.Status = HealthStatusHealthy
		res.Message = "database reachable"
	}

	stats := c.db.Stats()
	res.Metadata["open_connections"] = stats.OpenConnections
	res.Metadata["in_use"] = stats.InUse
	res.Metadata["idle"] = stats.Idle
	res.Metadata["wait_count"] = stats.WaitCount
	res.Metadata["wait_duration"] = stats.WaitDuration.String()

	res.Duration = time.Since(start)
	return res
}

// HeartbeatSource reads the refresh marker of a search view.
type HeartbeatSource interface {
	GetHeartbeatCtx(ctx context.Context, viewName string) (*database.Heartbeat, error)
}

// ViewFreshnessChecker judges whether the derived search view is being
// refreshed on cadence. A view that has never refreshed or whose heartbeat
// is older than staleAfter degrades the system; search still works, it just
// serves old rows.
type ViewFreshnessChecker struct {
	beats      HeartbeatSource
	viewName   string
	staleAfter time.Duration
	name       string
}

// NewViewFreshnessChecker creates a view freshness checker. staleAfter
// should comfortably exceed the refresh interval so one slow iteration does
// not flap the probe.
func NewViewFreshnessChecker(beats HeartbeatSource, viewName string, staleAfter time.Duration, name string) *ViewFreshnessChecker {
	return &ViewFreshnessChecker{beats: beats, viewName: viewName, staleAfter: staleAfter, name: name}
}

func (c *ViewFreshnessChecker) Name() string { return c.name }

func (c *ViewFreshnessChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	res := ComponentHealth{Name: c.name, LastChecked: start, Metadata: make(map[string]any)}

	hb, err := c.beats.GetHeartbeatCtx(ctx, c.viewName)
	if err != nil {
		res.Status = HealthStatusUnhealthy
		res.Error = err.Error()
		res.Message = "heartbeat lookup failed"
		res.Duration = time.Since(start)
		return res
	}
	if hb == nil {
		res.Status = HealthStatusDegraded
		res.Message = "search view has never been refreshed"
		res.Duration = time.Since(start)
		return res
	}

	age := time.Since(hb.RefreshedAt)
	res.Metadata["view"] = hb.ViewName
	res.Metadata["refreshed_at"] = hb.RefreshedAt
	res.Metadata["age"] = age.String()
	res.Metadata["rows"] = hb.RowCount
	res.Metadata["refresh_duration_ms"] = hb.DurationMS

	if age > c.staleAfter {
		res.Status = HealthStatusDegraded
		res.Message = "search view is stale"
	} else {
		res.Status = HealthStatusHealthy
		res.Message = "search view is fresh"
	}

	res.Duration = time.Since(start)
	return res
}

// PipelineHealthChecker reports ingestion engine counters through a stats
// getter, keeping this package free of a dependency on the engine type.
type PipelineHealthChecker struct {
	getStats func() any
	name     string
}

func NewPipelineHealthChecker(name string, getStats func() any) *PipelineHealthChecker {
	return &PipelineHealthChecker{getStats: getStats, name: name}
}

func (c *PipelineHealthChecker) Name() string { return c.name }

func (c *PipelineHealthChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	res := ComponentHealth{Name: c.name, LastChecked: start, Metadata: make(map[string]any)}

	if c.getStats != nil {
		res.Metadata["stats"] = c.getStats()
		res.Status = HealthStatusHealthy
		res.Message = "pipeline is running"
	} else {
		res.Status = HealthStatusUnknown
		res.Message = "pipeline statistics unavailable"
	}

	res.Duration = time.Since(start)
	return res
}

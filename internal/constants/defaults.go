package constants

import "time"

// Centralized default values for timeouts, intervals, and related settings.
// These provide sane defaults; environment/config may override where supported.

const (
	// Database
	DBReadTimeoutDefault  = 8 * time.Second
	DBWriteTimeoutDefault = 6 * time.Second

	// Google Maps (enricher capability)
	GoogleMapsOperationTimeout  = 10 * time.Second
	GoogleMapsOpenFor           = 30 * time.Second
	GoogleMapsRequestTimeout    = 12 * time.Second
	GoogleMapsSlowCallThreshold = 1500 * time.Millisecond

	// Summarizer / OpenAI
	SummarizerDefaultAPITimeout = 60 * time.Second
	SummarizerOperationTimeout  = 50 * time.Second
	SummarizerOpenFor           = 45 * time.Second
	SummarizerSlowCallThreshold = 20 * time.Second

	// Health
	HealthTimeoutDefault = 30 * time.Second

	// Pipeline engine
	PipelineRetryDelayDefault = 5 * time.Second
	PipelineJobTimeoutDefault = 90 * time.Second

	// Config watcher
	ConfigWatcherIntervalDefault = 2 * time.Second

	// App shutdown
	GracefulShutdownTimeoutDefault = 10 * time.Second

	// Events store SQL operations
	EventsSQLTimeoutDefault = 5 * time.Second

	// Monitoring
	MonitoringIntervalDefault = 5 * time.Second

	// Derived search view refresh
	RefreshIntervalDefault   = 300 * time.Second
	RefreshIterationDeadline = 120 * time.Second
	RefreshBackoffStep       = 30 * time.Second
	RefreshBackoffCap        = 5 * time.Minute

	// Session profiles
	SessionTTLDefault      = 24 * time.Hour
	SessionCleanupInterval = 30 * time.Minute

	// Parse cache
	ParseCacheTTLDefault = 15 * time.Minute
	ParseCacheMaxEntries = 1000

	// Rail composition
	RailStepTimeoutDefault = 2 * time.Second
	RailConcurrencyDefault = 4
	RailsCacheTTLDefault   = 60 * time.Second
	RailsCacheMaxEntries   = 500
)

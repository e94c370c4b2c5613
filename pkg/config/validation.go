package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	errs "venue-rails/pkg/errors"
)

// fieldError is one rejected configuration value.
type fieldError struct {
	field string
	value string
	msg   string
}

func (e fieldError) String() string {
	return fmt.Sprintf("%s=%q: %s", e.field, e.value, e.msg)
}

type issues []fieldError

func (is *issues) add(field, value, msg string) {
	*is = append(*is, fieldError{field: field, value: value, msg: msg})
}

func (is issues) report() string {
	lines := make([]string, len(is))
	for i, e := range is {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Validate checks the loaded configuration. A failure here is fatal: the
// process must not come up on a config it cannot honor. All problems are
// collected so the operator sees the full list at once.
func (c *Config) Validate() error {
	var is issues

	c.checkRequired(&is)
	c.checkFormats(&is)
	c.checkRanges(&is)
	c.checkFlags(&is)
	c.checkPorts(&is)

	if len(is) > 0 {
		return errs.NewValidationCode("config.Validate", errs.CodeFatalConfig,
			fmt.Sprintf("configuration validation failed:\n%s", is.report()))
	}
	return nil
}

func (c *Config) checkRequired(is *issues) {
	if c.DatabaseURL == "" {
		is.add("DATABASE_URL", "", "database URL is required")
	}
	if c.Port == "" {
		is.add("PORT", "", "port is required")
	}

	// Capability keys only matter when the ingestion pipeline runs.
	if c.PipelineEnabled {
		if c.OpenAIAPIKey == "" {
			is.add("OPENAI_API_KEY", "", "OpenAI API key is required while PIPELINE_ENABLED=true")
		}
		if c.GoogleMapsAPIKey == "" {
			is.add("GOOGLE_MAPS_API_KEY", "", "Google Maps API key is required while PIPELINE_ENABLED=true")
		}
	}
}

var logLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

func (c *Config) checkFormats(is *issues) {
	if c.DatabaseURL != "" && (!strings.Contains(c.DatabaseURL, "@") || !strings.Contains(c.DatabaseURL, "/")) {
		is.add("DATABASE_URL", "(redacted)", "expected a DSN of the form user:pass@tcp(host:port)/dbname")
	}

	checkPort(is, "PORT", c.Port)
	checkPort(is, "ADMIN_PORT", c.AdminPort)

	if c.LogLevel != "" && !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		is.add("LOG_LEVEL", c.LogLevel, "must be one of: "+strings.Join(logLevels, ", "))
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "text" {
		is.add("LOG_FORMAT", c.LogFormat, "must be 'json' or 'text'")
	}
}

func checkPort(is *issues, field, value string) {
	if value == "" {
		return
	}
	if n, err := strconv.Atoi(value); err != nil || n < 1 || n > 65535 {
		is.add(field, value, "must be a port number between 1 and 65535")
	}
}

func (c *Config) checkRanges(is *issues) {
	intRanges := []struct {
		field  string
		value  int
		lo, hi int
	}{
		{"WORKER_COUNT", c.WorkerCount, 0, 100},
		{"MAX_RETRIES", c.MaxRetries, 0, 10},
		{"DB_MAX_OPEN_CONNS", c.DBMaxOpenConns, 1, 1000},
		{"DB_MAX_IDLE_CONNS", c.DBMaxIdleConns, 0, c.DBMaxOpenConns},
		{"DB_CONN_MAX_LIFETIME_MINUTES", c.DBConnMaxLifetime, 1, 60},
		{"DB_CONN_MAX_IDLE_TIME_MINUTES", c.DBConnMaxIdleTime, 1, 30},
		{"RAIL_LENGTH", c.DefaultRailLength, 1, 50},
		{"SUMMARY_MAX_CHARS", c.SummaryMaxChars, 40, 2000},
	}
	for _, r := range intRanges {
		if r.value < r.lo || r.value > r.hi {
			is.add(r.field, strconv.Itoa(r.value), fmt.Sprintf("must be between %d and %d", r.lo, r.hi))
		}
	}

	if c.DefaultRadiusM <= 0 || c.DefaultRadiusM > 50000 {
		is.add("DEFAULT_RADIUS_M", fmt.Sprintf("%.0f", c.DefaultRadiusM), "must be between 1 and 50000 meters")
	}
	if c.RefreshInterval <= 0 {
		is.add("REFRESH_INTERVAL_SEC", c.RefreshInterval.String(), "must be positive")
	}
}

func (c *Config) checkFlags(is *issues) {
	f := c.Flags

	if f.MaxSlots < 1 || f.MaxSlots > 10 {
		is.add("SLOTTER_MAX_SLOTS", strconv.Itoa(f.MaxSlots), "must be between 1 and 10")
	}
	if f.MinConfidence < 0 || f.MinConfidence > 1 {
		is.add("SLOTTER_MIN_CONFIDENCE", fmt.Sprintf("%.2f", f.MinConfidence), "must be within [0,1]")
	}
	if f.ABRatio < 0 || f.ABRatio > 1 {
		is.add("SLOTTER_AB_RATIO", fmt.Sprintf("%.2f", f.ABRatio), "must be within [0,1]")
	}
	if f.CacheTTL <= 0 {
		is.add("SLOTTER_CACHE_TTL", f.CacheTTL.String(), "must be positive")
	}
}

// checkPorts rejects two serving surfaces bound to the same port.
func (c *Config) checkPorts(is *issues) {
	if c.Port != "" && c.Port != "0" && c.Port == c.AdminPort {
		is.add("ADMIN_PORT", c.AdminPort, "conflicts with PORT")
	}
}

// Summary reports the operational, non-secret configuration values. It backs
// the boot log line and the /health/feature-flags payload, so secrets and
// DSNs must never appear here.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"env":                 c.Env,
		"port":                c.Port,
		"admin_port":          c.AdminPort,
		"pipeline_enabled":    c.PipelineEnabled,
		"worker_count":        c.WorkerCount,
		"default_radius_m":    c.DefaultRadiusM,
		"default_rail_length": c.DefaultRailLength,
		"refresh_interval":    c.RefreshInterval.String(),
		"rails_cache_ttl":     c.RailsCacheTTL.String(),
		"session_ttl":         c.SessionTTL.String(),
		"log_level":           c.LogLevel,
		"log_format":          c.LogFormat,
	}
}

// FlagSummary reports the live flag snapshot for the feature-flags payload.
func FlagSummary(f Flags) map[string]any {
	return map[string]any{
		"wide":           f.Wide,
		"shadow":         f.Shadow,
		"ab_test":        f.ABTest,
		"debug":          f.Debug,
		"cache_ttl":      f.CacheTTL.String(),
		"max_slots":      f.MaxSlots,
		"min_confidence": f.MinConfidence,
		"ab_ratio":       f.ABRatio,
	}
}

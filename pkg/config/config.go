package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL      string
	OpenAIAPIKey     string
	GoogleMapsAPIKey string
	Port             string
	AdminPort        string
	AdminToken       string

	// CORS
	CORSAllowedOrigins []string

	// Ingestion pipeline settings
	PipelineEnabled bool
	WorkerCount     int
	MaxRetries      int
	RetryDelay      time.Duration
	JobTimeout      time.Duration
	SummarizerRPS   float64 // requests per second against the LLM provider
	GeocoderRPS     float64 // requests per second against the geocoding provider
	SummaryMaxChars int

	// Database performance settings
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime int // minutes
	DBConnMaxIdleTime int // minutes
	DBReadTimeout     time.Duration
	DBWriteTimeout    time.Duration

	// OpenAI client settings
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int
	OpenAITimeout     time.Duration

	// Monitoring and logging settings
	LogLevel          string
	LogFormat         string // "json" or "text"
	LogFile           string
	EnableFileLogging bool

	// Environment & profiling/metrics
	Env              string // development, staging, production
	ProfilingEnabled bool
	MetricsEnabled   bool
	MetricsPath      string

	// Search and composition settings
	DefaultRadiusM    float64
	DefaultRailLength int
	SearchTimeout     time.Duration // per-slot retrieval budget inside a compose call
	RailsCacheTTL     time.Duration
	RefreshInterval   time.Duration // derived view refresh cadence
	SessionTTL        time.Duration
	OntologyPath      string // external ontology file; empty = embedded default

	ConfigReloadIntervalSeconds int

	// Slotter feature flags, snapshotted per reload
	Flags Flags
}

// Flags is the slotter feature-flag set. Values are immutable once loaded;
// hot reloads publish a whole new snapshot so readers never observe a mix.
type Flags struct {
	Wide          bool          // widen matching windows and expansion sets
	Shadow        bool          // run the wide path in shadow and log diffs
	ABTest        bool          // split traffic between parse strategies
	Debug         bool          // verbose parse/compose debug payloads
	CacheTTL      time.Duration // parse cache TTL
	MaxSlots      int
	MinConfidence float64
	ABRatio       float64
}

func Load() *Config {
	workerCount, _ := strconv.Atoi(getEnv("WORKER_COUNT", "0")) // 0 = use default
	maxRetries, _ := strconv.Atoi(getEnv("MAX_RETRIES", "3"))
	retryDelay, _ := time.ParseDuration(getEnv("RETRY_DELAY", "2s"))
	jobTimeout, _ := time.ParseDuration(getEnv("JOB_TIMEOUT", "90s"))
	pipelineEnabled, _ := strconv.ParseBool(getEnv("PIPELINE_ENABLED", "true"))
	summarizerRPS, _ := strconv.ParseFloat(getEnv("SUMMARIZER_RPS", "2"), 64)
	geocoderRPS, _ := strconv.ParseFloat(getEnv("GEOCODER_RPS", "5"), 64)
	summaryMaxChars, _ := strconv.Atoi(getEnv("SUMMARY_MAX_CHARS", "280"))

	// Database performance settings with defaults
	dbMaxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "50"))
	dbMaxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "15"))
	dbConnMaxLifetime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_LIFETIME_MINUTES", "10"))
	dbConnMaxIdleTime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_IDLE_TIME_MINUTES", "5"))

	enableFileLogging, _ := strconv.ParseBool(getEnv("ENABLE_FILE_LOGGING", "false"))

	env := strings.ToLower(getEnv("ENV", "development"))
	metricsPath := getEnv("METRICS_PATH", "/metrics")

	// Default toggles based on env
	profilingDefault := env == "development" || env == "staging"
	profilingEnabled, _ := strconv.ParseBool(getEnv("PROFILING_ENABLED", strconv.FormatBool(profilingDefault)))
	metricsEnabled, _ := strconv.ParseBool(getEnv("METRICS_ENABLED", "true"))

	// Timeouts
	dbReadTO, _ := time.ParseDuration(getEnv("DB_READ_TIMEOUT", "8s"))
	dbWriteTO, _ := time.ParseDuration(getEnv("DB_WRITE_TIMEOUT", "6s"))

	// OpenAI config
	openAIModel := getEnv("OPENAI_MODEL", "gpt-4o-mini")
	openAITemp, _ := strconv.ParseFloat(getEnv("OPENAI_TEMPERATURE", "0.2"), 64)
	openAIMaxTokens, _ := strconv.Atoi(getEnv("OPENAI_MAX_TOKENS", "400"))
	openAIReqTimeoutSec, _ := strconv.Atoi(getEnv("OPENAI_REQUEST_TIMEOUT_SECONDS", "60"))

	// Search & composition
	defaultRadiusM, _ := strconv.ParseFloat(getEnv("DEFAULT_RADIUS_M", "3000"), 64)
	railLength, _ := strconv.Atoi(getEnv("RAIL_LENGTH", "6"))
	searchTimeout, _ := time.ParseDuration(getEnv("SEARCH_TIMEOUT", "2s"))
	railsCacheTTL, _ := time.ParseDuration(getEnv("RAILS_CACHE_TTL", "60s"))
	refreshIntervalSec, _ := strconv.Atoi(getEnv("REFRESH_INTERVAL_SEC", "300"))
	sessionTTL, _ := time.ParseDuration(getEnv("SESSION_TTL", "24h"))

	// Config reload
	reloadIntSec, _ := strconv.Atoi(getEnv("CONFIG_RELOAD_INTERVAL_SECONDS", "2"))

	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		Port:             getEnv("PORT", "8080"),
		AdminPort:        getEnv("ADMIN_PORT", "6060"),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		PipelineEnabled: pipelineEnabled,
		WorkerCount:     workerCount,
		MaxRetries:      maxRetries,
		RetryDelay:      retryDelay,
		JobTimeout:      jobTimeout,
		SummarizerRPS:   summarizerRPS,
		GeocoderRPS:     geocoderRPS,
		SummaryMaxChars: summaryMaxChars,

		DBMaxOpenConns:    dbMaxOpenConns,
		DBMaxIdleConns:    dbMaxIdleConns,
		DBConnMaxLifetime: dbConnMaxLifetime,
		DBConnMaxIdleTime: dbConnMaxIdleTime,
		DBReadTimeout:     dbReadTO,
		DBWriteTimeout:    dbWriteTO,

		OpenAIModel:       openAIModel,
		OpenAITemperature: openAITemp,
		OpenAIMaxTokens:   openAIMaxTokens,
		OpenAITimeout:     time.Duration(openAIReqTimeoutSec) * time.Second,

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		LogFile:           getEnv("LOG_FILE", "/var/log/venue-rails/app.log"),
		EnableFileLogging: enableFileLogging,

		Env:              env,
		ProfilingEnabled: profilingEnabled,
		MetricsEnabled:   metricsEnabled,
		MetricsPath:      metricsPath,

		DefaultRadiusM:    defaultRadiusM,
		DefaultRailLength: railLength,
		SearchTimeout:     searchTimeout,
		RailsCacheTTL:     railsCacheTTL,
		RefreshInterval:   time.Duration(refreshIntervalSec) * time.Second,
		SessionTTL:        sessionTTL,
		OntologyPath:      getEnv("ONTOLOGY_PATH", ""),

		ConfigReloadIntervalSeconds: reloadIntSec,

		Flags: loadFlags(),
	}

	return cfg
}

func loadFlags() Flags {
	wide, _ := strconv.ParseBool(getEnv("SLOTTER_WIDE", "false"))
	shadow, _ := strconv.ParseBool(getEnv("SLOTTER_SHADOW", "false"))
	abTest, _ := strconv.ParseBool(getEnv("SLOTTER_AB_TEST", "false"))
	debug, _ := strconv.ParseBool(getEnv("SLOTTER_DEBUG", "false"))
	cacheTTL, _ := time.ParseDuration(getEnv("SLOTTER_CACHE_TTL", "15m"))
	maxSlots, _ := strconv.Atoi(getEnv("SLOTTER_MAX_SLOTS", "3"))
	minConf, _ := strconv.ParseFloat(getEnv("SLOTTER_MIN_CONFIDENCE", "0.3"), 64)
	abRatio, _ := strconv.ParseFloat(getEnv("SLOTTER_AB_RATIO", "0.5"), 64)

	return Flags{
		Wide:          wide,
		Shadow:        shadow,
		ABTest:        abTest,
		Debug:         debug,
		CacheTTL:      cacheTTL,
		MaxSlots:      maxSlots,
		MinConfidence: minConf,
		ABRatio:       abRatio,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as the upstream Hadith API, caching, per-operation rate limits,
// logging, database paths, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-hadith-bot/internal/sysutil"
)

// RateRule is a (limit, window) pair for one operation category. A user may
// perform at most Limit requests of that category within a trailing Window.
type RateRule struct {
	Limit  int
	Window time.Duration
}

// RateConfig holds the sliding-window limits per operation category plus the
// multiplier applied to administrator identities.
type RateConfig struct {
	Search   RateRule // free-text and /search queries
	Random   RateRule // /random lookups
	Favorite RateRule // bookmark add/remove/list
	Admin    RateRule // admin menu operations
	Command  RateRule // any other slash command
	Callback RateRule // any other button callback

	// AdminMultiplier scales every Limit for administrators (e.g. 5.0).
	AdminMultiplier float64
	// IdleTTL is how long an inactive, unblocked window survives before the
	// periodic sweep evicts it.
	IdleTTL time.Duration
	// SweepInterval is the period of the background window sweep.
	SweepInterval time.Duration
}

// TelegramConfig defines the chat transport settings.
type TelegramConfig struct {
	Token       string        // TELEGRAM_TOKEN
	APIBase     string        // TELEGRAM_API_BASE (override for testing/self-hosted gateways)
	PollTimeout time.Duration // TELEGRAM_POLL_TIMEOUT (long-poll window)
}

// APIConfig defines the upstream Hadith API client settings.
type APIConfig struct {
	BaseURL    string        // HADITH_API_URL
	Timeout    time.Duration // HADITH_API_TIMEOUT (bounded request timeout)
	ClientName string        // HADITH_API_CLIENT (descriptive identifier header)
	RPS        float64       // HADITH_API_RPS (outbound token bucket)
	Burst      int           // HADITH_API_BURST
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-hadith-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Health/metrics server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath          string        // SQLite path
	CacheTTL        time.Duration // default TTL for cached search responses
	CacheSweep      time.Duration // period of the expired-entry sweep
	SlowUpdate      time.Duration // log a warning when handling exceeds this
	AdminIDs        []int64       // chat-platform IDs treated as administrators
	AdminOpsEnabled bool          // feature toggle for admin menu operations

	// Collaborators
	Telegram TelegramConfig
	API      APIConfig
	Rate     RateConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:          getenv("DB_PATH", "hadith.db"),
		CacheTTL:        getdur("CACHE_TTL", time.Hour),
		CacheSweep:      getdur("CACHE_SWEEP_INTERVAL", 10*time.Minute),
		SlowUpdate:      getdur("SLOW_UPDATE_THRESHOLD", 3*time.Second),
		AdminIDs:        splitIDs(getenv("ADMIN_IDS", "")),
		AdminOpsEnabled: getbool("ADMIN_OPS_ENABLED", true),

		Telegram: TelegramConfig{
			Token:       getenv("TELEGRAM_TOKEN", ""),
			APIBase:     getenv("TELEGRAM_API_BASE", "https://api.telegram.org"),
			PollTimeout: getdur("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
		},

		API: APIConfig{
			BaseURL:    getenv("HADITH_API_URL", "https://hadithapi.example.com/api/search"),
			Timeout:    getdur("HADITH_API_TIMEOUT", 10*time.Second),
			ClientName: getenv("HADITH_API_CLIENT", "go-hadith-bot/1.0"),
			RPS:        getfloat("HADITH_API_RPS", 5.0),
			Burst:      getint("HADITH_API_BURST", 10),
		},

		Rate: RateConfig{
			Search:          getrule("RATE_SEARCH", 10, time.Minute),
			Random:          getrule("RATE_RANDOM", 15, time.Minute),
			Favorite:        getrule("RATE_FAVORITE", 20, time.Minute),
			Admin:           getrule("RATE_ADMIN", 30, time.Minute),
			Command:         getrule("RATE_COMMAND", 30, time.Minute),
			Callback:        getrule("RATE_CALLBACK", 40, time.Minute),
			AdminMultiplier: getfloat("RATE_ADMIN_MULTIPLIER", 5.0),
			IdleTTL:         getdur("RATE_IDLE_TTL", 30*time.Minute),
			SweepInterval:   getdur("RATE_SWEEP_INTERVAL", 10*time.Minute),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-hadith-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Telegram.APIBase) == "" {
		return cfg, errors.New("TELEGRAM_API_BASE must not be empty")
	}
	if cfg.Telegram.PollTimeout <= 0 {
		return cfg, errors.New("TELEGRAM_POLL_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return cfg, errors.New("HADITH_API_URL must not be empty")
	}
	if cfg.API.Timeout <= 0 {
		return cfg, errors.New("HADITH_API_TIMEOUT must be > 0")
	}
	if cfg.API.RPS < 0 {
		return cfg, errors.New("HADITH_API_RPS must be >= 0")
	}
	if cfg.API.Burst < 1 {
		return cfg, errors.New("HADITH_API_BURST must be >= 1")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.CacheSweep <= 0 {
		return cfg, errors.New("CACHE_SWEEP_INTERVAL must be > 0")
	}
	for _, r := range []RateRule{
		cfg.Rate.Search, cfg.Rate.Random, cfg.Rate.Favorite,
		cfg.Rate.Admin, cfg.Rate.Command, cfg.Rate.Callback,
	} {
		if r.Limit < 1 || r.Window <= 0 {
			return cfg, errors.New("rate rules must have limit >= 1 and window > 0")
		}
	}
	if cfg.Rate.AdminMultiplier < 1 {
		return cfg, errors.New("RATE_ADMIN_MULTIPLIER must be >= 1")
	}
	if cfg.Rate.IdleTTL <= 0 || cfg.Rate.SweepInterval <= 0 {
		return cfg, errors.New("rate sweep settings must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getrule reads "<prefix>_LIMIT" and "<prefix>_WINDOW" into a RateRule.
func getrule(prefix string, defLimit int, defWindow time.Duration) RateRule {
	return RateRule{
		Limit:  getint(prefix+"_LIMIT", defLimit),
		Window: getdur(prefix+"_WINDOW", defWindow),
	}
}

// splitIDs parses a comma-separated list of numeric chat-platform IDs.
// Malformed entries are skipped.
func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		if id, err := strconv.ParseInt(t, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

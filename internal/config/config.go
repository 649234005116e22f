// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, logging, persistence, the embedding provider, matching,
// notifications, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-campustrace-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the database backend.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file
	URL    string // PostgreSQL DSN
}

// EmbeddingConfig configures the OpenAI-compatible embedding and tagging
// backend. An empty BaseURL and APIKey disables embeddings.
type EmbeddingConfig struct {
	BaseURL        string
	APIKey         string
	TextModel      string
	ImageModel     string
	Timeout        time.Duration
	MaxConcurrency int
	ImageMaxSide   int
	TaggerModel    string // empty → local keyword extraction
}

// Enabled reports whether an embedding backend is configured.
func (e EmbeddingConfig) Enabled() bool {
	return e.BaseURL != "" || e.APIKey != ""
}

// MatchConfig tunes on-demand matching and image search.
type MatchConfig struct {
	TextWeight           float64
	ImageWeight          float64
	Threshold            float64
	Limit                int
	ImageSearchThreshold float64
	ImageSearchLimit     int
}

// ProactiveConfig tunes background matching of new Found items.
type ProactiveConfig struct {
	Threshold  float64
	Workers    int
	QueueSize  int
	MaxRetries int
}

// PushConfig configures the Expo push transport.
type PushConfig struct {
	Enabled  bool
	Endpoint string
	Timeout  time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxUploadBytes    int64         // multipart image limit
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Identity
	JWTSecret     string // empty → trust X-User-ID / X-Tenant-ID headers
	DefaultTenant string // tenant for header identities without X-Tenant-ID

	// Persistence
	DB DBConfig

	// Items
	AutoApproveItems bool

	Embedding EmbeddingConfig
	Match     MatchConfig
	Proactive ProactiveConfig
	Push      PushConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxUploadBytes:    int64(getint("MAX_UPLOAD_BYTES", 8<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		JWTSecret:     getenv("JWT_SECRET", ""),
		DefaultTenant: strings.TrimSpace(getenv("DEFAULT_TENANT_ID", "")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "campustrace.db"),
			URL:    getenv("DATABASE_URL", ""),
		},

		AutoApproveItems: getbool("AUTO_APPROVE_ITEMS", true),

		Embedding: EmbeddingConfig{
			BaseURL:        getenv("EMBEDDING_BASE_URL", ""),
			APIKey:         getenv("EMBEDDING_API_KEY", ""),
			TextModel:      getenv("EMBEDDING_TEXT_MODEL", "jina-embeddings-v4"),
			ImageModel:     getenv("EMBEDDING_IMAGE_MODEL", ""),
			Timeout:        getdur("EMBEDDING_TIMEOUT", 20*time.Second),
			MaxConcurrency: getint("EMBEDDING_MAX_CONCURRENCY", 4),
			ImageMaxSide:   getint("EMBEDDING_IMAGE_MAX_SIDE", 512),
			TaggerModel:    getenv("TAGGER_MODEL", ""),
		},

		Match: MatchConfig{
			TextWeight:           getfloat("MATCH_TEXT_WEIGHT", 0.6),
			ImageWeight:          getfloat("MATCH_IMAGE_WEIGHT", 0.4),
			Threshold:            getfloat("MATCH_THRESHOLD", 0.6),
			Limit:                getint("MATCH_LIMIT", 5),
			ImageSearchThreshold: getfloat("IMAGE_SEARCH_THRESHOLD", 0.75),
			ImageSearchLimit:     getint("IMAGE_SEARCH_LIMIT", 10),
		},

		Proactive: ProactiveConfig{
			Threshold:  getfloat("PROACTIVE_THRESHOLD", 0.90),
			Workers:    getint("PROACTIVE_WORKERS", 2),
			QueueSize:  getint("PROACTIVE_QUEUE_SIZE", 256),
			MaxRetries: getint("PROACTIVE_MAX_RETRIES", 3),
		},

		Push: PushConfig{
			Enabled:  getbool("PUSH_ENABLED", false),
			Endpoint: getenv("PUSH_ENDPOINT", "https://exp.host/--/api/v2/push/send"),
			Timeout:  getdur("PUSH_TIMEOUT", 10*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "campustrace"),
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
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be sqlite or postgres")
	}

	if cfg.Embedding.Timeout <= 0 {
		return errors.New("EMBEDDING_TIMEOUT must be > 0")
	}
	if cfg.Embedding.MaxConcurrency < 1 {
		return errors.New("EMBEDDING_MAX_CONCURRENCY must be >= 1")
	}
	if cfg.Embedding.ImageMaxSide < 32 {
		return errors.New("EMBEDDING_IMAGE_MAX_SIDE must be >= 32")
	}

	m := cfg.Match
	if m.TextWeight < 0 || m.ImageWeight < 0 || m.TextWeight+m.ImageWeight == 0 {
		return errors.New("MATCH_TEXT_WEIGHT and MATCH_IMAGE_WEIGHT must be >= 0 and not both 0")
	}
	if !inUnit(m.Threshold) || m.Threshold == 0 {
		return errors.New("MATCH_THRESHOLD must be in (0,1]")
	}
	if !inUnit(m.ImageSearchThreshold) || m.ImageSearchThreshold == 0 {
		return errors.New("IMAGE_SEARCH_THRESHOLD must be in (0,1]")
	}
	if m.Limit < 1 || m.ImageSearchLimit < 1 {
		return errors.New("MATCH_LIMIT and IMAGE_SEARCH_LIMIT must be >= 1")
	}

	p := cfg.Proactive
	if !inUnit(p.Threshold) || p.Threshold == 0 {
		return errors.New("PROACTIVE_THRESHOLD must be in (0,1]")
	}
	if p.Workers < 1 || p.QueueSize < 1 || p.MaxRetries < 1 {
		return errors.New("PROACTIVE_WORKERS, PROACTIVE_QUEUE_SIZE and PROACTIVE_MAX_RETRIES must be >= 1")
	}

	if cfg.Push.Enabled && strings.TrimSpace(cfg.Push.Endpoint) == "" {
		return errors.New("PUSH_ENDPOINT must not be empty when PUSH_ENABLED")
	}
	if cfg.Push.Timeout <= 0 {
		return errors.New("PUSH_TIMEOUT must be > 0")
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if !inUnit(cfg.OTEL.SampleRatio) {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers ----

func inUnit(f float64) bool { return f >= 0 && f <= 1 }

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
	v := os.Getenv(k)
	switch {
	case sysutil.IsTruthy(v):
		return true
	case sysutil.IsFalsy(v):
		return false
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

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_DefaultsAreValid(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()

	if cfg.APIBasePath != "/api/v1" || cfg.DB.Driver != "sqlite" || !cfg.AutoApproveItems {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Match.TextWeight != 0.6 || cfg.Match.ImageWeight != 0.4 || cfg.Match.Threshold != 0.6 || cfg.Match.Limit != 5 {
		t.Fatalf("match defaults: %+v", cfg.Match)
	}
	if cfg.Proactive.Threshold != 0.90 || cfg.Proactive.Workers != 2 || cfg.Proactive.QueueSize != 256 || cfg.Proactive.MaxRetries != 3 {
		t.Fatalf("proactive defaults: %+v", cfg.Proactive)
	}
	if cfg.Embedding.Enabled() || cfg.Push.Enabled || cfg.JWTSecret != "" {
		t.Fatalf("optional integrations should default off: %+v", cfg)
	}
}

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("GIN_MODE", "weird") // normalizes to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // normalizes to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v2/")

	// Persistence
	t.Setenv("DB_DRIVER", "PostgreSQL")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/campus")

	// Embeddings / matching
	t.Setenv("EMBEDDING_BASE_URL", "http://embed:8000/v1")
	t.Setenv("EMBEDDING_IMAGE_MODEL", "clip")
	t.Setenv("EMBEDDING_MAX_CONCURRENCY", "8")
	t.Setenv("TAGGER_MODEL", "gpt-4o-mini")
	t.Setenv("MATCH_TEXT_WEIGHT", "1")
	t.Setenv("MATCH_IMAGE_WEIGHT", "0")
	t.Setenv("MATCH_LIMIT", "9")
	t.Setenv("PROACTIVE_THRESHOLD", "0.95")
	t.Setenv("PROACTIVE_WORKERS", "4")
	t.Setenv("AUTO_APPROVE_ITEMS", "off")

	// Identity / push
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DEFAULT_TENANT_ID", "  campus-main ")
	t.Setenv("PUSH_ENABLED", "1")

	// Rate limiting (invalid values fall back to defaults)
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.MaxUploadBytes != 1024 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.URL != "postgres://u:p@db/campus" {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}
	if !cfg.Embedding.Enabled() || cfg.Embedding.ImageModel != "clip" || cfg.Embedding.MaxConcurrency != 8 || cfg.Embedding.TaggerModel != "gpt-4o-mini" {
		t.Fatalf("embedding unexpected: %+v", cfg.Embedding)
	}
	if cfg.Match.TextWeight != 1 || cfg.Match.ImageWeight != 0 || cfg.Match.Limit != 9 {
		t.Fatalf("match unexpected: %+v", cfg.Match)
	}
	if cfg.Proactive.Threshold != 0.95 || cfg.Proactive.Workers != 4 {
		t.Fatalf("proactive unexpected: %+v", cfg.Proactive)
	}
	if cfg.DefaultTenant != "campus-main" {
		t.Fatalf("DefaultTenant = %q", cfg.DefaultTenant)
	}
	if cfg.AutoApproveItems || cfg.JWTSecret != "s3cret" || !cfg.Push.Enabled {
		t.Fatalf("items/identity/push unexpected: %+v", cfg)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// Each case triggers exactly one validation error.
func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"max upload bytes", map[string]string{"MAX_UPLOAD_BYTES": "-1"}, "MAX_UPLOAD_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"embedding concurrency", map[string]string{"EMBEDDING_MAX_CONCURRENCY": "0"}, "EMBEDDING_MAX_CONCURRENCY"},
		{"image side", map[string]string{"EMBEDDING_IMAGE_MAX_SIDE": "8"}, "EMBEDDING_IMAGE_MAX_SIDE"},
		{"zero weights", map[string]string{"MATCH_TEXT_WEIGHT": "0", "MATCH_IMAGE_WEIGHT": "0"}, "MATCH_TEXT_WEIGHT"},
		{"zero match threshold", map[string]string{"MATCH_THRESHOLD": "0"}, "MATCH_THRESHOLD"},
		{"image search threshold", map[string]string{"IMAGE_SEARCH_THRESHOLD": "1.2"}, "IMAGE_SEARCH_THRESHOLD"},
		{"match limit", map[string]string{"MATCH_LIMIT": "0"}, "MATCH_LIMIT"},
		{"proactive threshold", map[string]string{"PROACTIVE_THRESHOLD": "1.5"}, "PROACTIVE_THRESHOLD"},
		{"proactive workers", map[string]string{"PROACTIVE_WORKERS": "0"}, "PROACTIVE_WORKERS"},
		{"push timeout", map[string]string{"PUSH_TIMEOUT": "0s"}, "PUSH_TIMEOUT"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"otel ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}
	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}
	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		k := "B_T_" + strconv.Itoa(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		k := "B_F_" + strconv.Itoa(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: %#v", got)
	}

	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

// Keep tests from inheriting the developer's environment.
func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "DB_DRIVER", "DATABASE_URL", "EMBEDDING_BASE_URL", "EMBEDDING_API_KEY", "JWT_SECRET", "PUSH_ENABLED"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

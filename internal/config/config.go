package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	StorefrontBaseURL  string
	RedisURL           string
	CORSAllowedOrigins []string
	CatalogCacheTTL    time.Duration
	IdempotencyTTL     time.Duration

	Membership MembershipConfig
	Upstream   UpstreamConfig
	RateLimit  RateLimitConfig
	Obs        ObsConfig
}

// MembershipConfig controls the membership discount. RateBps is in basis
// points; MaxDiscount of zero disables the cap.
type MembershipConfig struct {
	RateBps     int
	MaxDiscount int64
}

// UpstreamConfig tunes the storefront client.
type UpstreamConfig struct {
	Timeout             time.Duration
	MaxAttempts         int
	BaseBackoff         time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
}

// RateLimitConfig bounds checkout submissions per client address. Evaluate
// and product reads share a separate per-minute budget.
type RateLimitConfig struct {
	Window            time.Duration
	Max               int
	EvaluatePerMinute int
}

// ObsConfig groups logging, metrics and tracing switches.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	PprofEnabled     bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		StorefrontBaseURL:  strings.TrimRight(strings.TrimSpace(k.String("STOREFRONT_BASE_URL")), "/"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "30s"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		Membership: MembershipConfig{
			RateBps:     parseInt(k.String("MEMBERSHIP_RATE_BPS"), 3000),
			MaxDiscount: int64(parseInt(k.String("MEMBERSHIP_MAX_DISCOUNT"), 8000)),
		},
		Upstream: UpstreamConfig{
			Timeout:             parseDuration(k.String("UPSTREAM_TIMEOUT"), "3s"),
			MaxAttempts:         parseInt(k.String("UPSTREAM_MAX_ATTEMPTS"), 3),
			BaseBackoff:         parseDuration(k.String("UPSTREAM_BASE_BACKOFF"), "100ms"),
			BreakerMinRequests:  parseInt(k.String("UPSTREAM_BREAKER_MIN_REQUESTS"), 5),
			BreakerFailureRatio: parseFloat(k.String("UPSTREAM_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:      parseDuration(k.String("UPSTREAM_BREAKER_OPEN_FOR"), "30s"),
		},
		RateLimit: RateLimitConfig{
			Window: parseDuration(k.String("CHECKOUT_RATE_LIMIT_WINDOW"), "1m"),
			Max:    parseInt(k.String("CHECKOUT_RATE_LIMIT_MAX"), 30),

			EvaluatePerMinute: parseInt(k.String("EVALUATE_RATE_LIMIT_PER_MINUTE"), 120),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "pos"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			PprofEnabled:     parseBool(k.String("OBS_ENABLE_PPROF")),
		},
	}

	if cfg.StorefrontBaseURL == "" {
		return nil, errors.New("STOREFRONT_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.StorefrontBaseURL); err != nil {
		return nil, fmt.Errorf("STOREFRONT_BASE_URL: %w", err)
	}
	if cfg.Membership.RateBps < 0 || cfg.Membership.RateBps > 10000 {
		return nil, fmt.Errorf("MEMBERSHIP_RATE_BPS must be between 0 and 10000, got %d", cfg.Membership.RateBps)
	}
	if cfg.Membership.MaxDiscount < 0 {
		return nil, errors.New("MEMBERSHIP_MAX_DISCOUNT must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

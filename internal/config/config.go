package config

import (
	"errors"
	"fmt"
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
	RedisURL           string
	CORSAllowedOrigins []string

	ShopifyAPIKey        string
	ShopifyAPISecret     string
	ShopifyWebhookSecret string
	ShopifyAPIVersion    string

	AnalyticsPageSize     int
	AnalyticsMaxPages     int
	AnalyticsFetchTimeout time.Duration
	DebugAnalytics        bool

	UpstreamTimeout     time.Duration
	UpstreamMaxAttempts int
	UpstreamBackoff     time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	APIRateLimit       string
	ExportRateLimit    int
	ExportRateWindow   time.Duration
	WebhookReplayTTL   time.Duration
	WebhookBodyLimit   int64
	SessionClockSkew   time.Duration
	SecurityHeaders    bool
	HSTSEnabled        bool
	ShutdownGracePeriod time.Duration
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
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		ShopifyAPIKey:        strings.TrimSpace(k.String("SHOPIFY_API_KEY")),
		ShopifyAPISecret:     strings.TrimSpace(k.String("SHOPIFY_API_SECRET")),
		ShopifyWebhookSecret: strings.TrimSpace(k.String("SHOPIFY_WEBHOOK_SECRET")),
		ShopifyAPIVersion:    valueOrDefault(k.String("SHOPIFY_API_VERSION"), "2024-10"),

		AnalyticsPageSize:     parseInt(k.String("ANALYTICS_PAGE_SIZE"), 250),
		AnalyticsMaxPages:     parseInt(k.String("ANALYTICS_MAX_PAGES"), 400),
		AnalyticsFetchTimeout: parseDuration(k.String("ANALYTICS_FETCH_TIMEOUT"), "60s"),
		DebugAnalytics:        parseBool(k.String("DEBUG_ANALYTICS")),

		UpstreamTimeout:     parseDuration(k.String("UPSTREAM_TIMEOUT"), "15s"),
		UpstreamMaxAttempts: parseInt(k.String("UPSTREAM_MAX_ATTEMPTS"), 3),
		UpstreamBackoff:     parseDuration(k.String("UPSTREAM_BACKOFF"), "250ms"),
		BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		APIRateLimit:        valueOrDefault(k.String("RATE_LIMIT_API"), "300-M"),
		ExportRateLimit:     parseInt(k.String("RATE_LIMIT_EXPORT_MAX"), 10),
		ExportRateWindow:    parseDuration(k.String("RATE_LIMIT_EXPORT_WINDOW"), "1m"),
		WebhookReplayTTL:    parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		WebhookBodyLimit:    int64(parseInt(k.String("WEBHOOK_BODY_LIMIT_BYTES"), 1<<20)),
		SessionClockSkew:    parseDuration(k.String("SESSION_CLOCK_SKEW"), "5s"),
		SecurityHeaders:     parseBoolDefault(k.String("SECURITY_HEADERS"), true),
		HSTSEnabled:         parseBool(k.String("SECURITY_HSTS")),
		ShutdownGracePeriod: parseDuration(k.String("SHUTDOWN_GRACE_PERIOD"), "15s"),
	}

	if cfg.ShopifyWebhookSecret == "" {
		cfg.ShopifyWebhookSecret = cfg.ShopifyAPISecret
	}
	if cfg.AnalyticsPageSize <= 0 || cfg.AnalyticsPageSize > 250 {
		cfg.AnalyticsPageSize = 250
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.ShopifyAPIKey == "" {
		return nil, errors.New("SHOPIFY_API_KEY is required")
	}
	if cfg.ShopifyAPISecret == "" {
		return nil, errors.New("SHOPIFY_API_SECRET is required")
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
		return strings.TrimSpace(value)
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

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
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

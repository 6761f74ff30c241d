// Package app wires configuration, stores and handlers into the HTTP service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/CamDog38/ShopDelta/internal/analytics"
	"github.com/CamDog38/ShopDelta/internal/auth"
	"github.com/CamDog38/ShopDelta/internal/config"
	"github.com/CamDog38/ShopDelta/internal/lock"
	"github.com/CamDog38/ShopDelta/internal/obs"
	"github.com/CamDog38/ShopDelta/internal/plan"
	"github.com/CamDog38/ShopDelta/internal/resilience"
	"github.com/CamDog38/ShopDelta/internal/shopify"
)

// Options carries process-level choices that are not part of Config.
type Options struct {
	// Registry receives HTTP and breaker collectors; nil uses the default registerer.
	Registry  *prometheus.Registry
	Namespace string
	Metrics   bool
	Tracing  bool
	// ShopifyBaseURL replaces https://{shop} for every Admin API call.
	ShopifyBaseURL string
	// Transport is the outbound round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// Dependencies enumerates the shared services behind the router.
type Dependencies struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Redis       redis.UniversalClient
	Validator   *validator.Validate
	APILimiter  *limiter.Limiter
	Breaker     *resilience.Breaker
	Verifier    *auth.SessionVerifier
	Shopify     *shopify.Client
	Sessions    shopify.SessionStore
	Plans       plan.Store
	Analytics   *analytics.Service
	HTTPMetrics *obs.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Tracing     bool
}

// New builds the dependency graph on top of an established Redis client.
func New(cfg *config.Config, logger zerolog.Logger, rdb redis.UniversalClient, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if rdb == nil {
		return nil, errors.New("app: redis client is required")
	}

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}

	verifier, err := auth.NewSessionVerifier(cfg.ShopifyAPIKey, cfg.ShopifyAPISecret, cfg.SessionClockSkew)
	if err != nil {
		return nil, err
	}

	apiLimiter, err := NewAPILimiter(rdb, cfg.APIRateLimit)
	if err != nil {
		return nil, err
	}

	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("shopify").
		WithLogger(logger)

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Tracing {
		transport = otelhttp.NewTransport(transport)
	}
	client := &shopify.Client{
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: transport},
			Breaker:     breaker,
			BaseBackoff: cfg.UpstreamBackoff,
			MaxAttempts: cfg.UpstreamMaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.UpstreamTimeout,
		},
		APIVersion: cfg.ShopifyAPIVersion,
		BaseURL:    opts.ShopifyBaseURL,
	}
	sessions := shopify.SessionStore{Client: rdb}

	d := &Dependencies{
		Config:     cfg,
		Logger:     logger,
		Redis:      rdb,
		Validator:  validator.New(),
		APILimiter: apiLimiter,
		Breaker:    breaker,
		Verifier:   verifier,
		Shopify:    client,
		Sessions:   sessions,
		Plans:      plan.Store{Client: rdb},
		Analytics: &analytics.Service{
			Connector: &shopify.Admin{
				Client:   client,
				Sessions: sessions,
				Exchanger: shopify.Exchanger{
					Client:    client,
					APIKey:    cfg.ShopifyAPIKey,
					APISecret: cfg.ShopifyAPISecret,
				},
				Lock: lock.Locker{Client: rdb},
			},
			PageSize:     cfg.AnalyticsPageSize,
			MaxPages:     cfg.AnalyticsMaxPages,
			FetchTimeout: cfg.AnalyticsFetchTimeout,
		},
		Gatherer: gatherer,
		Tracing:  opts.Tracing,
	}
	if opts.Metrics {
		namespace := opts.Namespace
		if namespace == "" {
			namespace = "shopdelta"
		}
		d.HTTPMetrics = obs.NewHTTPMetrics(namespace, nil, reg)
	}
	return d, nil
}

// NewAPILimiter builds the per-IP request limiter from a "<limit>-<S|M|H|D>" rate.
func NewAPILimiter(rdb redis.UniversalClient, formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse api rate limit %q: %w", formatted, err)
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix:   "shopdelta:limiter",
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	return limiter.New(store, rate, limiter.WithTrustForwardHeader(true)), nil
}

// NewRedis connects to Redis at url and instruments the client with OpenTelemetry.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger, metrics bool) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// PingRedis implements health.Checker.
func (d *Dependencies) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d == nil || d.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

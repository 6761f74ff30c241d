package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/CamDog38/ShopDelta/internal/analytics"
	"github.com/CamDog38/ShopDelta/internal/auth"
	"github.com/CamDog38/ShopDelta/internal/common"
	"github.com/CamDog38/ShopDelta/internal/health"
	"github.com/CamDog38/ShopDelta/internal/obs"
	"github.com/CamDog38/ShopDelta/internal/plan"
	"github.com/CamDog38/ShopDelta/internal/ratelimit"
	"github.com/CamDog38/ShopDelta/internal/security"
	"github.com/CamDog38/ShopDelta/internal/tenant"
	"github.com/CamDog38/ShopDelta/internal/webhook"
	"github.com/CamDog38/ShopDelta/internal/workbook"
)

const hstsMaxAge = 365 * 24 * 60 * 60

// Router mounts every route of the service.
func (d *Dependencies) Router() http.Handler {
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{
		Enable:     cfg.SecurityHeaders,
		Embedded:   true,
		EnableHSTS: cfg.HSTSEnabled,
		HSTSMaxAge: hstsMaxAge,
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", tenant.ShopDomainHeader},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	healthHandler := health.Handler{
		Checker:      d,
		RedisTimeout: 300 * time.Millisecond,
		Upstream:     func() string { return d.Breaker.State().String() },
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	if d.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	analyticsHandler := &analytics.Handler{Svc: d.Analytics, Workbook: workbook.Writer{}, Validate: d.Validator}
	planHandler := plan.Handler{Store: d.Plans, Validate: d.Validator}
	exportLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: d.Redis, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ShopKey("analytics_export"),
			Window: cfg.ExportRateWindow,
			Max:    cfg.ExportRateLimit,
		},
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("export rate limiter unavailable") },
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(d.apiLimit())
		api.Use(auth.Middleware{Verifier: d.Verifier}.RequireSession)
		api.Get("/analytics", analyticsHandler.Report)
		api.With(exportLimit.Middleware).Get("/analytics/export", analyticsHandler.Export)
		api.Get("/plan", planHandler.Get)
		api.Post("/plan", planHandler.Set)
	})

	webhookHandler := webhook.Handler{
		Secret:    cfg.ShopifyWebhookSecret,
		Purge:     []webhook.ShopData{d.Sessions, d.Plans},
		Replay:    d.Redis,
		ReplayTTL: cfg.WebhookReplayTTL,
	}
	r.With(security.BodyLimit{Max: cfg.WebhookBodyLimit}.Middleware).Post("/webhooks/*", webhookHandler.Handle)

	return r
}

func (d *Dependencies) apiLimit() func(http.Handler) http.Handler {
	if d.APILimiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	mw := stdlib.NewMiddleware(d.APILimiter,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			retry := time.Second
			if reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64); err == nil {
				retry = time.Until(time.Unix(reset, 0))
			}
			common.TooManyRequests(w, retry)
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("api rate limiter failed")
			common.JSONError(w, http.StatusServiceUnavailable, "RATE_LIMITER_UNAVAILABLE", "rate limiter unavailable", nil)
		}),
	)
	return mw.Handler
}

func allowedOrigins(configured []string) []string {
	if len(configured) == 0 {
		return []string{security.AdminOrigin, "https://*.myshopify.com"}
	}
	return configured
}

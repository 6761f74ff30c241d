package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/CamDog38/ShopDelta/internal/common"
	"github.com/CamDog38/ShopDelta/internal/tenant"
)

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	// Key returns the bucket for a request; an empty key skips limiting.
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler enforces rate limits before delegating to the next handler. Limiter errors fail
// open.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

// ShopKey buckets requests by the authenticated shop under a route name.
func ShopKey(route string) func(*http.Request) string {
	return func(r *http.Request) string {
		shop, ok := tenant.FromContext(r.Context())
		if !ok {
			return ""
		}
		return tenant.PrefixKey(shop, route)
	}
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Config.Key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			common.TooManyRequests(w, time.Until(resetAt))
			return
		}
		next.ServeHTTP(w, r)
	})
}

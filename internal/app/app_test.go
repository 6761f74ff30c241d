package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/CamDog38/ShopDelta/internal/config"
	"github.com/CamDog38/ShopDelta/internal/plan"
	"github.com/CamDog38/ShopDelta/internal/shopify"
	"github.com/CamDog38/ShopDelta/internal/webhook"
)

const (
	testShop   = "demo.myshopify.com"
	testKey    = "api-key"
	testSecret = "api-secret"
)

const ordersPage = `{"data":{"orders":{"pageInfo":{"hasNextPage":false,"endCursor":"c1"},"edges":[
 {"cursor":"c1","node":{"id":"gid://shopify/Order/1","name":"#1001","processedAt":"2024-01-05T10:00:00Z",
  "lineItems":{"edges":[
   {"node":{"quantity":2,"title":"Widget","discountedTotalSet":{"shopMoney":{"amount":"20.00","currencyCode":"USD"}},"product":{"id":"gid://shopify/Product/1","title":"Widget"}}}
  ]}}}]}}}`

type fixture struct {
	deps    *Dependencies
	handler http.Handler
	redis   *redis.Client
	mr      *miniredis.Miniredis
}

func baseConfig() *config.Config {
	return &config.Config{
		AppEnv:                "test",
		ShopifyAPIKey:         testKey,
		ShopifyAPISecret:      testSecret,
		ShopifyWebhookSecret:  testSecret,
		AnalyticsPageSize:     250,
		AnalyticsMaxPages:     10,
		AnalyticsFetchTimeout: 5 * time.Second,
		UpstreamTimeout:       5 * time.Second,
		UpstreamMaxAttempts:   1,
		UpstreamBackoff:       10 * time.Millisecond,
		BreakerMinRequests:    10,
		BreakerFailureRatio:   0.5,
		BreakerOpenFor:        time.Minute,
		APIRateLimit:          "100-M",
		ExportRateWindow:      time.Minute,
		WebhookReplayTTL:      time.Hour,
		WebhookBodyLimit:      1 << 20,
		SessionClockSkew:      5 * time.Second,
		SecurityHeaders:       true,
	}
}

func newFixture(t *testing.T, exportMax int) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "shpat_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, ordersPage)
	}))
	t.Cleanup(upstream.Close)

	cfg := baseConfig()
	cfg.ExportRateLimit = exportMax
	deps, err := New(cfg, zerolog.Nop(), rdb, Options{
		Registry:       prometheus.NewRegistry(),
		Metrics:        true,
		ShopifyBaseURL: upstream.URL,
	})
	require.NoError(t, err)
	return fixture{deps: deps, handler: deps.Router(), redis: rdb, mr: mr}
}

func sessionToken(t *testing.T) string {
	t.Helper()
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Audience([]string{testKey}).
		Issuer("https://" + testShop + "/admin").
		Subject("42").
		IssuedAt(now.Add(-time.Minute)).
		NotBefore(now.Add(-time.Minute)).
		Expiration(now.Add(time.Minute)).
		Claim("dest", "https://"+testShop).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)
	return string(signed)
}

func (f fixture) do(t *testing.T, method, target string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "203.0.113.7:5555"
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f fixture) storeSession(t *testing.T) {
	t.Helper()
	require.NoError(t, f.deps.Sessions.Save(context.Background(), shopify.OfflineSession{
		Shop:        testShop,
		AccessToken: "shpat_test",
		CreatedAt:   time.Now(),
	}))
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	f := newFixture(t, 5)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", nil, "").Code)

	rr := f.do(t, http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, "ok", status["redis"])
	require.Equal(t, "closed", status["shopify"])

	rr = f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "shopdelta_http_requests_total")
}

func TestAPIRequiresSessionToken(t *testing.T) {
	f := newFixture(t, 5)
	rr := f.do(t, http.MethodGet, "/api/analytics", nil, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
	require.NotEmpty(t, rr.Header().Get("X-RateLimit-Limit"))
}

func TestAnalyticsReportEndToEnd(t *testing.T) {
	f := newFixture(t, 5)
	f.storeSession(t)

	rr := f.do(t, http.MethodGet, "/api/analytics?shop=demo.myshopify.com&start=2024-01-01&end=2024-01-31", nil, sessionToken(t))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report struct {
		Shop   string `json:"shop"`
		Error  string `json:"error"`
		Totals struct {
			Qty   int     `json:"qty"`
			Sales float64 `json:"sales"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Empty(t, report.Error)
	require.Equal(t, testShop, report.Shop)
	require.Equal(t, 2, report.Totals.Qty)
	require.Equal(t, 20.0, report.Totals.Sales)
	require.Contains(t, rr.Header().Get("Content-Security-Policy"), "https://"+testShop)
}

func TestExportIsRateLimitedPerShop(t *testing.T) {
	f := newFixture(t, 1)
	f.storeSession(t)
	token := sessionToken(t)

	target := "/api/analytics/export?format=xlsx&start=2024-01-01&end=2024-01-31"
	rr := f.do(t, http.MethodGet, target, nil, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Header().Get("Content-Disposition"), "analytics_export_")

	rr = f.do(t, http.MethodGet, target, nil, token)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestPlanRoundTrip(t *testing.T) {
	f := newFixture(t, 5)
	token := sessionToken(t)

	rr := f.do(t, http.MethodPost, "/api/plan", bytes.NewBufferString(`{"plan":"pro"}`), token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/api/plan", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"shop":"demo.myshopify.com","plan":"pro"}`, rr.Body.String())
}

func TestUninstallWebhookPurgesShop(t *testing.T) {
	f := newFixture(t, 5)
	f.storeSession(t)
	require.NoError(t, f.deps.Plans.Set(context.Background(), testShop, plan.Starter))

	body := []byte(`{"id":1,"myshopify_domain":"demo.myshopify.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/app/uninstalled", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Topic", webhook.TopicAppUninstalled)
	req.Header.Set("X-Shopify-Shop-Domain", testShop)
	req.Header.Set("X-Shopify-Webhook-Id", "wh-1")
	req.Header.Set(webhook.HMACHeader, webhook.Sign(body, testSecret))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	_, err := f.deps.Sessions.Get(context.Background(), testShop)
	require.ErrorIs(t, err, shopify.ErrNoSession)
	_, ok, err := f.deps.Plans.Get(context.Background(), testShop)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, 5)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/app/uninstalled", bytes.NewBufferString(`{}`))
	req.Header.Set(webhook.HMACHeader, "bogus")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNewAPILimiterRejectsBadRate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	_, err := NewAPILimiter(rdb, "lots")
	require.Error(t, err)
}

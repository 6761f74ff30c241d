package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"REDIS_URL":              "redis://localhost:6379/0",
		"SHOPIFY_API_KEY":        "key",
		"SHOPIFY_API_SECRET":     "secret",
		"SHOPIFY_WEBHOOK_SECRET": "",
		"ANALYTICS_PAGE_SIZE":    "",
		"ANALYTICS_MAX_PAGES":    "",
		"DEBUG_ANALYTICS":        "",
		"SECURITY_HEADERS":       "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "secret", cfg.ShopifyWebhookSecret)
	require.Equal(t, 250, cfg.AnalyticsPageSize)
	require.Equal(t, 400, cfg.AnalyticsMaxPages)
	require.Equal(t, 60*time.Second, cfg.AnalyticsFetchTimeout)
	require.Equal(t, 5*time.Second, cfg.SessionClockSkew)
	require.True(t, cfg.SecurityHeaders)
	require.False(t, cfg.DebugAnalytics)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["SHOPIFY_WEBHOOK_SECRET"] = "whsec"
	env["ANALYTICS_PAGE_SIZE"] = "1000"
	env["ANALYTICS_MAX_PAGES"] = "10"
	env["DEBUG_ANALYTICS"] = "1"
	env["SECURITY_HEADERS"] = "off"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "whsec", cfg.ShopifyWebhookSecret)
	require.Equal(t, 250, cfg.AnalyticsPageSize)
	require.Equal(t, 10, cfg.AnalyticsMaxPages)
	require.True(t, cfg.DebugAnalytics)
	require.False(t, cfg.SecurityHeaders)
}

func TestLoadRequiresShopifyCredentials(t *testing.T) {
	env := baseEnv()
	env["SHOPIFY_API_SECRET"] = ""
	_, err := LoadForTests(env)
	require.EqualError(t, err, "SHOPIFY_API_SECRET is required")

	env = baseEnv()
	env["REDIS_URL"] = ""
	_, err = LoadForTests(env)
	require.EqualError(t, err, "REDIS_URL is required")
}

func TestHTTPAddr(t *testing.T) {
	require.Equal(t, ":9000", (&Config{Port: "9000"}).HTTPAddr())
	require.Equal(t, ":8080", (&Config{}).HTTPAddr())
}

package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// AnalyticsPagesFetchedTotal counts order pages pulled from the Admin API.
	AnalyticsPagesFetchedTotal prometheus.Counter
	// AnalyticsFetchFailuresTotal counts failed window fetches by error tag.
	AnalyticsFetchFailuresTotal *prometheus.CounterVec
	// AnalyticsPaginationLimitTotal counts fetches aborted at the page bound.
	AnalyticsPaginationLimitTotal prometheus.Counter
	// AnalyticsReportDuration records report build latency in seconds by compare mode.
	AnalyticsReportDuration *prometheus.HistogramVec
	// AnalyticsExportsTotal counts generated workbooks.
	AnalyticsExportsTotal prometheus.Counter
	// WebhooksTotal counts inbound platform webhooks by topic and outcome.
	WebhooksTotal *prometheus.CounterVec
	// TokenExchangeTotal counts session token exchanges by outcome.
	TokenExchangeTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the analytics and webhook collectors.
// Collectors already registered under the same name are reused.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		AnalyticsPagesFetchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_pages_fetched_total",
			Help:      "Order pages fetched from the Admin API.",
		})
		AnalyticsFetchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_fetch_failures_total",
			Help:      "Order window fetches that failed, by error tag.",
		}, []string{"code"})
		AnalyticsPaginationLimitTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_pagination_limit_total",
			Help:      "Order window fetches aborted at the page bound.",
		})
		AnalyticsReportDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_report_duration_seconds",
			Help:      "Time to fetch, aggregate and build an analytics report.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"compare"})
		AnalyticsExportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_exports_total",
			Help:      "Workbooks generated by the export endpoint.",
		})
		WebhooksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Inbound platform webhooks by topic and outcome.",
		}, []string{"topic", "result"})
		TokenExchangeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchange_total",
			Help:      "Session token exchanges for offline access tokens, by outcome.",
		}, []string{"result"})

		AnalyticsPagesFetchedTotal = register(reg, AnalyticsPagesFetchedTotal)
		AnalyticsFetchFailuresTotal = register(reg, AnalyticsFetchFailuresTotal)
		AnalyticsPaginationLimitTotal = register(reg, AnalyticsPaginationLimitTotal)
		AnalyticsReportDuration = register(reg, AnalyticsReportDuration)
		AnalyticsExportsTotal = register(reg, AnalyticsExportsTotal)
		WebhooksTotal = register(reg, WebhooksTotal)
		TokenExchangeTotal = register(reg, TokenExchangeTotal)
	})
}


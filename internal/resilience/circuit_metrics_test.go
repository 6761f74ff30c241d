package resilience_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/CamDog38/ShopDelta/internal/resilience"
)

func TestBreakerPublishesStateAndTransitions(t *testing.T) {
	const target = "shopify-metrics"
	clock := newFakeClock()
	breaker := resilience.NewBreaker(1, 0.5, 10*time.Second).WithTarget(target).WithClock(clock.Now)
	ctx := context.Background()

	state := func() float64 { return testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)) }
	transitions := func(from, to string) float64 {
		return testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, from, to))
	}

	require.Equal(t, 0.0, state())

	breaker.Report(ctx, false)
	require.Equal(t, 1.0, state())
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues(target)))

	clock.Advance(10 * time.Second)
	require.True(t, breaker.Allow(ctx))
	require.Equal(t, 2.0, state())

	breaker.Report(ctx, false)
	require.Equal(t, 1.0, state())
	require.Equal(t, 2.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues(target)))

	clock.Advance(10 * time.Second)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, true)
	require.Equal(t, 0.0, state())

	require.Equal(t, 1.0, transitions("closed", "open"))
	require.Equal(t, 2.0, transitions("open", "half_open"))
	require.Equal(t, 1.0, transitions("half_open", "open"))
	require.Equal(t, 1.0, transitions("half_open", "closed"))
}

func TestRetriesCountedPerReason(t *testing.T) {
	before := testutil.ToFloat64(resilience.UpstreamRetriesTotal.WithLabelValues("default", "transport"))

	cl := resilience.HTTPClient{Client: &http.Client{}, MaxAttempts: 3, BaseBackoff: time.Millisecond}
	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:1", nil)
	_, err := cl.Do(context.Background(), req)
	require.Error(t, err)

	after := testutil.ToFloat64(resilience.UpstreamRetriesTotal.WithLabelValues("default", "transport"))
	require.Equal(t, 2.0, after-before)
}

package plan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/CamDog38/ShopDelta/internal/tenant"
)

func newStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Store{Client: rdb}, mr
}

func TestStoreRoundTrip(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "demo.myshopify.com")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "demo.myshopify.com", Starter))
	v, err := mr.Get("shop:demo.myshopify.com:plan")
	require.NoError(t, err)
	require.Equal(t, "starter", v)

	p, ok, err := store.Get(ctx, "demo.myshopify.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Starter, p)

	require.ErrorIs(t, store.Set(ctx, "demo.myshopify.com", Plan("enterprise")), ErrUnknownPlan)

	require.NoError(t, store.Delete(ctx, "demo.myshopify.com"))
	_, ok, err = store.Get(ctx, "demo.myshopify.com")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreIgnoresUnknownStoredValue(t *testing.T) {
	store, mr := newStore(t)
	require.NoError(t, mr.Set("shop:demo.myshopify.com:plan", "legacy"))
	_, ok, err := store.Get(context.Background(), "demo.myshopify.com")
	require.NoError(t, err)
	require.False(t, ok)
}

func withShop(r *http.Request) *http.Request {
	return r.WithContext(tenant.WithShop(r.Context(), "demo.myshopify.com"))
}

func TestHandlers(t *testing.T) {
	store, _ := newStore(t)
	h := Handler{Store: store}

	rr := httptest.NewRecorder()
	h.Get(rr, withShop(httptest.NewRequest(http.MethodGet, "/api/plan", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"shop":"demo.myshopify.com","plan":null}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.Set(rr, withShop(httptest.NewRequest(http.MethodPost, "/api/plan", strings.NewReader(`{"plan":"pro"}`))))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Get(rr, withShop(httptest.NewRequest(http.MethodGet, "/api/plan", nil)))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "pro", body["plan"])
}

func TestSetRejectsBadInput(t *testing.T) {
	store, _ := newStore(t)
	h := Handler{Store: store}

	for _, payload := range []string{`{"plan":"gold"}`, `{}`, `not json`} {
		rr := httptest.NewRecorder()
		h.Set(rr, withShop(httptest.NewRequest(http.MethodPost, "/api/plan", strings.NewReader(payload))))
		require.Equal(t, http.StatusBadRequest, rr.Code, payload)
	}

	rr := httptest.NewRecorder()
	h.Set(rr, httptest.NewRequest(http.MethodPost, "/api/plan", strings.NewReader(`{"plan":"pro"}`)))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

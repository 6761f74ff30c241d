package webhook

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/CamDog38/ShopDelta/internal/common"
	"github.com/CamDog38/ShopDelta/internal/obs"
	"github.com/CamDog38/ShopDelta/internal/tenant"
)

// Topics handled by the app.
const (
	TopicAppUninstalled       = "app/uninstalled"
	TopicAppScopesUpdate      = "app/scopes_update"
	TopicCustomersDataRequest = "customers/data_request"
	TopicCustomersRedact      = "customers/redact"
	TopicShopRedact           = "shop/redact"
)

const (
	gdprMessage    = "No customer data retained. Nothing to delete."
	successMessage = "Webhook processed successfully"
)

// ShopData is per-shop state removed when the app is uninstalled.
type ShopData interface {
	Delete(ctx context.Context, shop string) error
}

// Handler verifies and dispatches platform webhooks.
type Handler struct {
	Secret string
	// Purge is cleared on app/uninstalled.
	Purge     []ShopData
	Replay    redis.Cmdable
	ReplayTTL time.Duration
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Handle serves POST /webhooks/*. The topic comes from X-Shopify-Topic, falling back to the
// route path.
func (h Handler) Handle(w http.ResponseWriter, r *http.Request) {
	topic := topicOf(r)
	logger := zerolog.Ctx(r.Context()).With().Str("topic", topic).Logger()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.count(topic, "bad_body")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	if h.Secret == "" || !VerifySignature(body, r.Header.Get(HMACHeader), h.Secret) {
		h.count(topic, "invalid_signature")
		logger.Warn().Msg("webhook signature verification failed")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	shop, _ := tenant.NormalizeShop(r.Header.Get(tenant.ShopDomainHeader))
	logger = logger.With().Str("shop", shop).Logger()
	if topic == TopicAppUninstalled && shop == "" {
		h.count(topic, "no_shop")
		common.JSONError(w, http.StatusBadRequest, "NO_SHOP", "missing shop domain", nil)
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		id := strings.TrimSpace(r.Header.Get("X-Shopify-Webhook-Id"))
		if id == "" {
			id = common.Digest(body)
		}
		fresh, err := h.Replay.SetNX(r.Context(), "webhook:"+id, "1", h.ReplayTTL).Result()
		if err != nil {
			logger.Warn().Err(err).Msg("webhook replay guard unavailable")
		} else if !fresh {
			h.count(topic, "duplicate")
			common.JSON(w, http.StatusOK, response{Status: "ok", Message: "Duplicate webhook ignored"})
			return
		}
	}

	switch topic {
	case TopicAppUninstalled:
		for _, store := range h.Purge {
			if err := store.Delete(r.Context(), shop); err != nil {
				logger.Warn().Err(err).Msg("failed to delete shop data on uninstall")
			}
		}
		logger.Info().Msg("app uninstalled; shop data removed")
		h.count(topic, "ok")
		common.JSON(w, http.StatusOK, response{Status: "ok", Message: successMessage})
	case TopicAppScopesUpdate:
		logger.Info().Msg("app scopes updated")
		h.count(topic, "ok")
		common.JSON(w, http.StatusOK, response{Status: "ok", Message: successMessage})
	case TopicCustomersDataRequest, TopicCustomersRedact, TopicShopRedact:
		logger.Info().Msg("compliance webhook acknowledged")
		h.count(topic, "ok")
		common.JSON(w, http.StatusOK, response{Status: "ok", Message: gdprMessage})
	default:
		h.count(topic, "unhandled")
		logger.Info().Msg("unhandled webhook topic")
		common.JSON(w, http.StatusOK, response{Status: "ok", Message: successMessage})
	}
}

func (h Handler) count(topic, result string) {
	if obs.WebhooksTotal == nil {
		return
	}
	switch topic {
	case TopicAppUninstalled, TopicAppScopesUpdate, TopicCustomersDataRequest, TopicCustomersRedact, TopicShopRedact:
	default:
		topic = "unknown"
	}
	obs.WebhooksTotal.WithLabelValues(topic, result).Inc()
}

func topicOf(r *http.Request) string {
	if t := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Shopify-Topic"))); t != "" {
		return t
	}
	if p := strings.Trim(chi.URLParam(r, "*"), "/"); p != "" {
		return strings.ToLower(p)
	}
	return strings.ToLower(strings.Trim(strings.TrimPrefix(r.URL.Path, "/webhooks"), "/"))
}

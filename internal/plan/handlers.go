package plan

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/CamDog38/ShopDelta/internal/common"
	"github.com/CamDog38/ShopDelta/internal/tenant"
)

// Handler serves the plan endpoints of the current shop.
type Handler struct {
	Store    Store
	Validate *validator.Validate
}

type planResponse struct {
	Shop string `json:"shop"`
	Plan *Plan  `json:"plan"`
}

type setPlanRequest struct {
	Plan string `json:"plan" validate:"required,oneof=free starter pro"`
}

// Get returns the plan, null when none is stored.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	shop, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "NO_SHOP", "shop could not be resolved", nil)
		return
	}
	p, found, err := h.Store.Get(r.Context(), shop)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("shop", shop).Msg("load plan")
		common.JSONError(w, http.StatusInternalServerError, "PLAN_STORE_ERROR", "could not load plan", nil)
		return
	}
	resp := planResponse{Shop: shop}
	if found {
		resp.Plan = &p
	}
	common.JSON(w, http.StatusOK, resp)
}

// Set stores the plan sent as {"plan":"free|starter|pro"}.
func (h Handler) Set(w http.ResponseWriter, r *http.Request) {
	shop, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "NO_SHOP", "shop could not be resolved", nil)
		return
	}
	var req setPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	validate := h.Validate
	if validate == nil {
		validate = validator.New()
	}
	if err := validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "plan must be one of free, starter, pro", nil)
		return
	}
	p := Plan(req.Plan)
	if err := h.Store.Set(r.Context(), shop, p); err != nil {
		if errors.Is(err, ErrUnknownPlan) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("shop", shop).Msg("save plan")
		common.JSONError(w, http.StatusInternalServerError, "PLAN_STORE_ERROR", "could not save plan", nil)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("shop", shop).Str("plan", string(p)).Msg("plan updated")
	common.JSON(w, http.StatusOK, planResponse{Shop: shop, Plan: &p})
}

package analytics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/CamDog38/ShopDelta/internal/common"
	"github.com/CamDog38/ShopDelta/internal/tenant"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WorkbookWriter renders export sheets into a spreadsheet file.
type WorkbookWriter interface {
	Write(w io.Writer, sheets []Sheet) error
}

// Handler exposes the analytics endpoints.
type Handler struct {
	Svc      *Service
	Workbook WorkbookWriter
	Validate *validator.Validate
}

// NewHandler wires a handler with a fresh validator.
func NewHandler(svc *Service, wb WorkbookWriter) *Handler {
	return &Handler{Svc: svc, Workbook: wb, Validate: validator.New()}
}

type queryParams struct {
	Start        string `validate:"omitempty,datetime=2006-01-02"`
	End          string `validate:"omitempty,datetime=2006-01-02"`
	Preset       string `validate:"omitempty,oneof=last7 last30 thisMonth lastMonth ytd custom"`
	Granularity  string `validate:"omitempty,oneof=day week month"`
	View         string `validate:"omitempty,oneof=chart table summary compare"`
	Compare      string `validate:"omitempty,oneof=none mom yoy"`
	CompareScope string `validate:"omitempty,oneof=aggregate product"`
	MomA         string `validate:"omitempty,datetime=2006-01"`
	MomB         string `validate:"omitempty,datetime=2006-01"`
	Chart        string `validate:"omitempty,oneof=bar line"`
	Metric       string `validate:"omitempty,oneof=qty sales"`
	ChartScope   string `validate:"omitempty,oneof=aggregate product"`
	ProductFocus string `validate:"omitempty,max=255"`
}

// ParseQuery reads and validates the analytics query string, filling defaults.
func (h *Handler) ParseQuery(r *http.Request) (Query, error) {
	v := r.URL.Query()
	get := func(name string) string { return strings.TrimSpace(v.Get(name)) }
	p := queryParams{
		Start:        get("start"),
		End:          get("end"),
		Preset:       get("preset"),
		Granularity:  get("granularity"),
		View:         get("view"),
		Compare:      get("compare"),
		CompareScope: get("compareScope"),
		MomA:         get("momA"),
		MomB:         get("momB"),
		Chart:        get("chart"),
		Metric:       get("metric"),
		ChartScope:   get("chartScope"),
		ProductFocus: get("productFocus"),
	}
	validate := h.Validate
	if validate == nil {
		validate = validator.New()
	}
	if err := validate.Struct(p); err != nil {
		return Query{}, describeValidation(err)
	}

	preset := Preset(p.Preset)
	if p.Start != "" && p.End != "" {
		preset = PresetCustom
	} else if preset == "" || preset == PresetCustom {
		preset = PresetLast30
	}
	return Query{
		Start:        p.Start,
		End:          p.End,
		Preset:       preset,
		Granularity:  ParseGranularity(p.Granularity),
		View:         orDefault(p.View, "chart"),
		Compare:      ParseCompareMode(p.Compare),
		CompareScope: ParseCompareScope(p.CompareScope),
		MomA:         p.MomA,
		MomB:         p.MomB,
		Chart:        orDefault(p.Chart, "bar"),
		Metric:       orDefault(p.Metric, "qty"),
		ChartScope:   orDefault(p.ChartScope, "aggregate"),
		ProductFocus: orDefault(p.ProductFocus, FocusAll),
	}, nil
}

// Report serves the analytics report. Upstream failures keep status 200 and carry the
// error tag in the body.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	shop, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "NO_SHOP", "shop could not be resolved", nil)
		return
	}
	q, err := h.ParseQuery(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	report, err := h.Svc.Report(r.Context(), shop, q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, report)
}

// Export serves the analytics workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Workbook == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics export not configured", nil)
		return
	}
	shop, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "NO_SHOP", "shop could not be resolved", nil)
		return
	}
	if format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format != "xlsx" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported export format; use format=xlsx", nil)
		return
	}
	q, err := h.ParseQuery(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	sheets, err := h.Svc.Export(r.Context(), shop, q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := h.Workbook.Write(&buf, sheets); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("shop", shop).Msg("render workbook")
		common.JSONError(w, http.StatusInternalServerError, "EXPORT_FAILED", "could not render workbook", nil)
		return
	}
	filename := fmt.Sprintf("analytics_export_%s.xlsx", h.Svc.now().UTC().Format(dateLayout))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ferr *FetchError
	switch {
	case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidWindow):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrPaginationLimit):
		common.JSONError(w, http.StatusBadGateway, "PAGINATION_LIMIT", "too many orders in the selected range; narrow the dates", nil)
	case errors.As(err, &ferr):
		common.JSONError(w, http.StatusBadGateway, ferr.Code, ferr.Message, ferr.Details)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("analytics request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "analytics request failed", nil)
	}
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name := fe.Field()
	if name != "" {
		name = strings.ToLower(name[:1]) + name[1:]
	}
	if fe.Param() != "" {
		return fmt.Errorf("invalid %s: %q (%s %s)", name, fe.Value(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("invalid %s: %q", name, fe.Value())
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

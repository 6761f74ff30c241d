package analytics

import (
	"encoding/json"
	"strings"
)

const (
	topProductsLimit = 10
	tableProducts    = 20
	legendProducts   = 5
	// FocusAll disables product focus.
	FocusAll = "all"
)

// Query is a validated analytics request.
type Query struct {
	Start        string
	End          string
	Preset       Preset
	Granularity  Granularity
	View         string
	Compare      CompareMode
	CompareScope CompareScope
	MomA         string
	MomB         string
	Chart        string
	Metric       string
	ChartScope   string
	ProductFocus string
}

// Filters echoes the effective request back to the caller.
type Filters struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	Granularity  string `json:"granularity"`
	Preset       string `json:"preset"`
	View         string `json:"view"`
	Compare      string `json:"compare"`
	Chart        string `json:"chart"`
	Metric       string `json:"metric"`
	ChartScope   string `json:"chartScope"`
	CompareScope string `json:"compareScope"`
	ProductFocus string `json:"productFocus"`
	MomA         string `json:"momA,omitempty"`
	MomB         string `json:"momB,omitempty"`
}

// ProductQtyView is a ranked product by quantity.
type ProductQtyView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
}

// ProductSalesView is a ranked product by allocated sales.
type ProductSalesView struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Sales float64 `json:"sales"`
}

// SeriesPoint is one bucket of the time series.
type SeriesPoint struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Quantity int     `json:"quantity"`
	Sales    float64 `json:"sales"`
}

// TableRow is one bucket of the quantity pivot. It encodes flat: key, label and one field
// per product id.
type TableRow struct {
	Key        string
	Label      string
	Quantities map[string]int
}

func (r TableRow) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Quantities)+2)
	for id, qty := range r.Quantities {
		flat[id] = qty
	}
	flat["key"] = r.Key
	flat["label"] = r.Label
	return json.Marshal(flat)
}

// TotalsView holds the window totals.
type TotalsView struct {
	Qty           int      `json:"qty"`
	Sales         float64  `json:"sales"`
	Currency      string   `json:"currency"`
	MixedCurrency bool     `json:"mixedCurrency"`
	Currencies    []string `json:"currencies"`
}

// PairView is a quantity/sales pair.
type PairView struct {
	Qty   int     `json:"qty"`
	Sales float64 `json:"sales"`
}

// DeltaView carries absolute and percent deltas; percents are null when not computable.
type DeltaView struct {
	Qty      int      `json:"qty"`
	QtyPct   *float64 `json:"qtyPct"`
	Sales    float64  `json:"sales"`
	SalesPct *float64 `json:"salesPct"`
}

// DateRange is an inclusive YYYY-MM-DD range.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ComparisonCard is the headline comparison.
type ComparisonCard struct {
	Mode      string    `json:"mode"`
	Current   PairView  `json:"current"`
	Previous  PairView  `json:"previous"`
	Deltas    DeltaView `json:"deltas"`
	PrevRange DateRange `json:"prevRange"`
}

// ComparisonRowView is a comparison table row.
type ComparisonRowView struct {
	Label         string   `json:"label"`
	QtyCurr       int      `json:"qtyCurr"`
	QtyPrev       int      `json:"qtyPrev"`
	QtyDelta      int      `json:"qtyDelta"`
	QtyDeltaPct   *float64 `json:"qtyDeltaPct"`
	SalesCurr     float64  `json:"salesCurr"`
	SalesPrev     float64  `json:"salesPrev"`
	SalesDelta    float64  `json:"salesDelta"`
	SalesDeltaPct *float64 `json:"salesDeltaPct"`
}

// ProductCell is a product's share of one bucket.
type ProductCell struct {
	Qty   int     `json:"qty"`
	Sales float64 `json:"sales"`
	Title string  `json:"title"`
}

// ProductBucket is one bucket of the per-product series.
type ProductBucket struct {
	Key   string                 `json:"key"`
	Label string                 `json:"label"`
	Per   map[string]ProductCell `json:"per"`
}

// LinePoint is one point of a product line.
type LinePoint struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Qty   int     `json:"qty"`
	Sales float64 `json:"sales"`
}

// ProductLine is the series of one product across buckets.
type ProductLine struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Points []LinePoint `json:"points"`
}

// Report is the analytics response body. Error and Message are set instead of the data
// fields when the upstream fetch failed.
type Report struct {
	TopProducts        []ProductQtyView    `json:"topProducts"`
	TopProductsBySales []ProductSalesView  `json:"topProductsBySales"`
	Series             []SeriesPoint       `json:"series"`
	Table              []TableRow          `json:"table"`
	Headers            []ProductRef        `json:"headers"`
	Totals             TotalsView          `json:"totals"`
	Comparison         *ComparisonCard     `json:"comparison"`
	ComparisonTable    []ComparisonRowView `json:"comparisonTable"`
	ComparisonHeaders  []string            `json:"comparisonHeaders"`
	SeriesProduct      []ProductBucket     `json:"seriesProduct"`
	SeriesProductLines []ProductLine       `json:"seriesProductLines"`
	ProductLegend      []ProductRef        `json:"productLegend"`
	MomMonths          []BucketRef         `json:"momMonths"`
	Filters            Filters             `json:"filters"`
	Shop               string              `json:"shop"`
	Warnings           []string            `json:"warnings"`
	Error              string              `json:"error,omitempty"`
	Message            string              `json:"message,omitempty"`
}

// ReportInput is everything BuildReport reads. Previous is nil when no comparison was asked for.
type ReportInput struct {
	Shop     string
	Query    Query
	Current  *Aggregation
	Previous *Aggregation
}

// BuildReport assembles the response from aggregated windows.
func BuildReport(in ReportInput) Report {
	a := in.Current
	r := Report{
		Filters:  filtersOf(in.Query, a.Window),
		Shop:     in.Shop,
		Warnings: []string{},
		Totals: TotalsView{
			Qty:           a.TotalQuantity,
			Sales:         money(a.TotalSales),
			Currency:      a.Currency,
			MixedCurrency: a.MixedCurrency,
			Currencies:    append([]string{}, a.Currencies...),
		},
	}
	r.Warnings = append(r.Warnings, a.Warnings()...)

	byQty := a.TopByQuantity(0)
	for _, p := range head(byQty, topProductsLimit) {
		r.TopProducts = append(r.TopProducts, ProductQtyView{ID: p.ID, Title: p.Title, Quantity: p.Quantity})
	}
	for _, p := range a.TopBySales(topProductsLimit) {
		r.TopProductsBySales = append(r.TopProductsBySales, ProductSalesView{ID: p.ID, Title: p.Title, Sales: money(p.Sales)})
	}

	tableIDs := make([]string, 0, tableProducts)
	for _, p := range head(byQty, tableProducts) {
		tableIDs = append(tableIDs, p.ID)
		r.Headers = append(r.Headers, ProductRef{ID: p.ID, Title: p.Title})
	}
	legend := make([]ProductRef, 0, legendProducts+1)
	for _, p := range head(byQty, legendProducts) {
		legend = append(legend, ProductRef{ID: p.ID, Title: p.Title})
	}
	focus := strings.TrimSpace(in.Query.ProductFocus)
	if focus != "" && focus != FocusAll {
		if pt, ok := a.Product(focus); ok && !containsRef(legend, focus) {
			legend = append(legend, ProductRef{ID: pt.ID, Title: pt.Title})
		}
	}
	r.ProductLegend = legend
	lineRefs := legend
	if focus != "" && focus != FocusAll && containsRef(legend, focus) {
		lineRefs = []ProductRef{{ID: focus, Title: a.Title(focus)}}
	}

	lines := make([]ProductLine, len(lineRefs))
	for i, ref := range lineRefs {
		lines[i] = ProductLine{ID: ref.ID, Title: ref.Title, Points: []LinePoint{}}
	}
	for _, b := range a.buckets {
		r.Series = append(r.Series, SeriesPoint{Key: b.Key, Label: b.Label, Quantity: b.Quantity, Sales: money(b.Sales)})

		row := TableRow{Key: b.Key, Label: b.Label, Quantities: make(map[string]int, len(tableIDs))}
		for _, id := range tableIDs {
			row.Quantities[id] = a.Quantity(b.Key, id)
		}
		r.Table = append(r.Table, row)

		pb := ProductBucket{Key: b.Key, Label: b.Label, Per: make(map[string]ProductCell, len(lineRefs))}
		for i, ref := range lineRefs {
			cell := a.Cell(b.Key, ref.ID)
			pb.Per[ref.ID] = ProductCell{Qty: cell.Quantity, Sales: money(cell.Sales), Title: ref.Title}
			lines[i].Points = append(lines[i].Points, LinePoint{Key: b.Key, Label: b.Label, Qty: cell.Quantity, Sales: money(cell.Sales)})
		}
		r.SeriesProduct = append(r.SeriesProduct, pb)
	}
	r.SeriesProductLines = lines

	if in.Query.Compare != CompareNone && in.Previous != nil {
		if s := Summarize(in.Query.Compare, a, in.Previous); s != nil {
			r.Comparison = cardOf(s)
		}
		for _, w := range in.Previous.Warnings() {
			r.Warnings = append(r.Warnings, "previous period: "+w)
		}
		table := Compare(ComparisonInput{
			Mode:     in.Query.Compare,
			Scope:    in.Query.CompareScope,
			MonthA:   in.Query.MomA,
			MonthB:   in.Query.MomB,
			Current:  a,
			Previous: in.Previous,
		})
		if table != nil {
			r.ComparisonHeaders = table.Headers
			r.ComparisonTable = make([]ComparisonRowView, 0, len(table.Rows))
			for _, row := range table.Rows {
				r.ComparisonTable = append(r.ComparisonTable, rowView(row))
			}
			r.MomMonths = table.Months
		}
	}
	fillEmpty(&r)
	return r
}

// ErrorReport is the success-with-error-tag body returned when orders could not be loaded.
// It still echoes the effective filters.
func ErrorReport(shop string, q Query, w Window, code, message string) Report {
	r := Report{Shop: shop, Filters: filtersOf(q, w), Error: code, Message: message, Warnings: []string{}}
	fillEmpty(&r)
	return r
}

func fillEmpty(r *Report) {
	if r.TopProducts == nil {
		r.TopProducts = []ProductQtyView{}
	}
	if r.TopProductsBySales == nil {
		r.TopProductsBySales = []ProductSalesView{}
	}
	if r.Series == nil {
		r.Series = []SeriesPoint{}
	}
	if r.Table == nil {
		r.Table = []TableRow{}
	}
	if r.Headers == nil {
		r.Headers = []ProductRef{}
	}
	if r.SeriesProduct == nil {
		r.SeriesProduct = []ProductBucket{}
	}
	if r.SeriesProductLines == nil {
		r.SeriesProductLines = []ProductLine{}
	}
	if r.ProductLegend == nil {
		r.ProductLegend = []ProductRef{}
	}
	if r.MomMonths == nil {
		r.MomMonths = []BucketRef{}
	}
	if r.Totals.Currencies == nil {
		r.Totals.Currencies = []string{}
	}
}

func filtersOf(q Query, w Window) Filters {
	focus := q.ProductFocus
	if focus == "" {
		focus = FocusAll
	}
	return Filters{
		Start:        w.StartDate(),
		End:          w.EndDate(),
		Granularity:  string(q.Granularity),
		Preset:       string(q.Preset),
		View:         q.View,
		Compare:      string(q.Compare),
		Chart:        q.Chart,
		Metric:       q.Metric,
		ChartScope:   q.ChartScope,
		CompareScope: string(q.CompareScope),
		ProductFocus: focus,
		MomA:         q.MomA,
		MomB:         q.MomB,
	}
}

func cardOf(s *Summary) *ComparisonCard {
	return &ComparisonCard{
		Mode:     string(s.Mode),
		Current:  PairView{Qty: s.Current.Quantity, Sales: money(s.Current.Sales)},
		Previous: PairView{Qty: s.Previous.Quantity, Sales: money(s.Previous.Sales)},
		Deltas: DeltaView{
			Qty:      s.Deltas.QtyDelta,
			QtyPct:   s.Deltas.QtyDeltaPct,
			Sales:    money(s.Deltas.SalesDelta),
			SalesPct: s.Deltas.SalesDeltaPct,
		},
		PrevRange: DateRange{Start: s.PrevRange.StartDate(), End: s.PrevRange.EndDate()},
	}
}

func rowView(r ComparisonRow) ComparisonRowView {
	return ComparisonRowView{
		Label:         r.Label,
		QtyCurr:       r.QtyCurrent,
		QtyPrev:       r.QtyPrevious,
		QtyDelta:      r.QtyDelta,
		QtyDeltaPct:   r.QtyDeltaPct,
		SalesCurr:     money(r.SalesCurrent),
		SalesPrev:     money(r.SalesPrevious),
		SalesDelta:    money(r.SalesDelta),
		SalesDeltaPct: r.SalesDeltaPct,
	}
}

func containsRef(refs []ProductRef, id string) bool {
	for _, r := range refs {
		if r.ID == id {
			return true
		}
	}
	return false
}

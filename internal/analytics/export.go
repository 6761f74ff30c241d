package analytics

import "github.com/shopspring/decimal"

// Format is the number-format intent of a sheet column.
type Format int

const (
	FormatText Format = iota
	FormatInteger
	FormatMoney
	FormatPercent
)

// NumFmt returns the spreadsheet number format code, empty for text.
func (f Format) NumFmt() string {
	switch f {
	case FormatInteger:
		return "#,##0"
	case FormatMoney:
		return "#,##0.00"
	case FormatPercent:
		return "0.0"
	default:
		return ""
	}
}

// Column is a sheet header with its format intent.
type Column struct {
	Header string
	Format Format
}

// Sheet is one named table of an export. Cells are string, int, float64 or nil (empty).
type Sheet struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

const (
	byProductQtyColumns = 20
	topProductsRows     = 50
)

// ExportInput carries an aggregation plus the comparison request used by the display path.
type ExportInput struct {
	Current    *Aggregation
	Comparison ComparisonInput
}

// BuildSheets lays out the workbook tables for an aggregation. Comparison sheets are
// rendered from Compare so they match what the report shows.
func BuildSheets(in ExportInput) []Sheet {
	a := in.Current
	if a == nil {
		return nil
	}
	sheets := []Sheet{
		salesOverTimeSheet(a),
		byProductQtySheet(a),
		topProductsQtySheet(a),
		topProductsSalesSheet(a),
	}

	cmp := in.Comparison
	cmp.Current = a
	switch cmp.Mode {
	case CompareMoM:
		cmp.Scope = ScopeAggregate
		if t := Compare(cmp); t != nil {
			sheets = append(sheets, comparisonSheet("MoM_Aggregate", t))
		}
		if in.Comparison.Scope == ScopeProduct {
			cmp.Scope = ScopeProduct
			if t := Compare(cmp); t != nil {
				sheets = append(sheets, comparisonSheet("MoM_ByProduct", t))
			}
		}
	case CompareYoY:
		cmp.Scope = ScopeAggregate
		if t := Compare(cmp); t != nil && len(t.Rows) > 0 {
			sheets = append(sheets, periodTotalsSheet("YoY_Aggregate", t.Rows[0]))
		}
		if in.Comparison.Scope == ScopeProduct {
			cmp.Scope = ScopeProduct
			if t := Compare(cmp); t != nil {
				sheets = append(sheets, comparisonSheet("YoY_ByProduct", t))
			}
		}
	}
	return sheets
}

func salesOverTimeSheet(a *Aggregation) Sheet {
	s := Sheet{
		Name:    "SalesOverTime",
		Columns: []Column{{"Period", FormatText}, {"Quantity", FormatInteger}, {"Sales", FormatMoney}},
	}
	for _, b := range a.buckets {
		s.Rows = append(s.Rows, []any{b.Label, b.Quantity, money(b.Sales)})
	}
	return s
}

func byProductQtySheet(a *Aggregation) Sheet {
	top := a.TopByQuantity(byProductQtyColumns)
	s := Sheet{Name: "ByProduct_Qty", Columns: []Column{{"Period", FormatText}}}
	for _, p := range top {
		s.Columns = append(s.Columns, Column{p.Title, FormatInteger})
	}
	for _, b := range a.buckets {
		row := []any{b.Label}
		for _, p := range top {
			row = append(row, a.Quantity(b.Key, p.ID))
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

func topProductsQtySheet(a *Aggregation) Sheet {
	s := Sheet{
		Name:    "TopProducts_Qty",
		Columns: []Column{{"Product", FormatText}, {"Quantity", FormatInteger}},
	}
	for _, p := range a.TopByQuantity(topProductsRows) {
		s.Rows = append(s.Rows, []any{p.Title, p.Quantity})
	}
	return s
}

func topProductsSalesSheet(a *Aggregation) Sheet {
	s := Sheet{
		Name:    "TopProducts_Sales",
		Columns: []Column{{"Product", FormatText}, {"Sales", FormatMoney}},
	}
	for _, p := range a.TopBySales(topProductsRows) {
		s.Rows = append(s.Rows, []any{p.Title, money(p.Sales)})
	}
	return s
}

func comparisonSheet(name string, t *ComparisonTable) Sheet {
	label := "Period"
	if t.Kind == TableMoMProduct || t.Kind == TableYoYProduct {
		label = "Product"
	}
	s := Sheet{
		Name: name,
		Columns: []Column{
			{label, FormatText},
			{"Qty (Curr)", FormatInteger},
			{"Qty (Prev)", FormatInteger},
			{"Qty Δ", FormatInteger},
			{"Qty Δ%", FormatPercent},
			{"Sales (Curr)", FormatMoney},
			{"Sales (Prev)", FormatMoney},
			{"Sales Δ", FormatMoney},
			{"Sales Δ%", FormatPercent},
		},
	}
	for _, r := range t.Rows {
		s.Rows = append(s.Rows, []any{
			r.Label,
			r.QtyCurrent, r.QtyPrevious, r.QtyDelta, pctCell(r.QtyDeltaPct),
			money(r.SalesCurrent), money(r.SalesPrevious), money(r.SalesDelta), pctCell(r.SalesDeltaPct),
		})
	}
	return s
}

func periodTotalsSheet(name string, r ComparisonRow) Sheet {
	return Sheet{
		Name: name,
		Columns: []Column{
			{"Metric", FormatText},
			{"Current", FormatMoney},
			{"Previous", FormatMoney},
			{"Change", FormatMoney},
			{"% Change", FormatPercent},
		},
		Rows: [][]any{
			{"Quantity", float64(r.QtyCurrent), float64(r.QtyPrevious), float64(r.QtyDelta), pctCell(r.QtyDeltaPct)},
			{"Sales", money(r.SalesCurrent), money(r.SalesPrevious), money(r.SalesDelta), pctCell(r.SalesDeltaPct)},
		},
	}
}

func pctCell(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CompareMode selects the period-over-period comparison.
type CompareMode string

const (
	CompareNone CompareMode = "none"
	CompareMoM  CompareMode = "mom"
	CompareYoY  CompareMode = "yoy"
)

// CompareScope selects whole-store or per-product comparison.
type CompareScope string

const (
	ScopeAggregate CompareScope = "aggregate"
	ScopeProduct   CompareScope = "product"
)

const (
	momProductRowLimit    = 100
	periodProductRowLimit = 50
)

// TableKind names the shape of a comparison table.
type TableKind string

const (
	TableMoMAggregate TableKind = "mom_aggregate"
	TableMoMProduct   TableKind = "mom_product"
	TableYoYAggregate TableKind = "yoy_aggregate"
	TableYoYProduct   TableKind = "yoy_product"
)

var deltaHeaders = []string{"Qty (Curr)", "Qty (Prev)", "Qty Δ", "Qty Δ%", "Sales (Curr)", "Sales (Prev)", "Sales Δ", "Sales Δ%"}

// ParseCompareMode maps a query value onto a mode, defaulting to none.
func ParseCompareMode(raw string) CompareMode {
	switch CompareMode(strings.ToLower(strings.TrimSpace(raw))) {
	case CompareMoM:
		return CompareMoM
	case CompareYoY:
		return CompareYoY
	default:
		return CompareNone
	}
}

// ParseCompareScope maps a query value onto a scope, defaulting to aggregate.
func ParseCompareScope(raw string) CompareScope {
	if CompareScope(strings.ToLower(strings.TrimSpace(raw))) == ScopeProduct {
		return ScopeProduct
	}
	return ScopeAggregate
}

// Totals is a quantity/sales pair.
type Totals struct {
	Quantity int
	Sales    decimal.Decimal
}

// ComparisonRow compares one label across the previous (A) and current (B) periods.
// Percentages are nil when the previous value is zero.
type ComparisonRow struct {
	Label         string
	QtyCurrent    int
	QtyPrevious   int
	QtyDelta      int
	QtyDeltaPct   *float64
	SalesCurrent  decimal.Decimal
	SalesPrevious decimal.Decimal
	SalesDelta    decimal.Decimal
	SalesDeltaPct *float64
}

// NewComparisonRow computes deltas of current against previous.
func NewComparisonRow(label string, current, previous Totals) ComparisonRow {
	return ComparisonRow{
		Label:         label,
		QtyCurrent:    current.Quantity,
		QtyPrevious:   previous.Quantity,
		QtyDelta:      current.Quantity - previous.Quantity,
		QtyDeltaPct:   PercentChange(decimal.NewFromInt(int64(current.Quantity)), decimal.NewFromInt(int64(previous.Quantity))),
		SalesCurrent:  current.Sales,
		SalesPrevious: previous.Sales,
		SalesDelta:    current.Sales.Sub(previous.Sales),
		SalesDeltaPct: PercentChange(current.Sales, previous.Sales),
	}
}

// PercentChange returns (current-previous)/previous*100, or nil when previous is zero.
func PercentChange(current, previous decimal.Decimal) *float64 {
	if previous.IsZero() {
		return nil
	}
	pct := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).InexactFloat64()
	return &pct
}

// ComparisonTable is the output of Compare.
type ComparisonTable struct {
	Kind    TableKind
	Headers []string
	Rows    []ComparisonRow
	// Months lists the months available for explicit A/B selection (mom only).
	Months []BucketRef
	// MonthA and MonthB are the pair compared by a product-scoped mom table.
	MonthA string
	MonthB string
}

// ComparisonInput gathers what Compare needs. Previous is the aggregation of the previous
// window and is only read by yoy tables.
type ComparisonInput struct {
	Mode     CompareMode
	Scope    CompareScope
	MonthA   string
	MonthB   string
	Current  *Aggregation
	Previous *Aggregation
}

// Compare builds the comparison table for the mode and scope. It returns nil when no
// comparison is requested.
func Compare(in ComparisonInput) *ComparisonTable {
	if in.Current == nil {
		return nil
	}
	switch in.Mode {
	case CompareMoM:
		if in.Scope == ScopeProduct {
			return compareMonthsByProduct(in.Current, in.MonthA, in.MonthB)
		}
		return compareMonths(in.Current, in.MonthA, in.MonthB)
	case CompareYoY:
		previous := in.Previous
		if previous == nil {
			previous = newAggregation(in.Current.Granularity, PreviousWindow(in.Current.Window, CompareYoY))
		}
		if in.Scope == ScopeProduct {
			return comparePeriodsByProduct(in.Current, previous)
		}
		return comparePeriods(in.Current, previous)
	default:
		return nil
	}
}

type monthTotals struct {
	ref    BucketRef
	totals Totals
}

// monthly collapses buckets into calendar months in ascending order.
func monthly(a *Aggregation) []monthTotals {
	var out []monthTotals
	pos := map[string]int{}
	for _, b := range a.buckets {
		key, ok := MonthKeyOf(b.Key)
		if !ok {
			continue
		}
		idx, seen := pos[key]
		if !seen {
			out = append(out, monthTotals{ref: MonthRef(key)})
			idx = len(out) - 1
			pos[key] = idx
		}
		out[idx].totals.Quantity += b.Quantity
		out[idx].totals.Sales = out[idx].totals.Sales.Add(b.Sales)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ref.Key < out[j].ref.Key })
	return out
}

func monthRefs(months []monthTotals) []BucketRef {
	refs := make([]BucketRef, 0, len(months))
	for _, m := range months {
		refs = append(refs, m.ref)
	}
	return refs
}

func compareMonths(a *Aggregation, monthA, monthB string) *ComparisonTable {
	months := monthly(a)
	table := &ComparisonTable{
		Kind:    TableMoMAggregate,
		Headers: append([]string{"Period"}, deltaHeaders...),
		Months:  monthRefs(months),
		Rows:    []ComparisonRow{},
	}
	find := func(key string) (monthTotals, bool) {
		for _, m := range months {
			if m.ref.Key == key {
				return m, true
			}
		}
		return monthTotals{}, false
	}
	if monthA != "" && monthB != "" {
		prev, okA := find(monthA)
		curr, okB := find(monthB)
		if okA && okB {
			table.MonthA, table.MonthB = monthA, monthB
			table.Rows = append(table.Rows, NewComparisonRow(pairLabel(prev.ref, curr.ref), curr.totals, prev.totals))
			return table
		}
	}
	for i := 1; i < len(months); i++ {
		prev, curr := months[i-1], months[i]
		table.Rows = append(table.Rows, NewComparisonRow(pairLabel(prev.ref, curr.ref), curr.totals, prev.totals))
	}
	return table
}

type productMonth struct {
	totals map[string]Totals
	order  []string
}

func compareMonthsByProduct(a *Aggregation, monthA, monthB string) *ComparisonTable {
	byMonth := map[string]*productMonth{}
	var keys []string
	for _, b := range a.buckets {
		key, ok := MonthKeyOf(b.Key)
		if !ok {
			continue
		}
		pm, seen := byMonth[key]
		if !seen {
			pm = &productMonth{totals: map[string]Totals{}}
			byMonth[key] = pm
			keys = append(keys, key)
		}
		for _, id := range a.BucketProducts(b.Key) {
			t, seen := pm.totals[id]
			if !seen {
				pm.order = append(pm.order, id)
			}
			t.Quantity += a.Quantity(b.Key, id)
			t.Sales = t.Sales.Add(allocate(a.Quantity(b.Key, id), b))
			pm.totals[id] = t
		}
	}
	sort.Strings(keys)

	table := &ComparisonTable{Kind: TableMoMProduct, Rows: []ComparisonRow{}}
	for _, k := range keys {
		table.Months = append(table.Months, MonthRef(k))
	}
	_, okA := byMonth[monthA]
	_, okB := byMonth[monthB]
	if monthA == "" || monthB == "" || !okA || !okB {
		monthA, monthB = "", ""
		if len(keys) >= 2 {
			monthA, monthB = keys[len(keys)-2], keys[len(keys)-1]
		}
	}
	table.MonthA, table.MonthB = monthA, monthB
	table.Headers = append([]string{fmt.Sprintf("Product (%s → %s)", monthLabel(monthA), monthLabel(monthB))}, deltaHeaders...)

	prev, curr := byMonth[monthA], byMonth[monthB]
	if prev == nil {
		prev = &productMonth{totals: map[string]Totals{}}
	}
	if curr == nil {
		curr = &productMonth{totals: map[string]Totals{}}
	}
	ids := union(prev.order, curr.order)
	for _, id := range ids {
		table.Rows = append(table.Rows, NewComparisonRow(a.Title(id), curr.totals[id], prev.totals[id]))
	}
	table.Rows = rankBySalesDelta(table.Rows, momProductRowLimit)
	return table
}

func comparePeriods(current, previous *Aggregation) *ComparisonTable {
	label := fmt.Sprintf("%s – %s vs %s – %s",
		current.Window.StartDate(), current.Window.EndDate(), previous.Window.StartDate(), previous.Window.EndDate())
	return &ComparisonTable{
		Kind:    TableYoYAggregate,
		Headers: append([]string{"Period"}, deltaHeaders...),
		Rows:    []ComparisonRow{NewComparisonRow(label, current.Totals(), previous.Totals())},
	}
}

func comparePeriodsByProduct(current, previous *Aggregation) *ComparisonTable {
	curSales := current.SalesByProduct()
	prevSales := previous.SalesByProduct()
	ids := union(current.order, previous.order)
	rows := make([]ComparisonRow, 0, len(ids))
	for _, id := range ids {
		title := id
		if pt, ok := current.products[id]; ok {
			title = pt.Title
		} else if pt, ok := previous.products[id]; ok {
			title = pt.Title
		}
		var cur, prev Totals
		if pt, ok := current.products[id]; ok {
			cur = Totals{Quantity: pt.Quantity, Sales: curSales[id]}
		}
		if pt, ok := previous.products[id]; ok {
			prev = Totals{Quantity: pt.Quantity, Sales: prevSales[id]}
		}
		rows = append(rows, NewComparisonRow(title, cur, prev))
	}
	return &ComparisonTable{
		Kind:    TableYoYProduct,
		Headers: append([]string{"Product"}, deltaHeaders...),
		Rows:    rankBySalesDelta(rows, periodProductRowLimit),
	}
}

// Totals returns the window totals.
func (a *Aggregation) Totals() Totals {
	return Totals{Quantity: a.TotalQuantity, Sales: a.TotalSales}
}

// Summary is the headline comparison of the current window against the previous one.
type Summary struct {
	Mode      CompareMode
	Current   Totals
	Previous  Totals
	Deltas    ComparisonRow
	PrevRange Window
}

// Summarize compares window totals. previous may be empty but not nil.
func Summarize(mode CompareMode, current, previous *Aggregation) *Summary {
	if current == nil || previous == nil || mode == CompareNone {
		return nil
	}
	return &Summary{
		Mode:      mode,
		Current:   current.Totals(),
		Previous:  previous.Totals(),
		Deltas:    NewComparisonRow(string(mode), current.Totals(), previous.Totals()),
		PrevRange: previous.Window,
	}
}

func rankBySalesDelta(rows []ComparisonRow, limit int) []ComparisonRow {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].SalesDelta.GreaterThan(rows[j].SalesDelta) })
	return head(rows, limit)
}

func union(first, second []string) []string {
	seen := make(map[string]struct{}, len(first)+len(second))
	out := make([]string, 0, len(first)+len(second))
	for _, list := range [][]string{first, second} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func pairLabel(a, b BucketRef) string {
	return a.Label + " → " + b.Label
}

func monthLabel(key string) string {
	if key == "" {
		return ""
	}
	return MonthRef(key).Label
}

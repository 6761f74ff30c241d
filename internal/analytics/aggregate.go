package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Bucket holds the totals of one time period.
type Bucket struct {
	Key      string
	Label    string
	Quantity int
	Sales    decimal.Decimal
}

// ProductTotal holds the totals of one product across the window. Sales is the sum of the
// product's observed line totals.
type ProductTotal struct {
	ID       string
	Title    string
	Quantity int
	Sales    decimal.Decimal
}

// Aggregation is the result of bucketing one window of orders.
type Aggregation struct {
	Granularity Granularity
	Window      Window

	TotalQuantity int
	TotalSales    decimal.Decimal
	// Currency is the first currency code seen; Currencies lists every distinct code.
	Currency         string
	Currencies       []string
	MixedCurrency    bool
	MalformedAmounts int
	Orders           int

	buckets  []Bucket
	index    map[string]int
	products map[string]*ProductTotal
	order    []string
	pivot    map[string]map[string]int
}

// Aggregate buckets the orders of a window. Malformed amounts count as zero and are logged
// through the context logger.
func Aggregate(ctx context.Context, orders []Order, g Granularity, w Window) *Aggregation {
	logger := zerolog.Ctx(ctx)
	a := newAggregation(g, w)
	if g == GranularityMonth {
		for _, key := range w.Months() {
			a.bucket(MonthRef(key))
		}
	}
	for _, o := range orders {
		a.Orders++
		ref := BucketKey(o.ProcessedAt, g)
		idx := a.bucket(ref)
		row := a.pivot[ref.Key]
		for _, li := range o.LineItems {
			qty := li.Quantity
			if qty < 0 {
				qty = 0
			}
			product := li.Identity()
			amount := a.amount(li.DiscountedTotal, logger, o.ID)

			a.buckets[idx].Quantity += qty
			a.buckets[idx].Sales = a.buckets[idx].Sales.Add(amount)
			a.TotalQuantity += qty
			a.TotalSales = a.TotalSales.Add(amount)

			pt, ok := a.products[product.ID]
			if !ok {
				pt = &ProductTotal{ID: product.ID, Title: product.Title}
				a.products[product.ID] = pt
				a.order = append(a.order, product.ID)
			}
			pt.Quantity += qty
			pt.Sales = pt.Sales.Add(amount)
			row[product.ID] += qty
		}
	}
	a.sortBuckets()
	return a
}

func newAggregation(g Granularity, w Window) *Aggregation {
	return &Aggregation{
		Granularity: g,
		Window:      w,
		index:       map[string]int{},
		products:    map[string]*ProductTotal{},
		pivot:       map[string]map[string]int{},
	}
}

func (a *Aggregation) bucket(ref BucketRef) int {
	if idx, ok := a.index[ref.Key]; ok {
		return idx
	}
	a.buckets = append(a.buckets, Bucket{Key: ref.Key, Label: ref.Label})
	a.index[ref.Key] = len(a.buckets) - 1
	a.pivot[ref.Key] = map[string]int{}
	return len(a.buckets) - 1
}

func (a *Aggregation) amount(m *Money, logger *zerolog.Logger, orderID string) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	if code := strings.ToUpper(strings.TrimSpace(m.CurrencyCode)); code != "" {
		a.noteCurrency(code)
	}
	raw := strings.TrimSpace(m.Amount)
	if raw == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		a.MalformedAmounts++
		logger.Warn().Str("order_id", orderID).Str("amount", raw).Msg("unparseable line amount counted as zero")
		return decimal.Zero
	}
	return amount
}

func (a *Aggregation) noteCurrency(code string) {
	if a.Currency == "" {
		a.Currency = code
	}
	for _, seen := range a.Currencies {
		if seen == code {
			return
		}
	}
	a.Currencies = append(a.Currencies, code)
	a.MixedCurrency = len(a.Currencies) > 1
}

func (a *Aggregation) sortBuckets() {
	sort.SliceStable(a.buckets, func(i, j int) bool { return a.buckets[i].Key < a.buckets[j].Key })
	for i, b := range a.buckets {
		a.index[b.Key] = i
	}
}

// Buckets returns the buckets in ascending key order.
func (a *Aggregation) Buckets() []Bucket {
	out := make([]Bucket, len(a.buckets))
	copy(out, a.buckets)
	return out
}

// Bucket looks up a bucket by key.
func (a *Aggregation) Bucket(key string) (Bucket, bool) {
	idx, ok := a.index[key]
	if !ok {
		return Bucket{}, false
	}
	return a.buckets[idx], true
}

// Products returns product totals in the order products were first encountered.
func (a *Aggregation) Products() []ProductTotal {
	out := make([]ProductTotal, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.products[id])
	}
	return out
}

// Product looks up the totals of one product.
func (a *Aggregation) Product(id string) (ProductTotal, bool) {
	pt, ok := a.products[id]
	if !ok {
		return ProductTotal{}, false
	}
	return *pt, true
}

// Title returns the display title for a product id, falling back to the id itself.
func (a *Aggregation) Title(id string) string {
	if pt, ok := a.products[id]; ok {
		return pt.Title
	}
	return id
}

// Quantity returns the observed quantity of a product within a bucket.
func (a *Aggregation) Quantity(bucketKey, productID string) int {
	return a.pivot[bucketKey][productID]
}

// BucketProducts lists the product ids present in a bucket in encounter order.
func (a *Aggregation) BucketProducts(bucketKey string) []string {
	row := a.pivot[bucketKey]
	if len(row) == 0 {
		return nil
	}
	ids := make([]string, 0, len(row))
	for _, id := range a.order {
		if _, ok := row[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Warnings describes data quality issues found while aggregating.
func (a *Aggregation) Warnings() []string {
	var out []string
	if a.MixedCurrency {
		out = append(out, fmt.Sprintf("mixed currencies (%s): sales are summed without conversion and shown in %s",
			strings.Join(a.Currencies, ", "), a.Currency))
	}
	if a.MalformedAmounts > 0 {
		out = append(out, fmt.Sprintf("%d line amounts could not be parsed and were counted as zero", a.MalformedAmounts))
	}
	return out
}

// ProductQuantity is a product ranked by quantity.
type ProductQuantity struct {
	ID       string
	Title    string
	Quantity int
}

// ProductSales is a product ranked by allocated sales.
type ProductSales struct {
	ID    string
	Title string
	Sales decimal.Decimal
}

// TopByQuantity ranks products by quantity, ties in encounter order. n <= 0 returns all.
func (a *Aggregation) TopByQuantity(n int) []ProductQuantity {
	out := make([]ProductQuantity, 0, len(a.order))
	for _, id := range a.order {
		pt := a.products[id]
		out = append(out, ProductQuantity{ID: pt.ID, Title: pt.Title, Quantity: pt.Quantity})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity > out[j].Quantity })
	return head(out, n)
}

// TopBySales ranks products by allocated sales, ties in encounter order. n <= 0 returns all.
func (a *Aggregation) TopBySales(n int) []ProductSales {
	sales := a.SalesByProduct()
	out := make([]ProductSales, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, ProductSales{ID: id, Title: a.products[id].Title, Sales: sales[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sales.GreaterThan(out[j].Sales) })
	return head(out, n)
}

func head[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

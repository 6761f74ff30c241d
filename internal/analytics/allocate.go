package analytics

import "github.com/shopspring/decimal"

// Line items carry no per-product sales figure per bucket, so sales are split inside a
// bucket by quantity share. This assumes a uniform unit price within the bucket; it is a
// display approximation, not a ledger split.

// PivotCell is one (bucket, product) cell of the pivot.
type PivotCell struct {
	Quantity int
	Sales    decimal.Decimal
}

// AllocatedSales returns the share of the bucket's sales attributed to a product:
// (product qty / bucket qty) * bucket sales, or zero for an empty bucket.
func (a *Aggregation) AllocatedSales(bucketKey, productID string) decimal.Decimal {
	b, ok := a.Bucket(bucketKey)
	if !ok {
		return decimal.Zero
	}
	return allocate(a.Quantity(bucketKey, productID), b)
}

// Cell returns the quantity and allocated sales of a product within a bucket.
func (a *Aggregation) Cell(bucketKey, productID string) PivotCell {
	return PivotCell{
		Quantity: a.Quantity(bucketKey, productID),
		Sales:    a.AllocatedSales(bucketKey, productID),
	}
}

// SalesByProduct sums allocated sales per product across every bucket.
func (a *Aggregation) SalesByProduct() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(a.products))
	for _, id := range a.order {
		out[id] = decimal.Zero
	}
	for _, b := range a.buckets {
		for id, qty := range a.pivot[b.Key] {
			out[id] = out[id].Add(allocate(qty, b))
		}
	}
	return out
}

func allocate(qty int, b Bucket) decimal.Decimal {
	if b.Quantity == 0 || qty == 0 {
		return decimal.Zero
	}
	share := decimal.NewFromInt(int64(qty)).Div(decimal.NewFromInt(int64(b.Quantity)))
	return share.Mul(b.Sales)
}

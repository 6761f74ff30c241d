package analytics

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAllocatedSalesSumToBucketSales(t *testing.T) {
	orders := []Order{
		order("1", "2024-01-05T10:00:00Z", line("a", "Alpha", 1, "10.00"), line("b", "Beta", 2, "20.00")),
		order("2", "2024-01-05T12:00:00Z", line("c", "Gamma", 4, "7.77")),
		order("3", "2024-01-06T12:00:00Z", line("a", "Alpha", 3, "33.33")),
	}
	a := Aggregate(context.Background(), orders, GranularityDay, window("2024-01-01", "2024-01-31"))
	tolerance := decimal.RequireFromString("0.000001")

	for _, b := range a.Buckets() {
		if b.Quantity == 0 {
			continue
		}
		sum := decimal.Zero
		for _, id := range a.BucketProducts(b.Key) {
			sum = sum.Add(a.AllocatedSales(b.Key, id))
		}
		require.True(t, sum.Sub(b.Sales).Abs().LessThan(tolerance), "bucket %s: %s != %s", b.Key, sum, b.Sales)
	}
}

func TestAllocationSplitsByQuantityShare(t *testing.T) {
	orders := []Order{order("1", "2024-01-05T10:00:00Z", line("a", "Alpha", 1, "30.00"), line("b", "Beta", 3, "10.00"))}
	a := Aggregate(context.Background(), orders, GranularityDay, window("2024-01-01", "2024-01-31"))

	cell := a.Cell("2024-01-05", "a")
	require.Equal(t, 1, cell.Quantity)
	require.True(t, cell.Sales.Equal(decimal.NewFromInt(10)), cell.Sales.String())
	require.True(t, a.AllocatedSales("2024-01-05", "b").Equal(decimal.NewFromInt(30)))

	require.True(t, a.AllocatedSales("2024-01-05", "missing").IsZero())
	require.True(t, a.AllocatedSales("2024-02-01", "a").IsZero())
}

func TestAllocateEmptyBucket(t *testing.T) {
	require.True(t, allocate(3, Bucket{Quantity: 0, Sales: decimal.NewFromInt(5)}).IsZero())
}

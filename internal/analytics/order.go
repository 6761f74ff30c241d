package analytics

import (
	"context"
	"strings"
	"time"
)

// Order is the read-only order record consumed from the storefront.
type Order struct {
	ID          string
	Name        string
	ProcessedAt time.Time
	LineItems   []LineItem
}

// LineItem is one order line. Product is nil when the product was deleted or the line is
// not linked to one.
type LineItem struct {
	Quantity        int
	Title           string
	Product         *ProductRef
	DiscountedTotal *Money
}

// ProductRef identifies a product by id and display title.
type ProductRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Money is an amount in its decimal string form plus its ISO currency code.
type Money struct {
	Amount       string
	CurrencyCode string
}

const unknownProductTitle = "Unknown product"

// Identity resolves the product a line item is counted under. Unlinked lines get the
// synthetic id "li:<title>".
func (li LineItem) Identity() ProductRef {
	title := strings.TrimSpace(li.Title)
	if title == "" {
		title = unknownProductTitle
	}
	if li.Product != nil && strings.TrimSpace(li.Product.ID) != "" {
		pt := li.Product.Title
		if strings.TrimSpace(pt) == "" {
			pt = title
		}
		return ProductRef{ID: li.Product.ID, Title: pt}
	}
	return ProductRef{ID: "li:" + title, Title: title}
}

// PageRequest describes one page of the upstream order query.
type PageRequest struct {
	First int
	Query string
	After string
}

// PageInfo carries the cursor pagination state of a page.
type PageInfo struct {
	HasNextPage bool
	EndCursor   string
}

// OrderEdge pairs an order with its cursor.
type OrderEdge struct {
	Cursor string
	Node   Order
}

// OrdersPage is one page of the upstream order query.
type OrdersPage struct {
	Edges    []OrderEdge
	PageInfo PageInfo
}

// OrderSource is the cursor-paginated order query of the storefront.
type OrderSource interface {
	OrdersPage(ctx context.Context, req PageRequest) (OrdersPage, error)
}

// Connector hands out the order source for a shop. Implementations own the client lifecycle.
type Connector interface {
	OrderSource(ctx context.Context, shop string) (OrderSource, error)
}

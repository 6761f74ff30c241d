package analytics

import (
	"context"
	"sync"
	"time"
)

func at(date string) time.Time {
	t, err := time.Parse(time.RFC3339, date)
	if err != nil {
		panic(err)
	}
	return t
}

func window(start, end string) Window {
	w, err := ResolveWindow(time.Time{}, PresetCustom, start, end)
	if err != nil {
		panic(err)
	}
	return w
}

func line(id, title string, qty int, amount string) LineItem {
	li := LineItem{Quantity: qty, Title: title, DiscountedTotal: &Money{Amount: amount, CurrencyCode: "USD"}}
	if id != "" {
		li.Product = &ProductRef{ID: id, Title: title}
	}
	return li
}

func order(id, processedAt string, items ...LineItem) Order {
	return Order{ID: id, Name: "#" + id, ProcessedAt: at(processedAt), LineItems: items}
}

// quarterOrders spans Jan to Mar 2024 with growing volumes for two products.
func quarterOrders() []Order {
	return []Order{
		order("1", "2024-01-10T09:00:00Z", line("p1", "Widget", 1, "10.00")),
		order("2", "2024-02-10T09:00:00Z", line("p1", "Widget", 2, "20.00")),
		order("3", "2024-03-10T09:00:00Z", line("p1", "Widget", 3, "30.00"), line("p2", "Gadget", 1, "5.00")),
	}
}

// windowSource serves the orders registered for a window's search query, one page per call.
type windowSource struct {
	mu       sync.Mutex
	byQuery  map[string][]Order
	pageSize int
	calls    []PageRequest
}

func newWindowSource() *windowSource {
	return &windowSource{byQuery: map[string][]Order{}}
}

func (s *windowSource) add(w Window, orders ...Order) *windowSource {
	s.byQuery[w.SearchQuery()] = append(s.byQuery[w.SearchQuery()], orders...)
	return s
}

func (s *windowSource) OrdersPage(_ context.Context, req PageRequest) (OrdersPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	orders := s.byQuery[req.Query]
	size := s.pageSize
	if size <= 0 {
		size = req.First
	}
	offset := 0
	if req.After != "" {
		for i, o := range orders {
			if o.ID == req.After {
				offset = i + 1
				break
			}
		}
	}
	end := offset + size
	if end > len(orders) {
		end = len(orders)
	}
	var page OrdersPage
	for _, o := range orders[offset:end] {
		page.Edges = append(page.Edges, OrderEdge{Cursor: o.ID, Node: o})
	}
	page.PageInfo.HasNextPage = end < len(orders)
	if len(page.Edges) > 0 {
		page.PageInfo.EndCursor = page.Edges[len(page.Edges)-1].Cursor
	}
	return page, nil
}

func (s *windowSource) requests() []PageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PageRequest(nil), s.calls...)
}

type sourceFunc func(ctx context.Context, req PageRequest) (OrdersPage, error)

func (f sourceFunc) OrdersPage(ctx context.Context, req PageRequest) (OrdersPage, error) {
	return f(ctx, req)
}

func staticConnector(src OrderSource) Connector {
	return ConnectorFunc(func(context.Context, string) (OrderSource, error) { return src, nil })
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, shop string) (OrderSource, error)

// OrderSource implements Connector.
func (f ConnectorFunc) OrderSource(ctx context.Context, shop string) (OrderSource, error) {
	return f(ctx, shop)
}

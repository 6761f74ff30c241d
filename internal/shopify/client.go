package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/CamDog38/ShopDelta/internal/analytics"
	"github.com/CamDog38/ShopDelta/internal/resilience"
)

// DefaultAPIVersion is the Admin API version queried when none is configured.
const DefaultAPIVersion = "2024-10"

const maxResponseBytes = 32 << 20

// Client talks to the Admin API of any shop. It holds no per-shop state.
type Client struct {
	HTTP       resilience.HTTPClient
	APIVersion string
	// BaseURL replaces https://{shop} when set.
	BaseURL string
}

// Orders returns the order source of a shop authenticated with an offline access token.
func (c *Client) Orders(shop, accessToken string) analytics.OrderSource {
	return &orderSource{client: c, shop: shop, token: accessToken}
}

func (c *Client) shopURL(shop string) string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "https://" + shop
}

func (c *Client) graphqlURL(shop string) string {
	version := c.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", c.shopURL(shop), version)
}

type orderSource struct {
	client *Client
	shop   string
	token  string
}

const ordersQuery = `query Orders($first: Int!, $after: String, $search: String) {
  orders(first: $first, after: $after, sortKey: PROCESSED_AT, reverse: true, query: $search) {
    pageInfo { hasNextPage endCursor }
    edges {
      cursor
      node {
        id
        name
        processedAt
        lineItems(first: 100) {
          edges {
            node {
              quantity
              title
              discountedTotalSet { shopMoney { amount currencyCode } }
              product { id title }
            }
          }
        }
      }
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type ordersResponse struct {
	Data struct {
		Orders *struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Cursor string    `json:"cursor"`
				Node   orderNode `json:"node"`
			} `json:"edges"`
		} `json:"orders"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type orderNode struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ProcessedAt time.Time `json:"processedAt"`
	LineItems   struct {
		Edges []struct {
			Node struct {
				Quantity           int    `json:"quantity"`
				Title              string `json:"title"`
				DiscountedTotalSet *struct {
					ShopMoney struct {
						Amount       string `json:"amount"`
						CurrencyCode string `json:"currencyCode"`
					} `json:"shopMoney"`
				} `json:"discountedTotalSet"`
				Product *struct {
					ID    string `json:"id"`
					Title string `json:"title"`
				} `json:"product"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"lineItems"`
}

// OrdersPage runs one page of the orders query.
func (s *orderSource) OrdersPage(ctx context.Context, req analytics.PageRequest) (analytics.OrdersPage, error) {
	ctx, span := otel.Tracer("shopify.Client").Start(ctx, "Client.OrdersPage")
	defer span.End()
	span.SetAttributes(attribute.String("shopify.shop", s.shop), attribute.Int("shopify.first", req.First))

	vars := map[string]any{"first": req.First, "search": req.Query}
	if req.After != "" {
		vars["after"] = req.After
	}
	var out ordersResponse
	if err := s.client.post(ctx, s.shop, s.token, graphqlRequest{Query: ordersQuery, Variables: vars}, &out); err != nil {
		span.RecordError(err)
		return analytics.OrdersPage{}, err
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return analytics.OrdersPage{}, &analytics.QueryError{Messages: msgs}
	}
	if out.Data.Orders == nil {
		return analytics.OrdersPage{}, &analytics.QueryError{Messages: []string{"orders field missing from response"}}
	}

	page := analytics.OrdersPage{
		PageInfo: analytics.PageInfo{
			HasNextPage: out.Data.Orders.PageInfo.HasNextPage,
			EndCursor:   out.Data.Orders.PageInfo.EndCursor,
		},
		Edges: make([]analytics.OrderEdge, 0, len(out.Data.Orders.Edges)),
	}
	for _, edge := range out.Data.Orders.Edges {
		page.Edges = append(page.Edges, analytics.OrderEdge{Cursor: edge.Cursor, Node: edge.Node.toOrder()})
	}
	return page, nil
}

func (n orderNode) toOrder() analytics.Order {
	o := analytics.Order{ID: n.ID, Name: n.Name, ProcessedAt: n.ProcessedAt}
	for _, edge := range n.LineItems.Edges {
		li := analytics.LineItem{Quantity: edge.Node.Quantity, Title: edge.Node.Title}
		if p := edge.Node.Product; p != nil {
			li.Product = &analytics.ProductRef{ID: p.ID, Title: p.Title}
		}
		if set := edge.Node.DiscountedTotalSet; set != nil {
			li.DiscountedTotal = &analytics.Money{Amount: set.ShopMoney.Amount, CurrencyCode: set.ShopMoney.CurrencyCode}
		}
		o.LineItems = append(o.LineItems, li)
	}
	return o
}

func (c *Client) post(ctx context.Context, shop, token string, payload graphqlRequest, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL(shop), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("orders query: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read graphql response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &analytics.FetchError{
			Code:    analytics.CodeAccessDenied,
			Message: "The Admin API rejected the stored access token; reopen the app to re-authenticate",
			Err:     fmt.Errorf("%w: status %d", ErrTokenRejected, resp.StatusCode),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("orders query: upstream responded %s", resp.Status)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	return nil
}

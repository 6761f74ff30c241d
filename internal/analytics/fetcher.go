package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CamDog38/ShopDelta/internal/obs"
)

const (
	// MaxPageSize is the largest page the order query accepts.
	MaxPageSize = 250
	// DefaultMaxPages bounds a single window fetch at 100k orders.
	DefaultMaxPages = 400
)

// Fetch error tags surfaced to callers.
const (
	CodeRequestFailed = "REQUEST_FAILED"
	CodeGraphQLError  = "GRAPHQL_ERROR"
	CodeAccessDenied  = "ACCESS_DENIED"
)

// ErrPaginationLimit is returned when the upstream keeps reporting more pages past MaxPages.
var ErrPaginationLimit = errors.New("analytics: pagination limit exceeded")

// QueryError reports errors returned inside a GraphQL response body.
type QueryError struct {
	Messages []string
}

func (e *QueryError) Error() string {
	if e == nil || len(e.Messages) == 0 {
		return "graphql error"
	}
	return e.Messages[0]
}

// FetchError is a tagged upstream failure. The order set for the window is unusable when one
// is returned.
type FetchError struct {
	Code    string
	Message string
	Details []string
	Err     error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fetcher walks every page of the order query for a window.
type Fetcher struct {
	Source   OrderSource
	PageSize int
	MaxPages int
}

// FetchAll returns every order in the window, or an error. Source failures come back as
// *FetchError; running past MaxPages yields ErrPaginationLimit.
func (f Fetcher) FetchAll(ctx context.Context, w Window) ([]Order, error) {
	if f.Source == nil {
		return nil, &FetchError{Code: CodeRequestFailed, Message: "order source not configured"}
	}
	pageSize := f.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	maxPages := f.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	ctx, span := otel.Tracer("analytics.Fetcher").Start(ctx, "Fetcher.FetchAll")
	defer span.End()
	logger := zerolog.Ctx(ctx)

	search := w.SearchQuery()
	var (
		orders []Order
		after  string
	)
	for page := 1; ; page++ {
		if page > maxPages {
			span.SetStatus(codes.Error, "pagination limit")
			if obs.AnalyticsPaginationLimitTotal != nil {
				obs.AnalyticsPaginationLimitTotal.Inc()
			}
			return nil, fmt.Errorf("%w: more than %d pages for %s", ErrPaginationLimit, maxPages, search)
		}
		res, err := f.Source.OrdersPage(ctx, PageRequest{First: pageSize, Query: search, After: after})
		if err != nil {
			ferr := classify(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, ferr.Code)
			if obs.AnalyticsFetchFailuresTotal != nil {
				obs.AnalyticsFetchFailuresTotal.WithLabelValues(ferr.Code).Inc()
			}
			return nil, ferr
		}
		if obs.AnalyticsPagesFetchedTotal != nil {
			obs.AnalyticsPagesFetchedTotal.Inc()
		}
		for _, edge := range res.Edges {
			orders = append(orders, edge.Node)
		}
		logger.Debug().Int("page", page).Int("edges", len(res.Edges)).Int("total", len(orders)).
			Bool("has_next", res.PageInfo.HasNextPage).Msg("orders page fetched")

		if !res.PageInfo.HasNextPage || len(res.Edges) == 0 {
			break
		}
		next := strings.TrimSpace(res.PageInfo.EndCursor)
		if next == "" {
			next = res.Edges[len(res.Edges)-1].Cursor
		}
		if next == "" || next == after {
			// a cursor that does not move would replay the same page forever
			return nil, &FetchError{Code: CodeRequestFailed, Message: "upstream returned a non-advancing cursor"}
		}
		after = next
	}
	span.SetAttributes(attribute.Int("analytics.orders", len(orders)))
	return orders, nil
}

func classify(err error) *FetchError {
	var ferr *FetchError
	if errors.As(err, &ferr) {
		return ferr
	}
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return &FetchError{Code: CodeGraphQLError, Message: qerr.Error(), Details: qerr.Messages, Err: err}
	}
	msg := err.Error()
	if msg == "" {
		msg = "Failed to load orders"
	}
	return &FetchError{Code: CodeRequestFailed, Message: msg, Err: err}
}

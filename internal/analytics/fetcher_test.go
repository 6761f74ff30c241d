package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchAllFollowsEndCursor(t *testing.T) {
	w := window("2024-01-01", "2024-01-31")
	var orders []Order
	for i := 0; i < 5; i++ {
		orders = append(orders, order(fmt.Sprintf("o%d", i), "2024-01-05T10:00:00Z", line("p1", "Widget", 1, "1")))
	}
	src := newWindowSource().add(w, orders...)
	src.pageSize = 2

	got, err := Fetcher{Source: src}.FetchAll(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, got, 5)

	calls := src.requests()
	require.Len(t, calls, 3)
	require.Equal(t, "", calls[0].After)
	require.Equal(t, "o1", calls[1].After)
	require.Equal(t, "o3", calls[2].After)
	require.Equal(t, MaxPageSize, calls[0].First)
	require.Equal(t, w.SearchQuery(), calls[0].Query)
}

func TestFetchAllStopsOnEmptyPage(t *testing.T) {
	calls := 0
	src := sourceFunc(func(context.Context, PageRequest) (OrdersPage, error) {
		calls++
		return OrdersPage{PageInfo: PageInfo{HasNextPage: true, EndCursor: "x"}}, nil
	})
	got, err := Fetcher{Source: src}.FetchAll(context.Background(), window("2024-01-01", "2024-01-31"))
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, 1, calls)
}

func TestFetchAllPaginationLimit(t *testing.T) {
	page := 0
	src := sourceFunc(func(context.Context, PageRequest) (OrdersPage, error) {
		page++
		cursor := fmt.Sprintf("c%d", page)
		return OrdersPage{
			Edges:    []OrderEdge{{Cursor: cursor, Node: Order{ID: cursor}}},
			PageInfo: PageInfo{HasNextPage: true, EndCursor: cursor},
		}, nil
	})
	_, err := Fetcher{Source: src, MaxPages: 3}.FetchAll(context.Background(), window("2024-01-01", "2024-01-31"))
	require.ErrorIs(t, err, ErrPaginationLimit)
	require.Equal(t, 3, page)
}

func TestFetchAllRejectsStuckCursor(t *testing.T) {
	src := sourceFunc(func(context.Context, PageRequest) (OrdersPage, error) {
		return OrdersPage{
			Edges:    []OrderEdge{{Cursor: "same", Node: Order{ID: "1"}}},
			PageInfo: PageInfo{HasNextPage: true, EndCursor: "same"},
		}, nil
	})
	_, err := Fetcher{Source: src}.FetchAll(context.Background(), window("2024-01-01", "2024-01-31"))
	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, CodeRequestFailed, ferr.Code)
}

func TestFetchAllClassifiesFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"transport", errors.New("dial tcp: refused"), CodeRequestFailed},
		{"graphql", fmt.Errorf("orders query: %w", &QueryError{Messages: []string{"Access denied for orders field", "second"}}), CodeGraphQLError},
		{"tagged", &FetchError{Code: CodeAccessDenied, Message: "no session"}, CodeAccessDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := sourceFunc(func(context.Context, PageRequest) (OrdersPage, error) { return OrdersPage{}, tc.err })
			_, err := Fetcher{Source: src}.FetchAll(context.Background(), window("2024-01-01", "2024-01-31"))
			var ferr *FetchError
			require.True(t, errors.As(err, &ferr))
			require.Equal(t, tc.code, ferr.Code)
		})
	}

	src := sourceFunc(func(context.Context, PageRequest) (OrdersPage, error) {
		return OrdersPage{}, &QueryError{Messages: []string{"first", "second"}}
	})
	_, err := Fetcher{Source: src}.FetchAll(context.Background(), window("2024-01-01", "2024-01-31"))
	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, "first", ferr.Message)
	require.Equal(t, []string{"first", "second"}, ferr.Details)
}

func TestFetchAllClampsPageSize(t *testing.T) {
	src := newWindowSource()
	w := window("2024-01-01", "2024-01-02")
	_, err := Fetcher{Source: src, PageSize: 1000}.FetchAll(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, MaxPageSize, src.requests()[0].First)
}

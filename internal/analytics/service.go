package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/CamDog38/ShopDelta/internal/obs"
)

// ErrAccessDenied is returned by connectors when the shop has no usable Admin API session.
var ErrAccessDenied = errors.New("analytics: access denied for shop")

// Service computes reports from live order data.
type Service struct {
	Connector    Connector
	PageSize     int
	MaxPages     int
	FetchTimeout time.Duration
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type windows struct {
	current  *Aggregation
	previous *Aggregation
}

// Report builds the analytics report for a shop. Upstream failures are folded into the
// report's error tag; invalid dates and ErrPaginationLimit are returned as errors.
func (s *Service) Report(ctx context.Context, shop string, q Query) (Report, error) {
	started := time.Now()
	defer func() {
		if obs.AnalyticsReportDuration != nil {
			obs.AnalyticsReportDuration.WithLabelValues(string(q.Compare)).Observe(time.Since(started).Seconds())
		}
	}()

	ws, err := s.load(ctx, shop, q)
	if err != nil {
		var ferr *FetchError
		if errors.As(err, &ferr) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("shop", shop).Str("code", ferr.Code).Msg("analytics fetch failed")
			w, _ := ResolveWindow(s.now(), q.Preset, q.Start, q.End)
			return ErrorReport(shop, q, w, ferr.Code, ferr.Message), nil
		}
		return Report{}, err
	}
	return BuildReport(ReportInput{Shop: shop, Query: q, Current: ws.current, Previous: ws.previous}), nil
}

// Export lays out the workbook sheets for a shop. Every failure is returned as an error.
func (s *Service) Export(ctx context.Context, shop string, q Query) ([]Sheet, error) {
	ws, err := s.load(ctx, shop, q)
	if err != nil {
		return nil, err
	}
	if obs.AnalyticsExportsTotal != nil {
		obs.AnalyticsExportsTotal.Inc()
	}
	return BuildSheets(ExportInput{
		Current: ws.current,
		Comparison: ComparisonInput{
			Mode:     q.Compare,
			Scope:    q.CompareScope,
			MonthA:   q.MomA,
			MonthB:   q.MomB,
			Previous: ws.previous,
		},
	}), nil
}

func (s *Service) load(ctx context.Context, shop string, q Query) (windows, error) {
	if s == nil || s.Connector == nil {
		return windows{}, &FetchError{Code: CodeRequestFailed, Message: "analytics service not configured"}
	}
	w, err := ResolveWindow(s.now(), q.Preset, q.Start, q.End)
	if err != nil {
		return windows{}, err
	}
	if s.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.FetchTimeout)
		defer cancel()
	}

	source, err := s.Connector.OrderSource(ctx, shop)
	if err != nil {
		if errors.Is(err, ErrAccessDenied) {
			return windows{}, &FetchError{Code: CodeAccessDenied, Message: "No Admin API session for this shop; reopen the app to re-authenticate", Err: err}
		}
		return windows{}, &FetchError{Code: CodeRequestFailed, Message: err.Error(), Err: err}
	}
	fetcher := Fetcher{Source: source, PageSize: s.PageSize, MaxPages: s.MaxPages}
	logger := zerolog.Ctx(ctx).With().Str("shop", shop).Logger()
	ctx = logger.WithContext(ctx)

	var (
		current, previous []Order
		prevWindow        Window
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orders, err := fetcher.FetchAll(gctx, w)
		if err != nil {
			return fmt.Errorf("current window: %w", err)
		}
		current = orders
		return nil
	})
	comparing := q.Compare == CompareMoM || q.Compare == CompareYoY
	if comparing {
		prevWindow = PreviousWindow(w, q.Compare)
		g.Go(func() error {
			orders, err := fetcher.FetchAll(gctx, prevWindow)
			if err != nil {
				return fmt.Errorf("previous window: %w", err)
			}
			previous = orders
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return windows{}, err
	}

	ws := windows{current: Aggregate(ctx, current, q.Granularity, w)}
	if comparing {
		ws.previous = Aggregate(ctx, previous, q.Granularity, prevWindow)
	}
	logger.Debug().Int("orders", len(current)).Int("previous_orders", len(previous)).
		Str("window", w.SearchQuery()).Msg("analytics windows aggregated")
	return ws, nil
}

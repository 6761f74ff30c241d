package shopify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/CamDog38/ShopDelta/internal/analytics"
	"github.com/CamDog38/ShopDelta/internal/auth"
	"github.com/CamDog38/ShopDelta/internal/lock"
	"github.com/CamDog38/ShopDelta/internal/tenant"
)

// Admin hands out authenticated order sources per shop. A stored offline token is reused;
// otherwise the request's session token is exchanged for one.
type Admin struct {
	Client    *Client
	Sessions  SessionStore
	Exchanger Exchanger
	// Lock, when configured, lets one instance exchange a shop's token at a time.
	Lock lock.Locker
}

const exchangeLockTTL = 15 * time.Second

var _ analytics.Connector = (*Admin)(nil)

// OrderSource implements analytics.Connector.
func (a *Admin) OrderSource(ctx context.Context, shop string) (analytics.OrderSource, error) {
	token, err := a.AccessToken(ctx, shop)
	if err != nil {
		return nil, err
	}
	return &sessionSource{OrderSource: a.Client.Orders(shop, token), admin: a, shop: shop}, nil
}

// sessionSource drops the stored session once the Admin API rejects its token, so the next
// request exchanges a fresh one.
type sessionSource struct {
	analytics.OrderSource
	admin *Admin
	shop  string
}

func (s *sessionSource) OrdersPage(ctx context.Context, req analytics.PageRequest) (analytics.OrdersPage, error) {
	page, err := s.OrderSource.OrdersPage(ctx, req)
	if err != nil && errors.Is(err, ErrTokenRejected) {
		if derr := s.admin.Sessions.Delete(ctx, s.shop); derr != nil {
			zerolog.Ctx(ctx).Error().Err(derr).Str("shop", s.shop).Msg("drop rejected session")
		}
	}
	return page, err
}

// AccessToken returns the offline token of a shop, exchanging one when none is stored.
func (a *Admin) AccessToken(ctx context.Context, shop string) (string, error) {
	logger := zerolog.Ctx(ctx)
	sess, err := a.Sessions.Get(ctx, shop)
	if err == nil {
		return sess.AccessToken, nil
	}
	if !errors.Is(err, ErrNoSession) {
		return "", err
	}

	current, ok := auth.SessionFromContext(ctx)
	if !ok || current.Shop != shop {
		return "", fmt.Errorf("%w: %w", analytics.ErrAccessDenied, ErrNoSession)
	}
	if !a.Lock.Enabled() {
		return a.exchange(ctx, shop, current.Token)
	}

	var token string
	err = a.Lock.WithLock(ctx, tenant.PrefixKey(shop, "exchange-lock"), exchangeLockTTL, func(ctx context.Context) error {
		// Another instance may have finished the exchange while we waited.
		if sess, err := a.Sessions.Get(ctx, shop); err == nil {
			token = sess.AccessToken
			return nil
		}
		var err error
		token, err = a.exchange(ctx, shop, current.Token)
		return err
	})
	if err != nil {
		if errors.Is(err, analytics.ErrAccessDenied) {
			return "", err
		}
		return "", fmt.Errorf("exchange lock: %w", err)
	}
	logger.Debug().Str("shop", shop).Msg("access token resolved under exchange lock")
	return token, nil
}

func (a *Admin) exchange(ctx context.Context, shop, sessionToken string) (string, error) {
	logger := zerolog.Ctx(ctx)
	sess, err := a.Exchanger.Exchange(ctx, shop, sessionToken)
	if err != nil {
		logger.Warn().Err(err).Str("shop", shop).Msg("token exchange failed")
		return "", fmt.Errorf("%w: %w", analytics.ErrAccessDenied, err)
	}
	if err := a.Sessions.Save(ctx, sess); err != nil {
		logger.Error().Err(err).Str("shop", shop).Msg("store offline session")
	}
	logger.Info().Str("shop", shop).Str("scope", sess.Scope).Msg("offline session created")
	return sess.AccessToken, nil
}

package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/CamDog38/ShopDelta/internal/tenant"
)

var (
	// ErrNoSession is returned when no offline session is stored for a shop.
	ErrNoSession = errors.New("shopify: no session for shop")
	// ErrTokenRejected is returned when the Admin API refuses an access token.
	ErrTokenRejected = errors.New("shopify: access token rejected")
)

// OfflineSession is the stored offline access token of a shop.
type OfflineSession struct {
	Shop        string    `json:"shop"`
	AccessToken string    `json:"accessToken"`
	Scope       string    `json:"scope"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SessionStore keeps offline sessions in Redis under shop:{shop}:session.
type SessionStore struct {
	Client redis.Cmdable
}

func sessionKey(shop string) string {
	return tenant.PrefixKey(shop, "session")
}

// Get loads the session of a shop.
func (s SessionStore) Get(ctx context.Context, shop string) (OfflineSession, error) {
	if s.Client == nil {
		return OfflineSession{}, ErrNoSession
	}
	raw, err := s.Client.Get(ctx, sessionKey(shop)).Bytes()
	if errors.Is(err, redis.Nil) {
		return OfflineSession{}, ErrNoSession
	}
	if err != nil {
		return OfflineSession{}, fmt.Errorf("load session: %w", err)
	}
	var sess OfflineSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return OfflineSession{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.AccessToken == "" {
		return OfflineSession{}, ErrNoSession
	}
	return sess, nil
}

// Save stores the session. Offline tokens do not expire, so no TTL is set.
func (s SessionStore) Save(ctx context.Context, sess OfflineSession) error {
	if s.Client == nil {
		return errors.New("shopify: session store not configured")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, sessionKey(sess.Shop), raw, 0).Err()
}

// Delete removes the session of a shop.
func (s SessionStore) Delete(ctx context.Context, shop string) error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Del(ctx, sessionKey(shop)).Err()
}

package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CamDog38/ShopDelta/internal/obs"
)

const (
	grantTypeTokenExchange  = "urn:ietf:params:oauth:grant-type:token-exchange"
	subjectTokenTypeIDToken = "urn:ietf:params:oauth:token-type:id_token"
	requestedOfflineToken   = "urn:shopify:params:oauth:token-type:offline-access-token"
)

// ExchangeError is a refused token exchange.
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange refused: status %d: %s", e.StatusCode, e.Body)
}

// Exchanger trades a session token for an offline access token.
type Exchanger struct {
	Client    *Client
	APIKey    string
	APISecret string
	Now       func() time.Time
}

type exchangeRequest struct {
	ClientID           string `json:"client_id"`
	ClientSecret       string `json:"client_secret"`
	GrantType          string `json:"grant_type"`
	SubjectToken       string `json:"subject_token"`
	SubjectTokenType   string `json:"subject_token_type"`
	RequestedTokenType string `json:"requested_token_type"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// Exchange performs the token exchange for shop.
func (e Exchanger) Exchange(ctx context.Context, shop, sessionToken string) (OfflineSession, error) {
	sess, err := e.exchange(ctx, shop, sessionToken)
	result := "ok"
	if err != nil {
		result = "error"
	}
	if obs.TokenExchangeTotal != nil {
		obs.TokenExchangeTotal.WithLabelValues(result).Inc()
	}
	return sess, err
}

func (e Exchanger) exchange(ctx context.Context, shop, sessionToken string) (OfflineSession, error) {
	if e.Client == nil {
		return OfflineSession{}, errors.New("shopify: exchange client not configured")
	}
	if strings.TrimSpace(sessionToken) == "" {
		return OfflineSession{}, errors.New("shopify: session token required for exchange")
	}
	body, err := json.Marshal(exchangeRequest{
		ClientID:           e.APIKey,
		ClientSecret:       e.APISecret,
		GrantType:          grantTypeTokenExchange,
		SubjectToken:       sessionToken,
		SubjectTokenType:   subjectTokenTypeIDToken,
		RequestedTokenType: requestedOfflineToken,
	})
	if err != nil {
		return OfflineSession{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Client.shopURL(shop)+"/admin/oauth/access_token", bytes.NewReader(body))
	if err != nil {
		return OfflineSession{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.Client.HTTP.Do(ctx, req)
	if err != nil {
		return OfflineSession{}, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OfflineSession{}, fmt.Errorf("read token exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return OfflineSession{}, &ExchangeError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	var out exchangeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return OfflineSession{}, fmt.Errorf("decode token exchange response: %w", err)
	}
	if out.AccessToken == "" {
		return OfflineSession{}, errors.New("shopify: token exchange returned no access token")
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return OfflineSession{Shop: shop, AccessToken: out.AccessToken, Scope: out.Scope, CreatedAt: now().UTC()}, nil
}

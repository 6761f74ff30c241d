package tenant

import (
	"context"
	"strings"
)

type contextKey string

const shopContextKey contextKey = "tenant.shop"

// ShopDomainHeader is the header the platform sets on webhooks and embedded requests.
const ShopDomainHeader = "X-Shopify-Shop-Domain"

const shopSuffix = ".myshopify.com"

// NormalizeShop lowercases a shop domain, strips any scheme or path, and accepts only
// hosts under myshopify.com.
func NormalizeShop(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if idx := strings.IndexAny(s, "/?#"); idx != -1 {
		s = s[:idx]
	}
	if !strings.HasSuffix(s, shopSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(s, shopSuffix)
	if name == "" || strings.Contains(name, ".") {
		return "", false
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return "", false
		}
	}
	return s, true
}

// WithShop stores the shop domain inside the context.
func WithShop(ctx context.Context, shop string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, shopContextKey, shop)
}

// FromContext extracts the shop domain from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	shop, ok := ctx.Value(shopContextKey).(string)
	if !ok {
		return "", false
	}
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return "", false
	}
	return shop, true
}

package security

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/CamDog38/ShopDelta/internal/tenant"
)

// AdminOrigin is the admin host that frames embedded apps.
const AdminOrigin = "https://admin.shopify.com"

// Headers sets security headers. Embedded apps are framed by the admin, so instead of
// X-Frame-Options they get a frame-ancestors policy naming the shop and the admin host.
type Headers struct {
	Enable                bool
	Embedded              bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

// Middleware attaches the headers to each response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Enable {
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Permissions-Policy", "geolocation=(), microphone=()")
		if h.Embedded {
			headers.Set("Content-Security-Policy", FrameAncestors(shopOf(r)))
		} else {
			headers.Set("X-Frame-Options", "DENY")
		}
		if h.EnableHSTS && r.TLS != nil {
			maxAge := h.HSTSMaxAge
			if maxAge <= 0 {
				maxAge = 31536000
			}
			value := "max-age=" + strconv.Itoa(maxAge)
			if h.HSTSIncludeSubdomains {
				value += "; includeSubDomains"
			}
			headers.Set("Strict-Transport-Security", value)
		}
		next.ServeHTTP(w, r)
	})
}

// FrameAncestors renders the CSP directive allowing the shop and the admin to frame the app.
func FrameAncestors(shop string) string {
	sources := []string{}
	if shop != "" {
		sources = append(sources, "https://"+shop)
	}
	sources = append(sources, AdminOrigin)
	return "frame-ancestors " + strings.Join(sources, " ")
}

func shopOf(r *http.Request) string {
	if shop, ok := tenant.FromContext(r.Context()); ok {
		return shop
	}
	if shop, ok := tenant.NormalizeShop(r.URL.Query().Get("shop")); ok {
		return shop
	}
	shop, _ := tenant.NormalizeShop(r.Header.Get(tenant.ShopDomainHeader))
	return shop
}

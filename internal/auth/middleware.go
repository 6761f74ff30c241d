package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/CamDog38/ShopDelta/internal/common"
	"github.com/CamDog38/ShopDelta/internal/tenant"
)

type ctxKey string

const sessionKey ctxKey = "auth/session"

// Middleware guards embedded API routes with session-token verification.
type Middleware struct {
	Verifier *SessionVerifier
}

// RequireSession rejects requests without a valid session token with a 401 Bearer challenge.
// On success the session and its shop are stored in the request context.
func (m Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Verifier == nil {
			common.JSONError(w, http.StatusInternalServerError, "AUTH_NOT_CONFIGURED", "session verification not configured", nil)
			return
		}
		sess, err := m.Verifier.VerifyRequest(r)
		if err != nil {
			var serr *SessionError
			if !errors.As(err, &serr) {
				serr = sessionErr(CodeInvalidSig, "Invalid session token", err)
			}
			zerolog.Ctx(r.Context()).Warn().Str("code", serr.Code).Err(serr.Err).Msg("session token rejected")
			w.Header().Set("WWW-Authenticate", serr.Challenge())
			common.JSONError(w, http.StatusUnauthorized, serr.Code, serr.Message, nil)
			return
		}
		logger := zerolog.Ctx(r.Context())
		logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("shop", sess.Shop)
		})
		if sess.JTI != "" {
			logger.Debug().Str("jti", sess.JTI).Msg("session token accepted")
		}
		ctx := tenant.WithShop(WithSession(r.Context(), sess), sess.Shop)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithSession stores a verified session on the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the verified session if present.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

func decodeBase64Loose(s string) (string, error) {
	var lastErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		out, err := enc.DecodeString(s)
		if err == nil {
			return string(out), nil
		}
		lastErr = err
	}
	return "", lastErr
}

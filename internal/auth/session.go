package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/CamDog38/ShopDelta/internal/tenant"
)

// Session token failure codes.
const (
	CodeNoToken        = "NO_TOKEN"
	CodeBadFormat      = "BAD_FORMAT"
	CodeInvalidSig     = "INVALID_SIG"
	CodeExpired        = "EXPIRED"
	CodeNoShop         = "NO_SHOP"
	CodeAudMismatch    = "AUD_MISMATCH"
	CodeHeaderMismatch = "HEADER_MISMATCH"
	CodeHostMismatch   = "HOST_MISMATCH"
)

// DefaultClockSkew is the tolerance applied to exp and nbf.
const DefaultClockSkew = 5 * time.Second

// SessionError is a rejected session token.
type SessionError struct {
	Code    string
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func (e *SessionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Challenge renders the WWW-Authenticate value for the error.
func (e *SessionError) Challenge() string {
	if e != nil && e.Code == CodeExpired {
		return `Bearer error="invalid_token", error_description="expired"`
	}
	return `Bearer error="invalid_token"`
}

func sessionErr(code, message string, err error) *SessionError {
	return &SessionError{Code: code, Message: message, Err: err}
}

// Session is a verified embedded-app session.
type Session struct {
	Shop    string
	Subject string
	JTI     string
	Token   string
}

// SessionVerifier checks the HS256 session tokens the admin issues to embedded apps.
type SessionVerifier struct {
	secret    []byte
	validator TokenValidator
	now       func() time.Time
}

// NewSessionVerifier builds a verifier for the app's API key and secret.
func NewSessionVerifier(apiKey, apiSecret string, skew time.Duration) (*SessionVerifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("auth: api key is required")
	}
	if strings.TrimSpace(apiSecret) == "" {
		return nil, errors.New("auth: api secret is required")
	}
	if skew <= 0 {
		skew = DefaultClockSkew
	}
	return &SessionVerifier{
		secret:    []byte(apiSecret),
		validator: TokenValidator{Audience: apiKey, ClockSkew: skew, Algorithm: jwa.HS256},
		now:       time.Now,
	}, nil
}

// WithNow overrides the clock, for tests.
func (v *SessionVerifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Verify checks signature and claims and resolves the shop from dest, falling back to iss.
func (v *SessionVerifier) Verify(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, sessionErr(CodeNoToken, "Missing session token", nil)
	}
	algorithm, err := extractTokenAlgorithm(token)
	if err != nil {
		return Session{}, sessionErr(CodeBadFormat, "Malformed session token", err)
	}
	if algorithm != v.validator.Algorithm {
		return Session{}, sessionErr(CodeBadFormat, "Unexpected JWT algorithm", fmt.Errorf("algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(token, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return Session{}, sessionErr(CodeInvalidSig, "Invalid session token", err)
	}
	if err := v.validator.Validate(parsed, algorithm, v.now()); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired()):
			return Session{}, sessionErr(CodeExpired, "Session token expired", err)
		case errors.Is(err, jwt.ErrInvalidAudience()):
			return Session{}, sessionErr(CodeAudMismatch, "Audience mismatch", err)
		default:
			return Session{}, sessionErr(CodeInvalidSig, "Invalid session token", err)
		}
	}

	shop, ok := shopFromURL(stringClaim(parsed, "dest"))
	if !ok {
		shop, ok = shopFromURL(parsed.Issuer())
	}
	if !ok {
		return Session{}, sessionErr(CodeNoShop, "No shop in token", nil)
	}
	return Session{
		Shop:    shop,
		Subject: parsed.Subject(),
		JTI:     parsed.JwtID(),
		Token:   token,
	}, nil
}

// VerifyRequest verifies the bearer token of r and cross-checks the authenticated shop
// header and the base64 host query parameter when present.
func (v *SessionVerifier) VerifyRequest(r *http.Request) (Session, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return Session{}, sessionErr(CodeNoToken, "Missing Authorization header", nil)
	}
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return Session{}, sessionErr(CodeBadFormat, "Expected Bearer token", nil)
	}
	sess, err := v.Verify(header[7:])
	if err != nil {
		return Session{}, err
	}
	if hdr := strings.TrimSpace(r.Header.Get("X-Shopify-Authenticated-Shop-Domain")); hdr != "" && !strings.EqualFold(hdr, sess.Shop) {
		return Session{}, sessionErr(CodeHeaderMismatch, fmt.Sprintf("Header shop mismatch: %s != %s", hdr, sess.Shop), nil)
	}
	if host, ok := decodeHostParam(r.URL.Query().Get("host")); ok && host != sess.Shop {
		return Session{}, sessionErr(CodeHostMismatch, fmt.Sprintf("Host param mismatch: %s != %s", host, sess.Shop), nil)
	}
	return sess, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" {
		return "", errors.New("auth: token missing algorithm")
	}
	if alg == jwa.NoSignature {
		return "", errors.New("auth: token uses none algorithm")
	}
	return alg, nil
}

func stringClaim(tok jwt.Token, name string) string {
	raw, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return s
}

func shopFromURL(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	return tenant.NormalizeShop(u.Host)
}

func decodeHostParam(param string) (string, bool) {
	param = strings.TrimSpace(param)
	if param == "" {
		return "", false
	}
	decoded, err := decodeBase64Loose(param)
	if err != nil {
		return "", false
	}
	u, err := url.Parse("https://" + decoded)
	if err != nil || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Host), true
}

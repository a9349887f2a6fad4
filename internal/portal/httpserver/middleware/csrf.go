package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"careerjourney.app/portal/internal/portal/logging"
)

type csrfContextKey string

const csrfTokenContextKey csrfContextKey = "csrf.token"

// CSRFFormField is the hidden input name accepted as an alternative to the header.
const CSRFFormField = "csrf_token"

const csrfTokenBytes = 32

var errCSRFMismatch = errors.New("csrf token mismatch")

// CSRFConfig controls cookie/header behaviour.
type CSRFConfig struct {
	CookieName string
	CookiePath string
	HeaderName string
	FieldName  string
	MaxAge     time.Duration
	Secure     bool
}

type csrfPolicy struct {
	cookie string
	path   string
	header string
	field  string
	maxAge time.Duration
	secure bool
}

func newCSRFPolicy(cfg CSRFConfig) csrfPolicy {
	p := csrfPolicy{
		cookie: cfg.CookieName,
		path:   cfg.CookiePath,
		header: cfg.HeaderName,
		field:  cfg.FieldName,
		maxAge: cfg.MaxAge,
		secure: cfg.Secure,
	}
	if p.cookie == "" {
		p.cookie = "portal_csrf"
	}
	if p.path == "" {
		p.path = "/"
	}
	if p.header == "" {
		p.header = "X-CSRF-Token"
	}
	if p.field == "" {
		p.field = CSRFFormField
	}
	if p.maxAge == 0 {
		p.maxAge = 24 * time.Hour
	}
	return p
}

// CSRF attaches double-submit cookie protection. Safe methods ensure a token is
// issued; unsafe methods must echo the cookie value in the header or form field.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	policy := newCSRFPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logging.FromContext(r.Context())

			token, err := policy.token(w, r)
			if err != nil {
				logger.Error("csrf token generation failed", zap.Error(err))
				http.Error(w, "csrf token error", http.StatusInternalServerError)
				return
			}

			if isUnsafeMethod(r.Method) {
				if err := policy.verify(r, token); err != nil {
					logger.Warn("csrf validation failed", zap.String("path", r.URL.Path), zap.Error(err))
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), csrfTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFTokenFromContext returns the token issued for the current request (to embed in forms or meta tags).
func CSRFTokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(csrfTokenContextKey).(string); ok {
		return token
	}
	return ""
}

// token returns the visitor's current token, issuing a cookie on first contact.
func (p csrfPolicy) token(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(p.cookie); err == nil && c.Value != "" {
		return c.Value, nil
	}

	raw := make([]byte, csrfTokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	http.SetCookie(w, &http.Cookie{
		Name:     p.cookie,
		Value:    token,
		Path:     p.path,
		HttpOnly: true,
		Secure:   p.secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(p.maxAge.Seconds()),
	})
	return token, nil
}

func (p csrfPolicy) verify(r *http.Request, token string) error {
	submitted := r.Header.Get(p.header)
	if submitted == "" {
		submitted = r.PostFormValue(p.field)
	}
	if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
		return errCSRFMismatch
	}
	return nil
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

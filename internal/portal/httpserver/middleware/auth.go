package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"careerjourney.app/portal/internal/portal/logging"
	"careerjourney.app/portal/internal/portal/tokenstore"
)

type authContextKey string

const tokenContextKey authContextKey = "auth.token"

// TokenLoader reads the login token persisted on a request.
type TokenLoader interface {
	Load(r *http.Request) (string, error)
}

// TokenClearer drops a token the loader could not decode.
type TokenClearer interface {
	Clear(w http.ResponseWriter)
}

// RequireToken only lets requests carrying a stored login token through. Other
// visitors are sent to loginPath with the original location as redirect target.
func RequireToken(loader TokenLoader, loginPath string) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := loader.Load(r)
			if err != nil || strings.TrimSpace(token) == "" {
				if err == nil {
					err = errors.New("empty token")
				}
				logging.FromContext(r.Context()).Debug("token required", zap.String("path", r.URL.Path), zap.Error(err))
				if clearer, ok := loader.(TokenClearer); ok {
					if _, cookieErr := r.Cookie(tokenstore.CookieName); cookieErr == nil {
						clearer.Clear(w)
					}
				}
				handleUnauthenticated(w, r, loginPath)
				return
			}

			ctx := context.WithValue(r.Context(), tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromContext returns the token attached by RequireToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok && token != ""
}

// LoginRedirectURL builds loginPath?redirect=<target>, omitting the default target.
func LoginRedirectURL(loginPath, target string) string {
	if target == "" || target == "/" {
		return loginPath
	}
	q := url.Values{}
	q.Set("redirect", target)
	return loginPath + "?" + q.Encode()
}

func handleUnauthenticated(w http.ResponseWriter, r *http.Request, loginPath string) {
	target := r.URL.RequestURI()
	if IsHTMXRequest(r.Context()) {
		if info := HTMXInfoFromContext(r.Context()); info.CurrentURL != "" {
			if u, err := url.Parse(info.CurrentURL); err == nil {
				target = u.RequestURI()
			}
		}
		w.Header().Set("HX-Redirect", LoginRedirectURL(loginPath, target))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	http.Redirect(w, r, LoginRedirectURL(loginPath, target), http.StatusFound)
}

package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	custommw "careerjourney.app/portal/internal/portal/httpserver/middleware"
	"careerjourney.app/portal/internal/portal/login"
	"careerjourney.app/portal/internal/portal/tokenstore"
	"careerjourney.app/portal/public"
)

// Config holds runtime options for the portal HTTP server.
type Config struct {
	Address          string
	LoginPath        string
	LogoutPath       string
	SignupPath       string
	Authenticator    login.Authenticator
	Tokens           *tokenstore.Store
	Logger           *zap.Logger
	CSRFCookieName   string
	CSRFCookieSecure bool
	CSRFHeaderName   string
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	if cfg.Authenticator == nil {
		return nil, errors.New("httpserver: authenticator is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("httpserver: token store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(custommw.RequestLogger(logger))
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(60 * time.Second))
	router.Use(custommw.SecurityHeaders())

	staticContent, err := public.StaticFS()
	if err != nil {
		return nil, fmt.Errorf("httpserver: embed static: %w", err)
	}
	router.Handle("/public/static/*", http.StripPrefix("/public/static/", http.FileServer(http.FS(staticContent))))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})

	loginPath := normalizePath(cfg.LoginPath, "/login")
	handlers := newLoginHandlers(
		cfg.Authenticator,
		cfg.Tokens,
		loginPath,
		normalizePath(cfg.LogoutPath, "/logout"),
		normalizePath(cfg.SignupPath, "/signup"),
	)

	mountPortalRoutes(router, handlers, routeOptions{
		Tokens: cfg.Tokens,
		CSRF: custommw.CSRFConfig{
			CookieName: cfg.CSRFCookieName,
			HeaderName: cfg.CSRFHeaderName,
			Secure:     cfg.CSRFCookieSecure,
		},
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

type routeOptions struct {
	Tokens *tokenstore.Store
	CSRF   custommw.CSRFConfig
}

func mountPortalRoutes(router chi.Router, h *loginHandlers, opts routeOptions) {
	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.CSRF(opts.CSRF))

		r.Get(h.loginPath, h.LoginForm)
		r.Post(h.loginPath, h.LoginSubmit)
		r.Post(h.logoutPath, h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(custommw.RequireToken(opts.Tokens, h.loginPath))
			r.Get("/", h.Home)
		})
	})
}

func normalizePath(value, fallback string) string {
	p := strings.TrimSpace(value)
	if p == "" {
		return fallback
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return fallback
	}
	return p
}

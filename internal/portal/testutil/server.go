package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/http/cookiejar"
	"testing"

	"go.uber.org/zap"

	"careerjourney.app/portal/internal/portal/authapi"
	"careerjourney.app/portal/internal/portal/httpserver"
	"careerjourney.app/portal/internal/portal/login"
	"careerjourney.app/portal/internal/portal/tokenstore"
)

// TokenHashKey signs token cookies issued by test servers.
var TokenHashKey = []byte("portal-test-hash-key-0123456789ab")

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithAuthenticator overrides the backend client used by the login handler.
func WithAuthenticator(auth login.Authenticator) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Authenticator = auth
	}
}

// WithBackend points the login handler at a backend rooted at baseURL.
func WithBackend(t testing.TB, baseURL string) ServerOption {
	t.Helper()

	client, err := authapi.NewClient(baseURL, nil)
	if err != nil {
		t.Fatalf("auth client: %v", err)
	}
	return WithAuthenticator(client)
}

// WithLogger routes server logs to logger.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Logger = logger
	}
}

// WithLoginPath mounts the login page on path.
func WithLoginPath(path string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.LoginPath = path
	}
}

// NewTokenStore returns the token store used by NewServer.
func NewTokenStore(t testing.TB) *tokenstore.Store {
	t.Helper()

	store, err := tokenstore.New(tokenstore.Config{HashKey: TokenHashKey})
	if err != nil {
		t.Fatalf("token store: %v", err)
	}
	return store
}

// NewServer constructs an httptest server running the portal HTTP stack with sensible defaults.
// Without a backend option every login attempt fails with a transport error.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	unreachable, err := authapi.NewClient("http://127.0.0.1:1", nil)
	if err != nil {
		t.Fatalf("auth client: %v", err)
	}

	cfg := httpserver.Config{
		Address:        ":0",
		Authenticator:  unreachable,
		Tokens:         NewTokenStore(t),
		CSRFCookieName: "portal_csrf",
		CSRFHeaderName: "X-CSRF-Token",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := httpserver.New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewBrowser returns a client that keeps cookies and does not follow redirects.
func NewBrowser(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

package httpserver_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"careerjourney.app/portal/internal/portal/authapi"
	"careerjourney.app/portal/internal/portal/testutil"
	"careerjourney.app/portal/internal/portal/tokenstore"
)

type backend struct {
	*httptest.Server
	calls    atomic.Int32
	received atomic.Value
}

func newBackend(t *testing.T, status int, body string) *backend {
	t.Helper()

	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		var creds authapi.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err == nil {
			b.received.Store(creds)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) credentials() authapi.Credentials {
	creds, _ := b.received.Load().(authapi.Credentials)
	return creds
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}

// openLoginPage loads the login page in browser and returns the rendered CSRF token.
func openLoginPage(t *testing.T, browser *http.Client, target string) string {
	t.Helper()

	resp, err := browser.Get(target)
	require.NoError(t, err)
	body := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return testutil.CSRFToken(t, body)
}

func postLogin(t *testing.T, browser *http.Client, target string, form url.Values, htmx bool) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	resp, err := browser.Do(req)
	require.NoError(t, err)
	return resp
}

func findCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginPageRenders(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	browser := testutil.NewBrowser(t)

	resp, err := browser.Get(ts.URL + "/login?redirect=/dashboard")
	require.NoError(t, err)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.NotNil(t, findCookie(t, resp, "portal_csrf"))

	doc := testutil.ParseHTML(t, body)
	require.Contains(t, strings.ToLower(string(body)), "<!doctype html>")
	require.Equal(t, "Welcome Back", doc.Find("h1").Text())
	require.Zero(t, doc.Find("p.error").Length())
	redirect, _ := doc.Find(`input[name="redirect"]`).Attr("value")
	require.Equal(t, "/dashboard", redirect)
	require.Equal(t, "Login", doc.Find(`button[type="submit"] .label-idle`).Text())
}

func TestLoginSuccessStoresTokenAndRedirects(t *testing.T) {
	t.Parallel()

	api := newBackend(t, http.StatusOK, `{"token":"abc123"}`)
	ts := testutil.NewServer(t, testutil.WithBackend(t, api.URL))
	browser := testutil.NewBrowser(t)

	csrf := openLoginPage(t, browser, ts.URL+"/login")
	resp := postLogin(t, browser, ts.URL+"/login", url.Values{
		"csrf_token": {csrf},
		"email":      {"user@example.com"},
		"password":   {"hunter2"},
	}, false)
	readBody(t, resp)

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	require.Equal(t, authapi.Credentials{Email: "user@example.com", Password: "hunter2"}, api.credentials())

	cookie := findCookie(t, resp, tokenstore.CookieName)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	token, err := testutil.NewTokenStore(t).Load(req)
	require.NoError(t, err)
	require.Equal(t, "abc123", token)

	home, err := browser.Get(ts.URL + "/")
	require.NoError(t, err)
	homeBody := readBody(t, home)
	require.Equal(t, http.StatusOK, home.StatusCode)
	require.Contains(t, string(homeBody), "You are signed in.")
}

func TestLoginSuccessHonoursRedirect(t *testing.T) {
	t.Parallel()

	api := newBackend(t, http.StatusOK, `{"token":"abc123"}`)
	ts := testutil.NewServer(t, testutil.WithBackend(t, api.URL))
	browser := testutil.NewBrowser(t)

	csrf := openLoginPage(t, browser, ts.URL+"/login?redirect=/dashboard")
	resp := postLogin(t, browser, ts.URL+"/login", url.Values{
		"csrf_token": {csrf},
		"redirect":   {"/dashboard"},
		"email":      {"user@example.com"},
		"password":   {"hunter2"},
	}, false)
	readBody(t, resp)

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLoginRejectsOffsiteRedirect(t *testing.T) {
	t.Parallel()

	api := newBackend(t, http.StatusOK, `{"token":"abc123"}`)
	ts := testutil.NewServer(t, testutil.WithBackend(t, api.URL))
	browser := testutil.NewBrowser(t)

	csrf := openLoginPage(t, browser, ts.URL+"/login")
	resp := postLogin(t, browser, ts.URL+"/login", url.Values{
		"csrf_token": {csrf},
		"redirect":   {"https://evil.example/"},
		"email":      {"user@example.com"},
		"password":   {"hunter2"},
	}, false)
	readBody(t, resp)

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestLoginFailureRendersInlineError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "backend message",
			status:     http.StatusUnauthorized,
			body:       `{"message":"Invalid credentials"}`,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid credentials",
		},
		{
			name:       "fallback message",
			status:     http.StatusForbidden,
			body:       `{}`,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Login failed",
		},
		{
			name:       "backend error is a bad gateway",
			status:     http.StatusInternalServerError,
			body:       `{}`,
			wantStatus: http.StatusBadGateway,
			wantError:  "Login failed",
		},
		{
			name:       "non object error body",
			status:     http.StatusServiceUnavailable,
			body:       `[]`,
			wantStatus: http.StatusBadGateway,
			wantError:  "Login failed",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := newBackend(t, tc.status, tc.body)
			ts := testutil.NewServer(t, testutil.WithBackend(t, api.URL))
			browser := testutil.NewBrowser(t)

			csrf := openLoginPage(t, browser, ts.URL+"/login")
			resp := postLogin(t, browser, ts.URL+"/login", url.Values{
				"csrf_token": {csrf},
				"email":      {"user@example.com"},
				"password":   {"wrong"},
			}, false)
			body := readBody(t, resp)

			require.Equal(t, tc.wantStatus, resp.StatusCode)
			require.Nil(t, findCookie(t, resp, tokenstore.CookieName))

			doc := testutil.ParseHTML(t, body)
			require.Equal(t, tc.wantError, doc.Find("p.error").Text())
			email, _ := doc.Find(`input[name="email"]`).Attr("value")
			require.Equal(t, "user@example.com", email)
			_, hasPassword := doc.Find(`input[name="password"]`).Attr("value")
			require.False(t, hasPassword)
		})
	}
}

func TestLoginNetworkErrorShowsErrorText(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	browser := testutil.NewBrowser(t)

	csrf := openLoginPage(t, browser, ts.URL+"/login")
	resp := postLogin(t, browser, ts.URL+"/login", url.Values{
		"csrf_token": {csrf},
		"email":      {"user@example.com"},
		"password":   {"hunter2"},
	}, false)
	body := readBody(t, resp)

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	errText := testutil.ParseHTML(t, body).Find("p.error").Text()
	require.Contains(t, errText, "127.0.0.1:1")
}

func TestLoginHTMXSuccessUsesHXRedirect(t *testing.T) {
	t.Parallel()

	api := newBackend(t, http.StatusOK, `{"token":"abc123"}`)
	ts := testutil.NewServer(t, testutil.WithBackend(t, api.URL))
	browser := testutil.NewBrowser(t)

	csrf := openLoginPage(t, browser, ts.URL+"/login")
	resp := postLogin(t, browser, ts.URL+"/login", url.Values{
		"csrf_token": {csrf},
		"redirect":   {"/dashboard"},
		"email":      {"user@example.com"},
		"password":   {"hunter2"},
	}, true)
	readBody(t, resp)

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("HX-Redirect"))
	require.NotNil(t, findCookie(t, resp, tokenstore.CookieName))
}

func TestLoginHTMXFailureReturnsFragment(t *testing.T) {
	t.Parallel()

	api := newBackend(t, http.StatusUnauthorized, `{"message":"Invalid credentials"}`)
	ts := testutil.NewServer(t, testutil.WithBackend(t, api.URL))
	browser := testutil.NewBrowser(t)

	csrf := openLoginPage(t, browser, ts.URL+"/login")
	resp := postLogin(t, browser, ts.URL+"/login", url.Values{
		"csrf_token": {csrf},
		"email":      {"user@example.com"},
		"password":   {"wrong"},
	}, true)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotContains(t, strings.ToLower(string(body)), "<!doctype html>")
	doc := testutil.ParseHTML(t, body)
	require.Equal(t, 1, doc.Find("section#login-form").Length())
	require.Equal(t, "Invalid credentials", doc.Find("p.error").Text())
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	t.Parallel()

	api := newBackend(t, http.StatusOK, `{"token":"abc123"}`)
	ts := testutil.NewServer(t, testutil.WithBackend(t, api.URL))
	browser := testutil.NewBrowser(t)

	openLoginPage(t, browser, ts.URL+"/login")
	resp := postLogin(t, browser, ts.URL+"/login", url.Values{
		"email":    {"user@example.com"},
		"password": {"hunter2"},
	}, false)
	readBody(t, resp)

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Zero(t, api.calls.Load())
}

func TestGuardedRouteRedirectsToLogin(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	browser := testutil.NewBrowser(t)

	resp, err := browser.Get(ts.URL + "/")
	require.NoError(t, err)
	readBody(t, resp)

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestLoginPageSkipsFormWhenTokenStored(t *testing.T) {
	t.Parallel()

	api := newBackend(t, http.StatusOK, `{"token":"abc123"}`)
	ts := testutil.NewServer(t, testutil.WithBackend(t, api.URL))
	browser := testutil.NewBrowser(t)

	csrf := openLoginPage(t, browser, ts.URL+"/login")
	readBody(t, postLogin(t, browser, ts.URL+"/login", url.Values{
		"csrf_token": {csrf},
		"email":      {"user@example.com"},
		"password":   {"hunter2"},
	}, false))

	resp, err := browser.Get(ts.URL + "/login?redirect=/jobs")
	require.NoError(t, err)
	readBody(t, resp)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/jobs", resp.Header.Get("Location"))

	forced, err := browser.Get(ts.URL + "/login?force=1")
	require.NoError(t, err)
	readBody(t, forced)
	require.Equal(t, http.StatusOK, forced.StatusCode)
}

func TestLogoutClearsToken(t *testing.T) {
	t.Parallel()

	api := newBackend(t, http.StatusOK, `{"token":"abc123"}`)
	ts := testutil.NewServer(t, testutil.WithBackend(t, api.URL))
	browser := testutil.NewBrowser(t)

	csrf := openLoginPage(t, browser, ts.URL+"/login")
	readBody(t, postLogin(t, browser, ts.URL+"/login", url.Values{
		"csrf_token": {csrf},
		"email":      {"user@example.com"},
		"password":   {"hunter2"},
	}, false))

	resp := postLogin(t, browser, ts.URL+"/logout", url.Values{"csrf_token": {csrf}}, false)
	readBody(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login?status=logged_out", resp.Header.Get("Location"))
	cleared := findCookie(t, resp, tokenstore.CookieName)
	require.NotNil(t, cleared)
	require.Equal(t, -1, cleared.MaxAge)

	page, err := browser.Get(ts.URL + "/login?status=logged_out")
	require.NoError(t, err)
	body := readBody(t, page)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Equal(t, "You have been logged out.", testutil.ParseHTML(t, body).Find("p.notice").Text())
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))
}

func TestStaticAssetsAreServed(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	resp, err := http.Get(ts.URL + "/public/static/portal.css")
	require.NoError(t, err)
	body := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), ".auth-card")

	script, err := http.Get(ts.URL + "/public/static/portal.js")
	require.NoError(t, err)
	scriptBody := readBody(t, script)
	require.Equal(t, http.StatusOK, script.StatusCode)
	require.Contains(t, string(scriptBody), "HX-Request")
}

package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"careerjourney.app/portal/internal/portal/authapi"
	custommw "careerjourney.app/portal/internal/portal/httpserver/middleware"
	"careerjourney.app/portal/internal/portal/logging"
	"careerjourney.app/portal/internal/portal/login"
	"careerjourney.app/portal/internal/portal/templates/auth"
	"careerjourney.app/portal/internal/portal/tokenstore"
)

const (
	loggedOutMessage = "You have been logged out."
	failedMessage    = "Login failed"
)

type loginHandlers struct {
	authenticator login.Authenticator
	tokens        *tokenstore.Store
	loginPath     string
	logoutPath    string
	signupPath    string
}

func newLoginHandlers(authenticator login.Authenticator, tokens *tokenstore.Store, loginPath, logoutPath, signupPath string) *loginHandlers {
	if authenticator == nil {
		panic("httpserver: authenticator is required")
	}
	if tokens == nil {
		panic("httpserver: token store is required")
	}
	return &loginHandlers{
		authenticator: authenticator,
		tokens:        tokens,
		loginPath:     loginPath,
		logoutPath:    logoutPath,
		signupPath:    signupPath,
	}
}

func (h *loginHandlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := redirectTarget(q.Get("redirect"), h.loginPath)

	if _, err := h.tokens.Load(r); err == nil && !forceLogin(r) {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	data := h.pageData(r, login.State{Email: strings.TrimSpace(q.Get("email"))}, target)
	data.Message = messageForQuery(q)
	h.render(w, r, data, http.StatusOK)
}

func (h *loginHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		logger.Warn("login form parse failed", zap.Error(err))
		data := h.pageData(r, login.State{Error: failedMessage}, redirectTarget(r.URL.Query().Get("redirect"), h.loginPath))
		h.renderFailure(w, r, data, http.StatusBadRequest)
		return
	}

	email := r.PostFormValue("email")
	target := redirectTarget(r.FormValue("redirect"), h.loginPath)

	var storeErr error
	view := login.NewView(h.authenticator,
		login.WithEmail(email),
		login.WithRedirect(target),
		login.WithTokenWriter(login.TokenWriterFunc(func(token string) error {
			storeErr = h.tokens.Save(w, r, token)
			return storeErr
		})),
		login.WithNavigator(login.NavigatorFunc(func(to string) {
			navigate(w, r, to)
		})),
	)
	view.SetPassword(r.PostFormValue("password"))

	outcome, err := view.Submit(r.Context())
	if err != nil {
		logger.Error("login submit rejected", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		return
	}

	fields := []zap.Field{zap.String("email", logging.MaskEmail(email))}
	if outcome.Succeeded {
		logger.Info("login succeeded", append(fields, zap.String("redirect", outcome.Target))...)
		return
	}

	status := failureStatus(outcome.Err, storeErr)
	logger.Warn("login failed", append(fields, zap.Int("status", status), zap.Error(outcome.Err))...)
	h.renderFailure(w, r, h.pageData(r, view.State(), target), status)
}

func (h *loginHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.tokens.Clear(w)

	target := h.loginPath + "?" + url.Values{"status": {"logged_out"}}.Encode()
	logging.FromContext(r.Context()).Info("logout")
	navigate(w, r, target)
}

func (h *loginHandlers) Home(w http.ResponseWriter, r *http.Request) {
	if _, ok := custommw.TokenFromContext(r.Context()); !ok {
		http.Redirect(w, r, h.loginPath, http.StatusFound)
		return
	}
	templ.Handler(auth.HomePage(auth.HomePageData{
		LogoutPath: h.logoutPath,
		CSRFToken:  custommw.CSRFTokenFromContext(r.Context()),
	})).ServeHTTP(w, r)
}

func (h *loginHandlers) pageData(r *http.Request, state login.State, target string) auth.LoginPageData {
	redirect := ""
	if target != defaultRedirect {
		redirect = target
	}
	return auth.LoginPageData{
		Email:      state.Email,
		Error:      state.Error,
		Loading:    state.Loading,
		Redirect:   redirect,
		LoginPath:  h.loginPath,
		SignupPath: h.signupPath,
		CSRFToken:  custommw.CSRFTokenFromContext(r.Context()),
		CSRFField:  custommw.CSRFFormField,
	}
}

func (h *loginHandlers) render(w http.ResponseWriter, r *http.Request, data auth.LoginPageData, status int) {
	templ.Handler(auth.LoginPage(data), templ.WithStatus(status)).ServeHTTP(w, r)
}

// renderFailure answers htmx with the form fragment and a 200 so the swap
// happens; plain form posts get the full page with the failure status.
func (h *loginHandlers) renderFailure(w http.ResponseWriter, r *http.Request, data auth.LoginPageData, status int) {
	if custommw.IsHTMXRequest(r.Context()) {
		templ.Handler(auth.LoginForm(data)).ServeHTTP(w, r)
		return
	}
	h.render(w, r, data, status)
}

func navigate(w http.ResponseWriter, r *http.Request, target string) {
	if custommw.IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func failureStatus(err, storeErr error) int {
	if storeErr != nil {
		return http.StatusInternalServerError
	}
	var rejected *authapi.RejectedError
	if errors.As(err, &rejected) && rejected.StatusCode < http.StatusInternalServerError {
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}

func messageForQuery(q url.Values) string {
	if q.Get("status") == "logged_out" {
		return loggedOutMessage
	}
	return ""
}

func forceLogin(r *http.Request) bool {
	flag := strings.TrimSpace(r.URL.Query().Get("force"))
	switch strings.ToLower(flag) {
	case "1", "true", "yes", "force":
		return true
	default:
		return false
	}
}

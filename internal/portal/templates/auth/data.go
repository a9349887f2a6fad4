package auth

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// FormID is the element swapped on a failed in-page submission.
const FormID = "login-form"

var plainText = bluemonday.StrictPolicy()

// PlainText reduces backend-provided text to plain text. Templates escape the
// result when writing it.
func PlainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(value)))
}

// LoginPageData encapsulates rendering state for the portal login screen.
type LoginPageData struct {
	Email    string
	Message  string
	Error    string
	Loading  bool
	Redirect string
	// LoginPath is the form action.
	LoginPath  string
	SignupPath string
	CSRFToken  string
	CSRFField  string
}

func (d LoginPageData) signupPath() string {
	if d.SignupPath == "" {
		return "/signup"
	}
	return d.SignupPath
}

func (d LoginPageData) loginPath() string {
	if d.LoginPath == "" {
		return "/login"
	}
	return d.LoginPath
}

func (d LoginPageData) csrfField() string {
	if d.CSRFField == "" {
		return "csrf_token"
	}
	return d.CSRFField
}

func (d LoginPageData) errorText() string {
	return PlainText(d.Error)
}

func (d LoginPageData) messageText() string {
	return PlainText(d.Message)
}

// HomePageData is the state of the signed-in landing page.
type HomePageData struct {
	LogoutPath string
	CSRFToken  string
}

func (d HomePageData) logoutPath() string {
	if d.LogoutPath == "" {
		return "/logout"
	}
	return d.LogoutPath
}

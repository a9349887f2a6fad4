// Package login holds the view-local state of the login page and its submit
// operation. A View belongs to one rendered page; it is never shared between
// visitors.
package login

import (
	"context"
	"errors"
	"strings"
	"sync"

	"careerjourney.app/portal/internal/portal/authapi"
)

// ErrSubmitInFlight is returned when Submit is called while a previous
// submission on the same view has not settled.
var ErrSubmitInFlight = errors.New("login: submission already in progress")

// Authenticator performs the backend login call.
type Authenticator interface {
	Login(ctx context.Context, creds authapi.Credentials) (authapi.LoginResponse, error)
}

// TokenWriter persists the issued token under the fixed "token" key.
type TokenWriter interface {
	StoreToken(token string) error
}

// Navigator moves the visitor to another page after a successful login.
type Navigator interface {
	Navigate(target string)
}

// TokenWriterFunc adapts a function to TokenWriter.
type TokenWriterFunc func(token string) error

// StoreToken calls f(token).
func (f TokenWriterFunc) StoreToken(token string) error { return f(token) }

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

// Navigate calls f(target).
func (f NavigatorFunc) Navigate(target string) { f(target) }

// Phase names the per-attempt state of the view.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// State is a snapshot of the view.
type State struct {
	Email    string
	Password string
	Loading  bool
	Error    string
	// Target is the navigation target once a login succeeded.
	Target string
}

// Phase derives the state-machine position from the snapshot.
func (s State) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseSubmitting
	case s.Target != "":
		return PhaseSucceeded
	case s.Error != "":
		return PhaseFailed
	default:
		return PhaseIdle
	}
}

// Outcome reports how a single submission ended.
type Outcome struct {
	Succeeded bool
	Target    string
	Error     string
	// Err is the underlying failure for logging; it is nil on success.
	Err error
}

// View owns the email, password, loading and error fields of one login page.
type View struct {
	mu       sync.Mutex
	state    State
	redirect string

	auth      Authenticator
	tokens    TokenWriter
	navigator Navigator
}

// Option customises a View.
type Option func(*View)

// WithTokenWriter sets where the issued token is persisted.
func WithTokenWriter(w TokenWriter) Option {
	return func(v *View) {
		v.tokens = w
	}
}

// WithNavigator sets the navigation sink used on success.
func WithNavigator(n Navigator) Option {
	return func(v *View) {
		v.navigator = n
	}
}

// WithRedirect sets the post-login target; empty means "/".
func WithRedirect(target string) Option {
	return func(v *View) {
		v.redirect = target
	}
}

// WithEmail pre-populates the email field.
func WithEmail(email string) Option {
	return func(v *View) {
		v.state.Email = email
	}
}

// NewView constructs an idle view backed by auth.
func NewView(auth Authenticator, opts ...Option) *View {
	if auth == nil {
		panic("login: authenticator is required")
	}
	v := &View{auth: auth}
	for _, opt := range opts {
		opt(v)
	}
	if strings.TrimSpace(v.redirect) == "" {
		v.redirect = "/"
	}
	return v
}

// State returns a copy of the current state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Redirect returns the navigation target used on success.
func (v *View) Redirect() string {
	return v.redirect
}

// SetEmail edits the email field. Edits during a submission do not affect its payload.
func (v *View) SetEmail(email string) {
	v.mu.Lock()
	v.state.Email = email
	v.mu.Unlock()
}

// SetPassword edits the password field.
func (v *View) SetPassword(password string) {
	v.mu.Lock()
	v.state.Password = password
	v.mu.Unlock()
}

// Submit sends the current credentials to the backend. On success the token is
// stored and the navigator is invoked; on failure the error field carries the
// message to show. Loading is reset before Submit returns, whatever the result.
func (v *View) Submit(ctx context.Context) (Outcome, error) {
	v.mu.Lock()
	if v.state.Loading {
		v.mu.Unlock()
		return Outcome{}, ErrSubmitInFlight
	}
	v.state.Loading = true
	v.state.Error = ""
	v.state.Target = ""
	creds := authapi.Credentials{
		Email:    v.state.Email,
		Password: v.state.Password,
	}
	v.mu.Unlock()

	outcome := v.attempt(ctx, creds)

	v.mu.Lock()
	if outcome.Succeeded {
		v.state.Target = outcome.Target
	} else {
		v.state.Error = outcome.Error
	}
	v.state.Loading = false
	v.mu.Unlock()

	if outcome.Succeeded && v.navigator != nil {
		v.navigator.Navigate(outcome.Target)
	}
	return outcome, nil
}

func (v *View) attempt(ctx context.Context, creds authapi.Credentials) Outcome {
	resp, err := v.auth.Login(ctx, creds)
	if err != nil {
		return failure(err)
	}
	if v.tokens != nil {
		if err := v.tokens.StoreToken(resp.Token); err != nil {
			return failure(err)
		}
	}
	return Outcome{Succeeded: true, Target: v.redirect}
}

func failure(err error) Outcome {
	return Outcome{Error: err.Error(), Err: err}
}

package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	loginEndpoint       = "/api/auth/login"
	defaultFailureText  = "Login failed"
	maxResponseBodySize = 1 << 20
)

var (
	// ErrMissingBaseURL is returned when the client is constructed without a backend URL.
	ErrMissingBaseURL = errors.New("authapi: base URL is required")
	// ErrMissingToken is returned when the backend reports success without issuing a token.
	ErrMissingToken = errors.New("authapi: login response did not include a token")
)

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse mirrors the backend payload. Token is set on success; Message on failure.
type LoginResponse struct {
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

// RejectedError reports a non-2xx answer from the backend.
type RejectedError struct {
	StatusCode int
	Message    string
}

// Error returns the backend message, or the generic failure text.
func (e *RejectedError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return defaultFailureText
	}
	return e.Message
}

// DecodeError reports a response body that is not a single JSON value. Its
// text is the parser's message.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Client issues login calls against the authentication backend.
type Client struct {
	base   *url.URL
	client HTTPClient
}

// NewClient constructs a Client for the backend rooted at baseURL.
func NewClient(baseURL string, client HTTPClient) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("authapi: parse base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("authapi: base URL %q must be absolute", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		base:   parsed,
		client: client,
	}, nil
}

// Endpoint returns the resolved login URL.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.base.String(), "/") + loginEndpoint
}

// Login posts the credentials and returns the issued token.
//
// Transport failures are returned unchanged so callers can surface their text.
// Non-2xx responses yield *RejectedError.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(creds); err != nil {
		return LoginResponse{}, fmt.Errorf("authapi: encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), &buf)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("authapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return LoginResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return LoginResponse{}, err
	}
	// The body is parsed before the status is inspected, so a non-JSON error
	// page surfaces as a decode failure.
	payload, err := decodeResponse(body)
	if err != nil {
		return LoginResponse{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return LoginResponse{}, &RejectedError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(payload.Message),
		}
	}
	if strings.TrimSpace(payload.Token) == "" {
		return LoginResponse{}, ErrMissingToken
	}
	return payload, nil
}

// decodeResponse parses the whole body as one JSON value. Fields are only
// picked up when the value is an object and they hold strings; any other
// shape yields an empty LoginResponse.
func decodeResponse(body []byte) (LoginResponse, error) {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return LoginResponse{}, &DecodeError{Err: err}
	}
	object, ok := value.(map[string]any)
	if !ok {
		return LoginResponse{}, nil
	}
	token, _ := object["token"].(string)
	message, _ := object["message"].(string)
	return LoginResponse{Token: token, Message: message}, nil
}

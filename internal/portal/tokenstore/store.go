package tokenstore

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/securecookie"
)

// CookieName is the fixed key the login token is persisted under.
const CookieName = "token"

var (
	// ErrNoToken indicates the request carries no usable token cookie.
	ErrNoToken = errors.New("tokenstore: no token")
	// ErrInvalidConfig indicates the store was initialised with missing keys.
	ErrInvalidConfig = errors.New("tokenstore: invalid config")
)

// Config controls cookie encoding for the token store.
type Config struct {
	HashKey  []byte
	BlockKey []byte
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	Now      func() time.Time
}

// Store persists the login token in a signed (optionally encrypted) cookie.
type Store struct {
	cfg   Config
	codec *securecookie.SecureCookie
	now   func() time.Time
}

// New constructs a Store.
func New(cfg Config) (*Store, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == http.SameSiteDefaultMode {
		cfg.SameSite = http.SameSiteLaxMode
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	// Opaque tokens from the backend can be long JWTs.
	codec.MaxLength(8192)

	return &Store{cfg: cfg, codec: codec, now: now}, nil
}

// Save overwrites the token cookie with token.
func (s *Store) Save(w http.ResponseWriter, r *http.Request, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}
	encoded, err := s.codec.Encode(CookieName, token)
	if err != nil {
		return fmt.Errorf("tokenstore: encode token: %w", err)
	}

	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     s.cfg.Path,
		Domain:   s.cfg.Domain,
		HttpOnly: true,
		Secure:   s.cfg.Secure || (r != nil && r.TLS != nil),
		SameSite: s.cfg.SameSite,
	}
	if expiry, ok := tokenExpiry(token); ok {
		remaining := expiry.Sub(s.now())
		if remaining <= 0 {
			return fmt.Errorf("tokenstore: token expired at %s", expiry.Format(time.RFC3339))
		}
		cookie.Expires = expiry.UTC()
		cookie.MaxAge = int(remaining.Round(time.Second).Seconds())
	}

	http.SetCookie(w, cookie)
	return nil
}

// Load returns the token stored on the request.
func (s *Store) Load(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoToken
	}
	var token string
	if err := s.codec.Decode(CookieName, cookie.Value, &token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Clear expires the token cookie.
func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     s.cfg.Path,
		Domain:   s.cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: s.cfg.SameSite,
	})
}

// tokenExpiry peeks at the exp claim when the token happens to be a JWT. The
// signature is not checked; the backend remains the authority on validity.
func tokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

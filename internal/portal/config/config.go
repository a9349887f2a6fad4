package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultAddress        = ":8080"
	defaultEnvironment    = "development"
	defaultLoginPath      = "/login"
	defaultCSRFCookieName = "portal_csrf"
	defaultEnvFile        = ".env"
	minHashKeyLength      = 32
)

// ErrInvalidConfig indicates a required setting is missing or malformed.
var ErrInvalidConfig = errors.New("config: invalid")

// Config captures runtime configuration for the portal web server.
type Config struct {
	Address        string
	Environment    string
	APIBaseURL     string
	LoginPath      string
	CSRFCookieName string
	Token          TokenConfig
}

// TokenConfig controls how the login token cookie is encoded.
type TokenConfig struct {
	HashKey  []byte
	BlockKey []byte
	Secure   bool
	// Ephemeral reports that HashKey was generated for this process only.
	Ephemeral bool
}

// Load seeds the environment from .env files (missing files are ignored) and
// builds a Config from the process environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{defaultEnvFile}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config using the supplied lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		Address:        get("PORTAL_HTTP_ADDR", defaultAddress),
		Environment:    strings.ToLower(get("PORTAL_ENV", defaultEnvironment)),
		APIBaseURL:     strings.TrimRight(get("API_BASE_URL", ""), "/"),
		LoginPath:      get("PORTAL_LOGIN_PATH", defaultLoginPath),
		CSRFCookieName: get("PORTAL_CSRF_COOKIE", defaultCSRFCookieName),
	}

	if err := validateBaseURL(cfg.APIBaseURL); err != nil {
		return Config{}, err
	}
	if !strings.HasPrefix(cfg.LoginPath, "/") {
		return Config{}, fmt.Errorf("%w: PORTAL_LOGIN_PATH must start with /", ErrInvalidConfig)
	}

	token, err := tokenConfig(cfg.IsProduction(), getenv("PORTAL_TOKEN_HASH_KEY"), getenv("PORTAL_TOKEN_BLOCK_KEY"))
	if err != nil {
		return Config{}, err
	}
	token.Secure = cfg.IsProduction() || parseBool(getenv("PORTAL_COOKIE_SECURE"))
	cfg.Token = token

	return cfg, nil
}

// IsProduction reports whether the portal runs with production hardening.
func (c Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: API_BASE_URL is required", ErrInvalidConfig)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: API_BASE_URL: %v", ErrInvalidConfig, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: API_BASE_URL must be an absolute http(s) URL", ErrInvalidConfig)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: API_BASE_URL is missing a host", ErrInvalidConfig)
	}
	return nil
}

func tokenConfig(production bool, hashKey, blockKey string) (TokenConfig, error) {
	var cfg TokenConfig

	hashKey = strings.TrimSpace(hashKey)
	switch {
	case hashKey != "":
		if len(hashKey) < minHashKeyLength {
			return TokenConfig{}, fmt.Errorf("%w: PORTAL_TOKEN_HASH_KEY must be at least %d bytes", ErrInvalidConfig, minHashKeyLength)
		}
		cfg.HashKey = []byte(hashKey)
	case production:
		return TokenConfig{}, fmt.Errorf("%w: PORTAL_TOKEN_HASH_KEY is required in production", ErrInvalidConfig)
	default:
		key := make([]byte, minHashKeyLength)
		if _, err := rand.Read(key); err != nil {
			return TokenConfig{}, fmt.Errorf("config: generate hash key: %w", err)
		}
		cfg.HashKey = key
		cfg.Ephemeral = true
	}

	blockKey = strings.TrimSpace(blockKey)
	if blockKey != "" {
		switch len(blockKey) {
		case 16, 24, 32:
			cfg.BlockKey = []byte(blockKey)
		default:
			return TokenConfig{}, fmt.Errorf("%w: PORTAL_TOKEN_BLOCK_KEY must be 16, 24 or 32 bytes", ErrInvalidConfig)
		}
	}
	return cfg, nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, populated from the environment.
// cmd/api loads .env files via godotenv before calling Load, so local overrides
// work the same way as real environment variables.
type Config struct {
	Env        string `env:"ENV" envDefault:"development"`
	Port       int    `env:"PORT" envDefault:"8080"`
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	Database  Database
	Redis     Redis
	Token     Token
	Argon2    Argon2
	Reset     Reset
	TOTP      TOTP
	SMTP      SMTP
	OAuth     OAuth
	Sentry    Sentry
	RateLimit RateLimit
	CORS      CORS
}

// Database holds the Postgres connection settings.
type Database struct {
	URL string `env:"DATABASE_URL,required"`
}

// Redis holds the connection settings for the reset-attempt store.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Token configures the signing codec.
type Token struct {
	Secret     string        `env:"JWT_SECRET,required"`
	Issuer     string        `env:"TOKEN_ISSUER" envDefault:"corvid-identity"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"900s"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	PreAuthTTL time.Duration `env:"PREAUTH_TOKEN_TTL" envDefault:"5m"`
	ServiceTTL time.Duration `env:"SERVICE_TOKEN_TTL" envDefault:"1h"`
}

// Argon2 carries the KDF tuning parameters.
type Argon2 struct {
	MemoryKiB   uint32 `env:"ARGON2_MEMORY_KIB" envDefault:"65536"`
	Iterations  uint32 `env:"ARGON2_ITERATIONS" envDefault:"3"`
	Parallelism uint8  `env:"ARGON2_PARALLELISM" envDefault:"2"`
}

// Reset configures the password-reset flow.
type Reset struct {
	TokenTTL      time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	MaxAttempts   int           `env:"RESET_MAX_ATTEMPTS" envDefault:"3"`
	AttemptWindow time.Duration `env:"RESET_ATTEMPT_WINDOW" envDefault:"1h"`
}

// TOTP configures the second factor. SecretKey is hex-encoded; when set, TOTP
// secrets are sealed with AES-GCM before they reach the database.
type TOTP struct {
	Issuer    string `env:"MFA_ISSUER" envDefault:"Corvid Identity"`
	SecretKey string `env:"MFA_SECRET_KEY"`
}

// SMTP configures outbound mail. An empty Host selects the dev mailer, which
// only logs.
type SMTP struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
	TLSMode  string `env:"SMTP_TLS_MODE" envDefault:"starttls"`
}

// OAuth lists the enabled federated providers. Per-provider settings use
// dynamic keys (OAUTH_<NAME>_ISSUER, OAUTH_<NAME>_CLIENT_ID), so they are read
// through Provider rather than struct tags.
type OAuth struct {
	Providers []string `env:"OAUTH_PROVIDERS" envSeparator:","`
}

// OAuthProvider is the per-provider block read from dynamic env keys.
type OAuthProvider struct {
	Name     string
	Issuer   string
	ClientID string
}

// Sentry configures error reporting. Empty DSN disables it.
type Sentry struct {
	DSN string `env:"SENTRY_DSN"`
}

// RateLimit configures the per-IP HTTP limiter.
type RateLimit struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	Burst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
}

// CORS lists the browser origins allowed to call the API. Empty disables the
// CORS middleware entirely, which is right for server-to-server deployments.
type CORS struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Provider returns the settings block for one enabled OAuth provider.
func (o OAuth) Provider(name string) (OAuthProvider, error) {
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	p := OAuthProvider{
		Name:     name,
		Issuer:   os.Getenv("OAUTH_" + key + "_ISSUER"),
		ClientID: os.Getenv("OAUTH_" + key + "_CLIENT_ID"),
	}
	if p.Issuer == "" || p.ClientID == "" {
		return OAuthProvider{}, fmt.Errorf("oauth provider %q: missing OAUTH_%s_ISSUER or OAUTH_%s_CLIENT_ID", name, key, key)
	}
	return p, nil
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }
func (c *Config) IsProduction() bool  { return c.Env == "production" }

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

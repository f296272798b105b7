// Package config handles configuration for the auth server: defaults, a JSON
// overlay, .env/environment variables and finally command-line flags.
package config

import (
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
)

// Mail providers understood by MailProvider.
const (
	MailProviderSMTP = "smtp"
	MailProviderSES  = "ses"
)

// Config holds runtime settings for the auth server.
//
// Required keys have no default and are checked by Validate; everything else
// falls back to LoadDefaults.
type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR"`
	GRPCHealthAddr string `env:"GRPC_HEALTH_ADDR"`
	DatabaseDSN    string `env:"DB_CONNECTION"`
	RedisAddr      string `env:"REDIS_ADDR"`
	LogLevel       string `env:"LOG_LEVEL"`

	JWTKey             string `env:"JWT_KEY"`
	JWTIssuer          string `env:"JWT_ISSUER"`
	JWTAudience        string `env:"JWT_AUDIENCE"`
	AccessTokenMinutes int    `env:"JWT_ACCESS_TOKEN_MINUTES"`
	RefreshTokenDays   int    `env:"JWT_REFRESH_TOKEN_DAYS"`

	GoogleClientID string `env:"GOOGLE_CLIENT_ID"`
	GoogleJWKSURL  string `env:"GOOGLE_JWKS_URL"`

	MailProvider       string `env:"MAIL_PROVIDER"`
	SMTPHost           string `env:"SMTP_HOST"`
	SMTPPort           int    `env:"SMTP_PORT"`
	SMTPUsername       string `env:"SMTP_USERNAME"`
	SMTPPassword       string `env:"SMTP_PASSWORD"`
	SMTPFromName       string `env:"SMTP_FROM_NAME"`
	SESRegion          string `env:"SES_REGION"`
	SESAccessKeyID     string `env:"SES_ACCESS_KEY_ID"`
	SESSecretAccessKey string `env:"SES_SECRET_ACCESS_KEY"`
	SESBaseEndpoint    string `env:"SES_BASE_ENDPOINT"`
	SESFromAddress     string `env:"SES_FROM_ADDRESS"`

	FrontendURLs            []string `env:"FRONTEND_URLS" envSeparator:","`
	FrontendConfirmEmailURL string   `env:"FRONTEND_CONFIRM_EMAIL_URL"`

	// Optional. Without it the reset mail carries only the account id and code.
	FrontendResetPasswordURL string `env:"FRONTEND_RESET_PASSWORD_URL"`

	LockoutMaxFailures   int           `env:"LOCKOUT_MAX_FAILURES"`
	LockoutDuration      time.Duration `env:"LOCKOUT_DURATION"`
	ConfirmationTokenTTL time.Duration `env:"CONFIRMATION_TOKEN_TTL"`
	CleanupInterval      time.Duration `env:"CLEANUP_INTERVAL"`
	DefaultRole          string        `env:"DEFAULT_ROLE"`
	PasswordResetEnabled bool          `env:"PASSWORD_RESET_ENABLED"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME"`
}

// LoadDefaults populates the optional settings. Secrets, issuer/audience,
// token lifetimes, the Google client id, mail credentials and frontend URLs
// are left empty on purpose.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCHealthAddr = ":50051"
	c.LogLevel = "info"
	c.GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	c.MailProvider = MailProviderSMTP
	c.SMTPFromName = "InnerG"
	c.LockoutMaxFailures = 5
	c.LockoutDuration = 15 * time.Minute
	c.ConfirmationTokenTTL = 24 * time.Hour
	c.CleanupInterval = 24 * time.Hour
	c.DefaultRole = common.DefaultRole
	c.ServiceName = "innerg-auth"
}

// AccessTokenTTL is the access token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

// RefreshTokenTTL is the refresh token (and refresh cookie) lifetime.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenDays) * 24 * time.Hour
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and command-line flags, and
// finally validating the result.
func LoadConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStorageConfig loads the same sources as LoadConfig but only checks the
// settings needed to reach storage. Admin tooling uses it.
func LoadStorageConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/QKhanh04/innerg-api/internal/flagx"
	"github.com/QKhanh04/innerg-api/internal/timex"
)

// JsonConfig is the on-disk shape of the optional config file. Durations
// accept both "15m"-style strings and integer nanoseconds. Zero values leave
// the current setting untouched.
type JsonConfig struct {
	HTTPAddr                string         `json:"http_addr"`
	GRPCHealthAddr          string         `json:"grpc_health_addr"`
	DatabaseDSN             string         `json:"database_dsn"`
	RedisAddr               string         `json:"redis_addr"`
	LogLevel                string         `json:"log_level"`
	JWTIssuer               string         `json:"jwt_issuer"`
	JWTAudience             string         `json:"jwt_audience"`
	AccessTokenMinutes      int            `json:"access_token_minutes"`
	RefreshTokenDays        int            `json:"refresh_token_days"`
	GoogleClientID          string         `json:"google_client_id"`
	MailProvider            string         `json:"mail_provider"`
	SMTPHost                string         `json:"smtp_host"`
	SMTPPort                int            `json:"smtp_port"`
	SMTPFromName            string         `json:"smtp_from_name"`
	SESRegion               string         `json:"ses_region"`
	SESFromAddress          string         `json:"ses_from_address"`
	FrontendURLs            []string       `json:"frontend_urls"`
	FrontendConfirmEmailURL string         `json:"frontend_confirm_email_url"`
	FrontendResetPassword   string         `json:"frontend_reset_password_url"`
	LockoutMaxFailures      int            `json:"lockout_max_failures"`
	LockoutDuration         timex.Duration `json:"lockout_duration"`
	ConfirmationTokenTTL    timex.Duration `json:"confirmation_token_ttl"`
	CleanupInterval         timex.Duration `json:"cleanup_interval"`
	DefaultRole             string         `json:"default_role"`
	PasswordResetEnabled    *bool          `json:"password_reset_enabled"`
	OTELEndpoint            string         `json:"otel_endpoint"`
}

// parseJson overlays the file named by -c/-config onto config. Secrets are
// not read from the file; they come from the environment.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCHealthAddr, c.GRPCHealthAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.JWTIssuer, c.JWTIssuer)
	setString(&config.JWTAudience, c.JWTAudience)
	setInt(&config.AccessTokenMinutes, c.AccessTokenMinutes)
	setInt(&config.RefreshTokenDays, c.RefreshTokenDays)
	setString(&config.GoogleClientID, c.GoogleClientID)
	setString(&config.MailProvider, c.MailProvider)
	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPFromName, c.SMTPFromName)
	setString(&config.SESRegion, c.SESRegion)
	setString(&config.SESFromAddress, c.SESFromAddress)
	if len(c.FrontendURLs) > 0 {
		config.FrontendURLs = c.FrontendURLs
	}
	setString(&config.FrontendConfirmEmailURL, c.FrontendConfirmEmailURL)
	setString(&config.FrontendResetPasswordURL, c.FrontendResetPassword)
	setInt(&config.LockoutMaxFailures, c.LockoutMaxFailures)
	if c.LockoutDuration.Duration > 0 {
		config.LockoutDuration = c.LockoutDuration.Duration
	}
	if c.ConfirmationTokenTTL.Duration > 0 {
		config.ConfirmationTokenTTL = c.ConfirmationTokenTTL.Duration
	}
	if c.CleanupInterval.Duration > 0 {
		config.CleanupInterval = c.CleanupInterval.Duration
	}
	setString(&config.DefaultRole, c.DefaultRole)
	if c.PasswordResetEnabled != nil {
		config.PasswordResetEnabled = *c.PasswordResetEnabled
	}
	setString(&config.OTELEndpoint, c.OTELEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

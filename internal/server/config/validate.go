package config

import (
	"net/url"
	"strings"

	"github.com/QKhanh04/innerg-api/internal/common"
)

// Validate reports every missing or invalid required key at once, as
// common.ConfigurationErrors. It returns nil when the config is usable.
func (c *Config) Validate() error {
	var errs common.ConfigurationErrors
	missing := func(key string) {
		errs = append(errs, common.Configuration(key))
	}

	if c.JWTKey == "" {
		missing("JWT_KEY")
	}
	if c.JWTIssuer == "" {
		missing("JWT_ISSUER")
	}
	if c.JWTAudience == "" {
		missing("JWT_AUDIENCE")
	}
	if c.AccessTokenMinutes <= 0 {
		missing("JWT_ACCESS_TOKEN_MINUTES")
	}
	if c.RefreshTokenDays <= 0 {
		missing("JWT_REFRESH_TOKEN_DAYS")
	}
	if c.GoogleClientID == "" {
		missing("GOOGLE_CLIENT_ID")
	}

	switch c.MailProvider {
	case MailProviderSMTP:
		if c.SMTPHost == "" {
			missing("SMTP_HOST")
		}
		if c.SMTPPort <= 0 {
			missing("SMTP_PORT")
		}
		if c.SMTPUsername == "" {
			missing("SMTP_USERNAME")
		}
		if c.SMTPPassword == "" {
			missing("SMTP_PASSWORD")
		}
	case MailProviderSES:
		if c.SESRegion == "" {
			missing("SES_REGION")
		}
		if c.SESAccessKeyID == "" {
			missing("SES_ACCESS_KEY_ID")
		}
		if c.SESSecretAccessKey == "" {
			missing("SES_SECRET_ACCESS_KEY")
		}
		if c.SESFromAddress == "" {
			missing("SES_FROM_ADDRESS")
		}
	default:
		missing("MAIL_PROVIDER")
	}

	origins := c.AllowedOrigins()
	if len(origins) == 0 {
		missing("FRONTEND_URLS")
	}
	if !c.confirmURLAllowed(origins) {
		missing("FRONTEND_CONFIRM_EMAIL_URL")
	}

	if c.LockoutMaxFailures <= 0 {
		missing("LOCKOUT_MAX_FAILURES")
	}
	if c.LockoutDuration <= 0 {
		missing("LOCKOUT_DURATION")
	}
	if c.ConfirmationTokenTTL <= 0 {
		missing("CONFIRMATION_TOKEN_TTL")
	}
	if c.CleanupInterval <= 0 {
		missing("CLEANUP_INTERVAL")
	}
	if c.DefaultRole == "" {
		missing("DEFAULT_ROLE")
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateStorage checks only the lockout and token settings the credential
// store is built from.
func (c *Config) ValidateStorage() error {
	var errs common.ConfigurationErrors
	if c.LockoutMaxFailures <= 0 {
		errs = append(errs, common.Configuration("LOCKOUT_MAX_FAILURES"))
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, common.Configuration("LOCKOUT_DURATION"))
	}
	if c.ConfirmationTokenTTL <= 0 {
		errs = append(errs, common.Configuration("CONFIRMATION_TOKEN_TTL"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// AllowedOrigins returns the configured frontend URLs that parse as absolute
// http(s) URLs, without trailing slashes.
func (c *Config) AllowedOrigins() []string {
	out := make([]string, 0, len(c.FrontendURLs))
	for _, raw := range c.FrontendURLs {
		raw = strings.TrimRight(strings.TrimSpace(raw), "/")
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func (c *Config) confirmURLAllowed(origins []string) bool {
	if c.FrontendConfirmEmailURL == "" {
		return false
	}
	u, err := url.Parse(c.FrontendConfirmEmailURL)
	if err != nil || u.Host == "" {
		return false
	}
	for _, o := range origins {
		if c.FrontendConfirmEmailURL == o || strings.HasPrefix(c.FrontendConfirmEmailURL, o+"/") {
			return true
		}
	}
	return false
}

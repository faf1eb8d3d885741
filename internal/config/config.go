package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// Config is built once at startup and handed to the components that need it.
// Nothing mutates it afterwards.
type Config struct {
	Port         string
	DatabasePath string
	BaseURL      string

	StripeSecret        string
	StripeWebhookSecret string
	StripePriceID       string

	TokenSecret    string
	TokenTTL       time.Duration
	TokenSingleUse bool

	ScoreCeiling int

	AdminKey string
	DevMode  bool

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	NotifyEmail  string

	AllowedOrigins     []string
	RateLimitPerMinute int
	RateLimitBurst     int
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that overwrites them.
	TrustProxyHeaders bool

	LogLevel  string
	SentryDSN string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_PATH", "railgate.db")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("TOKEN_TTL", "168h")
	v.SetDefault("TOKEN_SINGLE_USE", false)
	v.SetDefault("SCORE_CEILING", 100)
	v.SetDefault("DEV_MODE", false)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("EMAIL_FROM", "hello@railgate.app")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 20)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("TRUST_PROXY_HEADERS", false)
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads the process environment (and an optional config.yaml in the
// working directory) into a Config.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	ttl, ttlErr := time.ParseDuration(v.GetString("TOKEN_TTL"))

	cfg := &Config{
		Port:                v.GetString("PORT"),
		DatabasePath:        v.GetString("DATABASE_PATH"),
		BaseURL:             strings.TrimRight(v.GetString("BASE_URL"), "/"),
		StripeSecret:        v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		StripePriceID:       v.GetString("STRIPE_PRICE_ID"),
		TokenSecret:         v.GetString("TOKEN_SECRET"),
		TokenTTL:            ttl,
		TokenSingleUse:      v.GetBool("TOKEN_SINGLE_USE"),
		ScoreCeiling:        v.GetInt("SCORE_CEILING"),
		AdminKey:            v.GetString("ADMIN_KEY"),
		DevMode:             v.GetBool("DEV_MODE"),
		SMTPHost:            v.GetString("SMTP_HOST"),
		SMTPPort:            v.GetInt("SMTP_PORT"),
		SMTPUsername:        v.GetString("SMTP_USER"),
		SMTPPassword:        v.GetString("SMTP_PASS"),
		EmailFrom:           v.GetString("EMAIL_FROM"),
		NotifyEmail:         v.GetString("NOTIFY_EMAIL"),
		AllowedOrigins:      splitList(v.GetString("ALLOWED_ORIGINS")),
		RateLimitPerMinute:  v.GetInt("RATE_LIMIT_PER_MINUTE"),
		RateLimitBurst:      v.GetInt("RATE_LIMIT_BURST"),
		TrustProxyHeaders:   v.GetBool("TRUST_PROXY_HEADERS"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		SentryDSN:           v.GetString("SENTRY_DSN"),
	}

	var result *multierror.Error
	if ttlErr != nil {
		result = multierror.Append(result, fmt.Errorf("TOKEN_TTL: %w", ttlErr))
	}
	if err := cfg.validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var result *multierror.Error

	if c.Port == "" {
		result = multierror.Append(result, errors.New("PORT must not be empty"))
	}
	if c.DatabasePath == "" {
		result = multierror.Append(result, errors.New("DATABASE_PATH must not be empty"))
	}
	if c.TokenSecret == "" {
		result = multierror.Append(result, errors.New("TOKEN_SECRET environment variable is required"))
	} else if len(c.TokenSecret) < 16 {
		result = multierror.Append(result, errors.New("TOKEN_SECRET must be at least 16 characters"))
	}
	if c.TokenTTL <= 0 {
		result = multierror.Append(result, errors.New("TOKEN_TTL must be positive"))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("BASE_URL %q must be an absolute URL", c.BaseURL))
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		result = multierror.Append(result, errors.New("rate limit settings must not be negative"))
	}
	if c.SMTPHost != "" && (c.SMTPUsername == "" || c.SMTPPassword == "") {
		result = multierror.Append(result, errors.New("SMTP_USER and SMTP_PASS are required when SMTP_HOST is set"))
	}

	return result.ErrorOrNil()
}

// StripeEnabled reports whether checkout sessions can be created.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecret != "" && c.StripePriceID != ""
}

// EmailEnabled reports whether outbound mail is configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != ""
}

func (c *Config) SuccessURL() string {
	return c.BaseURL + "/success?session_id={CHECKOUT_SESSION_ID}"
}

func (c *Config) CancelURL() string {
	return c.BaseURL + "/cancel"
}

func (c *Config) DashboardURL(token string) string {
	return c.BaseURL + "/dashboard?token=" + url.QueryEscape(token)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

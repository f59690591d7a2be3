// Package config loads entitlementd settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PaulFidika/entitlekit/core"
	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	RedisURL    string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	// ProviderPlans maps paid plans to provider recurring plan ids.
	ProviderPlans map[entitlements.Plan]string
	// OrderPrices maps paid plans to one-time prices in paise.
	OrderPrices map[entitlements.Plan]int64

	RequestTimeout  time.Duration
	ProviderTimeout time.Duration
	StoreTimeout    time.Duration
	SweepSchedule   string

	LogLevel  logrus.Level
	LogFormat string
}

var planEnv = map[entitlements.Plan]string{
	entitlements.PlanMonthly:    "MONTHLY",
	entitlements.PlanSemiannual: "SEMIANNUAL",
	entitlements.PlanAnnual:     "ANNUAL",
}

// Load reads configuration from the environment. A .env file is loaded if
// present but not required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:              envOrDefault("ENTITLEKIT_HTTP_ADDR", ":8080"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:              strings.TrimSpace(os.Getenv("REDIS_URL")),
		RazorpayKeyID:         strings.TrimSpace(os.Getenv("RAZORPAY_KEY_ID")),
		RazorpayKeySecret:     strings.TrimSpace(os.Getenv("RAZORPAY_KEY_SECRET")),
		RazorpayWebhookSecret: strings.TrimSpace(os.Getenv("RAZORPAY_WEBHOOK_SECRET")),
		RazorpayBaseURL:       strings.TrimSpace(os.Getenv("RAZORPAY_BASE_URL")),
		ProviderPlans:         map[entitlements.Plan]string{},
		OrderPrices:           map[entitlements.Plan]int64{},
		SweepSchedule:         envOrDefault("SWEEP_SCHEDULE", "@every 15m"),
		LogFormat:             strings.ToLower(envOrDefault("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.RequestTimeout, err = envOrDefaultDuration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = envOrDefaultDuration("PROVIDER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = envOrDefaultDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = logrus.ParseLevel(envOrDefault("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	for plan, suffix := range planEnv {
		if id := strings.TrimSpace(os.Getenv("RAZORPAY_PLAN_" + suffix)); id != "" {
			cfg.ProviderPlans[plan] = id
		}
		price, err := envOrDefaultInt64("PRICE_"+suffix+"_PAISE", 0)
		if err != nil {
			return nil, err
		}
		if price > 0 {
			cfg.OrderPrices[plan] = price
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if (c.RazorpayKeyID == "") != (c.RazorpayKeySecret == "") {
		return fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set together")
	}
	if c.RazorpayBaseURL != "" {
		u, err := url.Parse(c.RazorpayBaseURL)
		if err != nil {
			return fmt.Errorf("RAZORPAY_BASE_URL must be a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("RAZORPAY_BASE_URL must use http or https scheme")
		}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("SWEEP_SCHEDULE: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"REQUEST_TIMEOUT":  c.RequestTimeout,
		"PROVIDER_TIMEOUT": c.ProviderTimeout,
		"STORE_TIMEOUT":    c.StoreTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be greater than 0, got %s", name, d)
		}
	}
	return nil
}

// Service returns the core service settings.
func (c *Config) Service() core.Config {
	return core.Config{
		WebhookSecret:   c.RazorpayWebhookSecret,
		ProviderPlans:   c.ProviderPlans,
		OrderPrices:     c.OrderPrices,
		Currency:        "INR",
		StoreTimeout:    c.StoreTimeout,
		ProviderTimeout: c.ProviderTimeout,
	}
}

// Logger builds the process logger.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt64(key string, fallback int64) (int64, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Identity service
	IdentityURL               string
	IdentityTimeout           time.Duration
	IdentityBootstrapAttempts uint

	// Client store (optional driver switch via ENV, default: sqlite)
	StoreDriver     string
	StoreConnection string

	// Session flow
	LogoutMinDuration time.Duration
	LoginPath         string
	OnboardingPath    string
	DashboardPath     string

	// Observability (optional)
	SentryDSN    string
	OTelEndpoint string
	OTelEnabled  bool
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "Refactorly"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envRequired("APP_URL"), // Required: base URL for OAuth redirects
		Port:    envString("PORT", "8090"),

		// Identity service
		IdentityURL:               envRequired("IDENTITY_URL"),
		IdentityTimeout:           envDuration("IDENTITY_TIMEOUT", 15*time.Second),
		IdentityBootstrapAttempts: envUint("IDENTITY_BOOTSTRAP_ATTEMPTS", 3),

		// Client store
		StoreDriver:     envString("STORE_DRIVER", "sqlite"),
		StoreConnection: envString("STORE_CONNECTION", "./data/console.db?_pragma=journal_mode(WAL)"),

		// Session flow
		LogoutMinDuration: envDuration("LOGOUT_MIN_DURATION", 600*time.Millisecond),
		LoginPath:         envString("LOGIN_PATH", "/login"),
		OnboardingPath:    envString("ONBOARDING_PATH", "/app/onboarding"),
		DashboardPath:     envString("DASHBOARD_PATH", "/app/dashboard"),

		// Observability
		SentryDSN:    envString("SENTRY_DSN", ""),
		OTelEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelEnabled:  envBool("OTEL_ENABLED", true),
	}

	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction refuses settings that only make sense on a developer
// machine.
func validateProduction(cfg *Config) {
	if cfg.StoreDriver == "memory" {
		slog.Error("production deployment cannot use the memory client store",
			"hint", "set STORE_DRIVER=sqlite or STORE_DRIVER=pgx")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envUint(key string, def uint) uint {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		slog.Warn("config invalid count, using default", "key", key, "value", v, "default", def)
		return def
	}
	return uint(n)
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Sanitized returns a copy of the config with only public/safe fields.
// Safe to expose in ctx, templates and client-facing contexts.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName: c.AppName,
		AppEnv:  c.AppEnv,
		AppURL:  c.AppURL,
		Port:    c.Port,

		LogoutMinDuration: c.LogoutMinDuration,
		LoginPath:         c.LoginPath,
		OnboardingPath:    c.OnboardingPath,
		DashboardPath:     c.DashboardPath,
	}
}

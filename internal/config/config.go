package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	BookingAPIBaseURL  string
	BookingAPIKey      string
	RedisURL           string
	DatabaseURL        string
	AMQPURL            string
	CORSAllowedOrigins []string
	DefaultTimezone    string
	CurrencyCode       string

	SessionTTL          time.Duration
	CartTTL             time.Duration
	CompletedBookingTTL time.Duration
	BackendCacheTTL     time.Duration

	OutboundTimeout     time.Duration
	RetryMaxAttempts    int
	RetryBase           time.Duration
	RetryJitter         float64
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	PromoRateLimitMax    int
	PromoRateLimitWindow time.Duration

	BodyLimitBytes         int64
	SecurityHeadersEnabled bool
	IdempotencyTTL         time.Duration
}

// Load reads the API configuration from environment variables and optional
// .env files.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if cfg.BookingAPIBaseURL == "" {
		return nil, errors.New("BOOKING_API_BASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	return cfg, nil
}

// LoadWorker reads the configuration of the ledger worker, which needs the
// database and the broker but not the booking API.
func LoadWorker() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if !cfg.LedgerEnabled() {
		return nil, errors.New("DATABASE_URL is required")
	}
	if !cfg.EventsEnabled() {
		return nil, errors.New("AMQP_URL is required")
	}
	return cfg, nil
}

func read() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		BookingAPIBaseURL:  strings.TrimRight(strings.TrimSpace(k.String("BOOKING_API_BASE_URL")), "/"),
		BookingAPIKey:      strings.TrimSpace(k.String("BOOKING_API_KEY")),
		RedisURL:           k.String("REDIS_URL"),
		DatabaseURL:        k.String("DATABASE_URL"),
		AMQPURL:            k.String("AMQP_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		DefaultTimezone:    valueOrDefault(k.String("DEFAULT_TIMEZONE"), "America/Phoenix"),
		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "USD")),

		SessionTTL:          parseDuration(k.String("SESSION_TTL"), "2h"),
		CartTTL:             parseDuration(k.String("CART_TTL"), "168h"),
		CompletedBookingTTL: parseDuration(k.String("COMPLETED_BOOKING_TTL"), "1h"),
		BackendCacheTTL:     parseDuration(k.String("BACKEND_CACHE_TTL"), "5m"),

		OutboundTimeout:     parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryJitter:         parseFloat(k.String("RETRY_JITTER"), 0.2),
		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "5s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),

		PromoRateLimitMax:    parseInt(k.String("PROMO_RATE_LIMIT_MAX"), 10),
		PromoRateLimitWindow: parseDuration(k.String("PROMO_RATE_LIMIT_WINDOW"), "1m"),

		BodyLimitBytes:         int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeadersEnabled: parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		IdempotencyTTL:         parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
	}
	return cfg, nil
}

// LedgerEnabled reports whether confirmed bookings are written to Postgres.
func (c *Config) LedgerEnabled() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// EventsEnabled reports whether booking events are published to RabbitMQ.
func (c *Config) EventsEnabled() bool {
	return strings.TrimSpace(c.AMQPURL) != ""
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	return withEnv(env, Load)
}

// LoadWorkerForTests is LoadForTests for the worker configuration.
func LoadWorkerForTests(env map[string]string) (*Config, error) {
	return withEnv(env, LoadWorker)
}

func withEnv(env map[string]string, load func() (*Config, error)) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

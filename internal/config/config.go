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

	"github.com/noah-isme/toko-kasir/internal/cart"
	"github.com/noah-isme/toko-kasir/internal/credit"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	WorkerPort         string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	MigrateOnStart     bool
	MaxBodyBytes       int64
	EnableHSTS         bool

	Location       *time.Location
	CartTTL        time.Duration
	LedgerCacheTTL time.Duration
	IdempotencyTTL time.Duration
	CommitLockTTL  time.Duration
	LockRetry      time.Duration
	CreditPolicies map[cart.Channel]credit.Policy

	RetryBase           time.Duration
	RetryMaxAttempts    int
	RetryJitterPercent  float64
	OutboundTimeout     time.Duration
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	RateLimitCheckout string
	QueueConcurrency  int
	QueueMaxRetry     int

	Obs Obs
}

// Obs toggles logging, metrics and tracing.
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	loc, err := time.LoadLocation(valueOrDefault(k.String("TIMEZONE"), "Asia/Jakarta"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	policies := make(map[cart.Channel]credit.Policy, 3)
	for _, p := range []struct {
		channel  cart.Channel
		key      string
		fallback credit.Policy
	}{
		{cart.ChannelAdmin, "CREDIT_POLICY_ADMIN", credit.WarnOnly},
		{cart.ChannelKasir, "CREDIT_POLICY_KASIR", credit.WarnOnly},
		{cart.ChannelSales, "CREDIT_POLICY_SALES", credit.BlockOnExceed},
	} {
		policy := p.fallback
		if raw := strings.TrimSpace(k.String(p.key)); raw != "" {
			if policy, err = credit.ParsePolicy(raw); err != nil {
				return nil, fmt.Errorf("%s: %w", p.key, err)
			}
		}
		policies[p.channel] = policy
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		WorkerPort:         valueOrDefault(k.String("WORKER_PORT"), "9090"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START"), false),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 64<<10)),
		EnableHSTS:         parseBool(k.String("SECURITY_ENABLE_HSTS"), false),

		Location:       loc,
		CartTTL:        parseDuration(k.String("CART_TTL"), "12h"),
		LedgerCacheTTL: parseDuration(k.String("LEDGER_CACHE_TTL"), "30s"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CommitLockTTL:  parseDuration(k.String("COMMIT_LOCK_TTL"), "15s"),
		LockRetry:      parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),
		CreditPolicies: policies,

		RetryBase:           parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent:  parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		OutboundTimeout:     parseDuration(k.String("OUTBOUND_TIMEOUT"), "2s"),
		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		RateLimitCheckout: valueOrDefault(k.String("RATE_LIMIT_CHECKOUT"), "30-M"),
		QueueConcurrency:  parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueueMaxRetry:     parseInt(k.String("QUEUE_MAX_RETRY"), 5),

		Obs: Obs{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "kasir"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), true),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
			PprofEnabled:     parseBool(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	return addr(c.Port, "8080")
}

// WorkerAddr returns the address of the worker's health and metrics server.
func (c *Config) WorkerAddr() string {
	return addr(c.WorkerPort, "9090")
}

func addr(port, fallback string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		port = fallback
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
		return strings.TrimSpace(value)
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

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return parsed
	}
	return fallback
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
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
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

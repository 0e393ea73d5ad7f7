// Package config provides configuration loading for the store API.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// godotenv.Load() does not override already-set environment variables,
// preserving OS env > .env precedence.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// .env.local holds local overrides and is gitignored
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Storage backends accepted in STORE_BACKEND.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Config captures environment-driven settings for the API process.
type Config struct {
	Env            string // Deployment environment (dev, staging, prod)
	Address        string // HTTP listen address derived from PORT
	MetricsAddress string // Separate Prometheus listener; empty disables it

	FrontendURL string // Production CORS origin
	DevOrigin   string // Local development CORS origin

	MongoURI            string
	MongoDatabase       string
	MongoConnectTimeout time.Duration
	StoreBackend        string

	BodyLimit         int64         // Maximum request body size in bytes
	RequestTimeout    time.Duration // Per-request deadline; zero disables it
	ReadinessGate     bool          // Reject data routes with 503 until the database is connected
	LegacyErrorStatus bool          // Answer every handled failure with 500

	WebhookSecret    string
	WebhookTolerance time.Duration

	LogLevel  string
	LogFormat string

	OTLPEndpoint string
	OTLPInsecure bool
}

// Default configuration values used when environment variables are not set
const (
	defaultPort                = "5003"
	defaultMetricsAddress      = ":9090"
	defaultDevOrigin           = "http://localhost:5173"
	defaultMongoDatabase       = "tienda"
	defaultMongoConnectTimeout = 30 * time.Second
	defaultBodyLimit           = 100 << 10
	defaultRequestTimeout      = 30 * time.Second
	defaultWebhookTolerance    = 5 * time.Minute
)

// Load reads environment variables and produces a Config suitable for wiring the service.
// Returns an error if a variable is present but invalid.
func Load() (Config, error) {
	cfg := Config{
		Env:           getEnv("APP_ENV", "dev"),
		Address:       ":" + getEnv("PORT", defaultPort),
		DevOrigin:     defaultDevOrigin,
		FrontendURL:   strings.TrimSpace(os.Getenv("FRONTEND_URL")),
		MongoURI:      strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase: getEnv("MONGO_DB", defaultMongoDatabase),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:  parseBool(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")),
	}

	// An explicitly empty METRICS_ADDR disables the metrics listener
	if addr, exists := os.LookupEnv("METRICS_ADDR"); exists {
		cfg.MetricsAddress = addr
	} else {
		cfg.MetricsAddress = defaultMetricsAddress
	}

	if backend, exists := os.LookupEnv("STORE_BACKEND"); exists {
		cfg.StoreBackend = strings.ToLower(strings.TrimSpace(backend))
	} else {
		cfg.StoreBackend = BackendMongo
	}
	if cfg.StoreBackend != BackendMongo && cfg.StoreBackend != BackendMemory {
		return Config{}, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}

	if raw := os.Getenv("BODY_LIMIT_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid BODY_LIMIT_BYTES: %q", raw)
		}
		cfg.BodyLimit = n
	} else {
		cfg.BodyLimit = defaultBodyLimit
	}

	var err error
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT_SECONDS", defaultRequestTimeout, true); err != nil {
		return Config{}, err
	}
	if cfg.MongoConnectTimeout, err = durationEnv("MONGO_CONNECT_TIMEOUT_SECONDS", defaultMongoConnectTimeout, false); err != nil {
		return Config{}, err
	}
	if cfg.WebhookTolerance, err = durationEnv("WEBHOOK_TOLERANCE_SECONDS", defaultWebhookTolerance, true); err != nil {
		return Config{}, err
	}

	cfg.ReadinessGate = parseBool(os.Getenv("READINESS_GATE"))
	cfg.LegacyErrorStatus = parseBool(os.Getenv("FAULT_LEGACY_STATUS"))

	return cfg, nil
}

// AllowedOrigins returns the CORS allow-list: the fixed development origin
// followed by FrontendURL. An unset FrontendURL adds nothing, so it can never
// match an empty Origin header.
func (c Config) AllowedOrigins() []string {
	origins := make([]string, 0, 2)
	if c.DevOrigin != "" {
		origins = append(origins, c.DevOrigin)
	}
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	return origins
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// parseBool converts a string to a boolean value, returning false if parsing fails
func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func durationEnv(key string, fallback time.Duration, allowZero bool) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, nil
	}
	d, err := parseSeconds(raw, allowZero)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// parseSeconds converts a string representation of seconds to a time.Duration
func parseSeconds(raw string, allowZero bool) (time.Duration, error) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if seconds < 0 || (seconds == 0 && !allowZero) {
		return 0, errors.New("value out of range")
	}
	return time.Duration(seconds) * time.Second, nil
}

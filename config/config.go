// Package config loads remitgate settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/layer-3/remitgate/core"
)

// Config captures environment-driven settings for the gateway
type Config struct {
	Env      string // deployment environment (development, staging, production)
	HTTPAddr string
	LogLevel slog.Level
	RedisURL string // empty selects the in-memory stores

	SessionSecret          []byte
	SessionMaxAge          time.Duration
	SessionRefreshEnabled  bool
	SessionRefreshInterval time.Duration
	AccessTokenKeyFile     string // PEM encoded P-256 key; empty generates one per process

	NonceTTL       time.Duration
	IdempotencyTTL time.Duration

	RateLimitWindow  time.Duration
	RateLimitAuth    int
	RateLimitWrite   int
	RateLimitGeneral int

	MaxBodyBytes       int64
	CORSAllowedOrigins []string
	TrustedProxies     []string
	E2EBypassToken     string
	AdminIdentities    []string

	AuditCapacity   int
	SweepInterval   time.Duration
	ShutdownTimeout time.Duration
}

// Default configuration values used when variables are not set
const (
	defaultEnv             = "development"
	defaultHTTPAddr        = ":8080"
	defaultSessionMaxAge   = 7 * 24 * time.Hour
	defaultRefreshInterval = time.Hour
	defaultNonceTTL        = 5 * time.Minute
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultRateWindow      = time.Minute
	defaultRateAuth        = 10
	defaultRateWrite       = 30
	defaultRateGeneral     = 120
	defaultMaxBodyBytes    = 1 << 20
	defaultAuditCapacity   = 500
	defaultSweepInterval   = time.Minute
	defaultShutdownTimeout = 10 * time.Second

	minSessionSecret = 32
)

// LoadDotenv reads .env and .env.local when present. Variables already set
// in the environment win.
func LoadDotenv() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", file, err)
		}
	}
}

// Production reports whether the gateway runs in production
func (c Config) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Load reads the environment into a Config and validates it
func Load() (Config, error) {
	var err error
	cfg := Config{
		Env:                strings.ToLower(getString("APP_ENV", defaultEnv)),
		HTTPAddr:           getString("HTTP_ADDR", defaultHTTPAddr),
		RedisURL:           os.Getenv("REDIS_URL"),
		SessionSecret:      []byte(os.Getenv("SESSION_SECRET")),
		AccessTokenKeyFile: os.Getenv("ACCESS_TOKEN_KEY_FILE"),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS"),
		TrustedProxies:     getList("TRUSTED_PROXIES"),
		E2EBypassToken:     os.Getenv("E2E_BYPASS_TOKEN"),
		AdminIdentities:    getList("ADMIN_IDENTITIES"),
	}

	if cfg.LogLevel, err = getLevel("LOG_LEVEL", slog.LevelInfo); err != nil {
		return Config{}, err
	}
	if cfg.SessionMaxAge, err = getDuration("SESSION_MAX_AGE", defaultSessionMaxAge); err != nil {
		return Config{}, err
	}
	if cfg.SessionRefreshEnabled, err = getBool("SESSION_REFRESH_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.SessionRefreshInterval, err = getDuration("SESSION_REFRESH_INTERVAL", defaultRefreshInterval); err != nil {
		return Config{}, err
	}
	if cfg.NonceTTL, err = getDuration("NONCE_TTL", defaultNonceTTL); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", defaultRateWindow); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitAuth, err = getInt("RATE_LIMIT_AUTH", defaultRateAuth); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitWrite, err = getInt("RATE_LIMIT_WRITE", defaultRateWrite); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitGeneral, err = getInt("RATE_LIMIT_GENERAL", defaultRateGeneral); err != nil {
		return Config{}, err
	}
	maxBody, err := getInt("MAX_BODY_BYTES", defaultMaxBodyBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.AuditCapacity, err = getInt("AUDIT_CAPACITY", defaultAuditCapacity); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that Load cannot express per variable
func (c Config) Validate() error {
	if len(c.SessionSecret) < minSessionSecret {
		return fmt.Errorf("SESSION_SECRET: %w", core.ErrWeakSecret)
	}
	if c.RateLimitAuth < 1 || c.RateLimitWrite < 1 || c.RateLimitGeneral < 1 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.MaxBodyBytes < 1 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	if c.Production() && c.E2EBypassToken != "" {
		slog.Warn("E2E_BYPASS_TOKEN is ignored in production")
	}
	return nil
}

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q is not a positive duration", key, raw)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getLevel(key string, fallback slog.Level) (slog.Level, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return level, nil
}

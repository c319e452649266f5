// Package config loads kodjadmin settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Token response shapes accepted from the refresh endpoint.
const (
	TokenShapeAuto     = "auto"
	TokenShapeFlat     = "flat"
	TokenShapeEnvelope = "envelope"
)

// Store backends.
const (
	StoreBBolt  = "bbolt"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all configuration for kodjadmin.
type Config struct {
	LogLevel string `env:"KODJ_LOG_LEVEL" envDefault:"info"`

	// Backend contract
	APIBaseURL      string        `env:"KODJ_API_BASE_URL" envDefault:"https://api-test.kodj.dev/api/v1"`
	LoginPath       string        `env:"KODJ_LOGIN_PATH" envDefault:"/auth/login"`
	VerifyOTPPath   string        `env:"KODJ_VERIFY_OTP_PATH" envDefault:"/auth/verify-login-otp"`
	RefreshPath     string        `env:"KODJ_REFRESH_PATH" envDefault:"/auth/token/refresh"`
	RefreshMethod   string        `env:"KODJ_REFRESH_METHOD" envDefault:"POST"`
	TokenShape      string        `env:"KODJ_TOKEN_SHAPE" envDefault:"auto"`
	PrincipalPath   string        `env:"KODJ_PRINCIPAL_PATH" envDefault:"/users/details"`
	RequestTimeout  time.Duration `env:"KODJ_REQUEST_TIMEOUT" envDefault:"30s"`
	DeviceType      string        `env:"KODJ_DEVICE_TYPE" envDefault:"web"`

	// Session
	RenewInterval  time.Duration `env:"KODJ_RENEW_INTERVAL" envDefault:"15m"`
	RenewSkew      time.Duration `env:"KODJ_RENEW_SKEW" envDefault:"1m"`
	ResendCooldown time.Duration `env:"KODJ_RESEND_COOLDOWN" envDefault:"30s"`
	LocalProvider  string        `env:"KODJ_LOCAL_PROVIDER" envDefault:"LOCAL"`
	RequiredRole   string        `env:"KODJ_REQUIRED_ROLE" envDefault:""`

	// Token store
	Profile         string `env:"KODJ_PROFILE" envDefault:"default"`
	Store           string `env:"KODJ_STORE" envDefault:"bbolt"`
	DataDir         string `env:"KODJ_DATA_DIR"`
	StorePassphrase string `env:"KODJ_STORE_PASSPHRASE"`

	// Redis
	RedisAddr   string `env:"KODJ_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass   string `env:"KODJ_REDIS_PASSWORD" envDefault:""`
	RedisDB     int    `env:"KODJ_REDIS_DB" envDefault:"0"`
	RedisPrefix string `env:"KODJ_REDIS_PREFIX" envDefault:"kodjadmin:"`

	// Circuit breaker
	BreakerEnabled      bool          `env:"KODJ_BREAKER_ENABLED" envDefault:"true"`
	BreakerMinRequests  uint32        `env:"KODJ_BREAKER_MIN_REQUESTS" envDefault:"5"`
	BreakerFailureRatio float64       `env:"KODJ_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerTimeout      time.Duration `env:"KODJ_BREAKER_TIMEOUT" envDefault:"30s"`

	// Console
	ConsoleAddr string `env:"KODJ_CONSOLE_ADDR" envDefault:"127.0.0.1:8088"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants. It is exported so callers can
// re-check after applying flag overrides.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("KODJ_API_BASE_URL must be an absolute URL: %q", c.APIBaseURL)
	}
	for name, p := range map[string]string{
		"KODJ_LOGIN_PATH":      c.LoginPath,
		"KODJ_VERIFY_OTP_PATH": c.VerifyOTPPath,
		"KODJ_REFRESH_PATH":    c.RefreshPath,
		"KODJ_PRINCIPAL_PATH":  c.PrincipalPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/': %q", name, p)
		}
	}
	switch strings.ToUpper(c.RefreshMethod) {
	case "POST", "GET":
	default:
		return fmt.Errorf("KODJ_REFRESH_METHOD must be POST or GET: %q", c.RefreshMethod)
	}
	switch c.TokenShape {
	case TokenShapeAuto, TokenShapeFlat, TokenShapeEnvelope:
	default:
		return fmt.Errorf("KODJ_TOKEN_SHAPE must be one of auto, flat, envelope: %q", c.TokenShape)
	}
	switch c.Store {
	case StoreBBolt, StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("KODJ_STORE must be one of bbolt, memory, redis: %q", c.Store)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("KODJ_REQUEST_TIMEOUT must be positive")
	}
	if c.RenewInterval <= 0 {
		return fmt.Errorf("KODJ_RENEW_INTERVAL must be positive")
	}
	if c.RenewSkew < 0 || c.ResendCooldown < 0 {
		return fmt.Errorf("KODJ_RENEW_SKEW and KODJ_RESEND_COOLDOWN must not be negative")
	}
	if strings.TrimSpace(c.Profile) == "" || strings.ContainsAny(c.Profile, ":/") {
		return fmt.Errorf("KODJ_PROFILE must be a non-empty name without ':' or '/': %q", c.Profile)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("KODJ_BREAKER_FAILURE_RATIO must be in (0, 1]: %v", c.BreakerFailureRatio)
	}
	return nil
}

// BoltPath is the location of the bbolt token database.
func (c *Config) BoltPath() string {
	return filepath.Join(c.DataDir, "tokens.db")
}

// KeyFilePath is the location of the wrapping key used when no passphrase is
// configured.
func (c *Config) KeyFilePath() string {
	return filepath.Join(c.DataDir, "store.key")
}

func defaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(base, "kodjadmin"), nil
}

// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment rails.
const (
	PaymentModeSimulated = "simulated"
	PaymentModeX402      = "x402"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	FrontendURL   string
	DBPath        string
	LogLevel      string
	AdminToken    string
	PlatformsFile string

	Session SessionConfig
	Chain   ChainConfig
	Wallet  WalletConfig
	Devices DeviceConfig
}

// SessionConfig tunes the simulated identity provider.
type SessionConfig struct {
	InitDelay        time.Duration
	EmailLatency     time.Duration
	OAuthSecret      string
	OAuthLatency     time.Duration
	OAuthFailureRate float64
	EchoCodes        bool
}

// ChainConfig selects the chain collaborators.
type ChainConfig struct {
	PaymentMode    string
	X402Endpoint   string
	MovementRPC    string
	Treasury       string
	MintLatency    time.Duration
	RequestTimeout time.Duration
}

// WalletConfig bounds wallet operations. Zero disables a limit.
type WalletConfig struct {
	TopUpMin decimal.Decimal
	TopUpMax decimal.Decimal
}

// DeviceConfig controls in-memory device lifetime.
type DeviceConfig struct {
	IdleTTL       time.Duration
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		DBPath:        getEnv("DB_PATH", "./data/nero.db"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),
		PlatformsFile: getEnv("PLATFORMS_FILE", ""),
		Session: SessionConfig{
			InitDelay:        getEnvDuration("SESSION_INIT_DELAY", 800*time.Millisecond),
			EmailLatency:     getEnvDuration("EMAIL_LATENCY", 1200*time.Millisecond),
			OAuthSecret:      getEnv("OAUTH_SECRET", "nero-dev-oauth-secret"),
			OAuthLatency:     getEnvDuration("OAUTH_LATENCY", 1500*time.Millisecond),
			OAuthFailureRate: getEnvFloat("OAUTH_FAILURE_RATE", 0),
			EchoCodes:        getEnvBool("ECHO_LOGIN_CODES", false),
		},
		Chain: ChainConfig{
			PaymentMode:    strings.ToLower(getEnv("PAYMENT_MODE", PaymentModeSimulated)),
			X402Endpoint:   getEnv("X402_ENDPOINT", ""),
			MovementRPC:    getEnv("MOVEMENT_RPC", "https://aptos.testnet.porto.movementlabs.xyz/v1"),
			Treasury:       getEnv("NERO_TREASURY", ""),
			MintLatency:    getEnvDuration("MINT_LATENCY", 2*time.Second),
			RequestTimeout: getEnvDuration("CHAIN_REQUEST_TIMEOUT", 10*time.Second),
		},
		Wallet: WalletConfig{
			TopUpMin: getEnvDecimal("TOPUP_MIN", decimal.Zero),
			TopUpMax: getEnvDecimal("TOPUP_MAX", decimal.Zero),
		},
		Devices: DeviceConfig{
			IdleTTL:       getEnvDuration("DEVICE_IDLE_TTL", 60*time.Minute),
			SessionTTL:    getEnvDuration("DEVICE_SESSION_TTL", 30*24*time.Hour),
			SweepInterval: getEnvDuration("DEVICE_SWEEP_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Chain.PaymentMode {
	case PaymentModeSimulated:
	case PaymentModeX402:
		if c.Chain.X402Endpoint == "" {
			return fmt.Errorf("X402_ENDPOINT is required when PAYMENT_MODE=x402")
		}
	default:
		return fmt.Errorf("PAYMENT_MODE must be %q or %q", PaymentModeSimulated, PaymentModeX402)
	}
	if c.Session.OAuthFailureRate < 0 || c.Session.OAuthFailureRate > 1 {
		return fmt.Errorf("OAUTH_FAILURE_RATE must be within [0, 1]")
	}
	if c.Session.OAuthSecret == "" {
		return fmt.Errorf("OAUTH_SECRET cannot be empty")
	}
	if c.Wallet.TopUpMin.IsNegative() || c.Wallet.TopUpMax.IsNegative() {
		return fmt.Errorf("TOPUP_MIN and TOPUP_MAX must be >= 0")
	}
	if c.Wallet.TopUpMax.IsPositive() && c.Wallet.TopUpMax.LessThan(c.Wallet.TopUpMin) {
		return fmt.Errorf("TOPUP_MAX must be >= TOPUP_MIN")
	}
	if c.Devices.IdleTTL <= 0 {
		return fmt.Errorf("DEVICE_IDLE_TTL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

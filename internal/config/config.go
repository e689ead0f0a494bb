// Package config provides configuration management for powerbot.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for an automation run and the status API.
type Config struct {
	// Server settings
	Port     int
	LogLevel string

	// Browser settings
	ChromePath        string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	DefaultTimeout    time.Duration
	NavigationTimeout time.Duration

	// Retry policy settings
	RetryEnabled           bool
	RetryMaxRetries        int
	RetryDelay             time.Duration
	RetryBackoffMultiplier float64
	RetryJitter            float64

	// Run settings
	TargetURL          string
	MaxIterations      int
	NextSelector       string // pagination element; empty means single page
	ConsentAutoDismiss bool

	// Login settings
	LoginRequired         bool
	LoginUsername         string
	LoginPassword         string
	LoginUsernameSelector string
	LoginPasswordSelector string
	LoginSubmitSelector   string

	// Storage settings
	SnapshotPath          string
	FlushPolicy           string
	StateEncryptionKey    string // base64 32-byte key; empty stores state in the clear
	StateEncryptionSecret string // passphrase alternative; the exact key wins when both are set

	// Authentication
	APIAuthSecret  string // HMAC secret for status API bearer tokens
	APIRequireAuth bool   // also guard the read-only routes

	// Server lifecycle
	IdleTimeout time.Duration // exit after this much API inactivity; 0 disables
}

// Load creates a Config from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8490),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ChromePath:        getEnv("CHROME_PATH", ""),
		Headless:          getEnv("HEADLESS", "true") == "true",
		ViewportWidth:     getEnvInt("VIEWPORT_WIDTH", 1920),
		ViewportHeight:    getEnvInt("VIEWPORT_HEIGHT", 1080),
		DefaultTimeout:    getEnvDuration("DEFAULT_TIMEOUT", 30*time.Second),
		NavigationTimeout: getEnvDuration("NAVIGATION_TIMEOUT", 60*time.Second),

		RetryEnabled:           getEnv("RETRY_ENABLED", "true") == "true",
		RetryMaxRetries:        getEnvInt("RETRY_MAX_RETRIES", 3),
		RetryDelay:             getEnvDuration("RETRY_DELAY", 100*time.Millisecond),
		RetryBackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2),
		RetryJitter:            getEnvFloat("RETRY_JITTER", 0),

		TargetURL:          getEnv("TARGET_URL", ""),
		MaxIterations:      getEnvInt("MAX_ITERATIONS", 0),
		NextSelector:       getEnv("NEXT_SELECTOR", ""),
		ConsentAutoDismiss: getEnv("CONSENT_AUTO_DISMISS", "true") == "true",

		LoginRequired:         getEnv("LOGIN_REQUIRED", "false") == "true",
		LoginUsername:         getEnv("LOGIN_USERNAME", ""),
		LoginPassword:         getEnv("LOGIN_PASSWORD", ""),
		LoginUsernameSelector: getEnv("LOGIN_USERNAME_SELECTOR", "input[name=username]"),
		LoginPasswordSelector: getEnv("LOGIN_PASSWORD_SELECTOR", "input[name=password]"),
		LoginSubmitSelector:   getEnv("LOGIN_SUBMIT_SELECTOR", "button[type=submit]"),

		SnapshotPath:          getEnv("SNAPSHOT_PATH", "data/powerbot.db"),
		FlushPolicy:           getEnv("FLUSH_POLICY", "every-write"),
		StateEncryptionKey:    getEnv("STATE_ENCRYPTION_KEY", ""),
		StateEncryptionSecret: getEnv("STATE_ENCRYPTION_SECRET", ""),

		APIAuthSecret:  getEnv("API_AUTH_SECRET", ""),
		APIRequireAuth: getEnv("API_REQUIRE_AUTH", "false") == "true",

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

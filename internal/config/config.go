package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Env        string
	LogLevel   string
	LogFormat  string
	APIBaseURL string
	APITimeout time.Duration
	Timezone   string

	// Booking
	BookingWindowDays int
	HomeVisitCity     string

	// Payment polling and compensation
	PaymentPollInterval     time.Duration
	PaymentPollMaxAttempts  int
	PaymentPollTimeout      time.Duration
	CompensationMaxAttempts int
	CompensationBaseDelay   time.Duration
	OpenPaymentURL          bool

	// Local persistence
	StoreBackend   string
	StoreFile      string
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	RedisKeyPrefix string

	// Sandbox backend
	SandboxPort      string
	SandboxJWTSecret string
	SandboxPublicURL string
	MetricsAddr      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:        getEnv("ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "json"))),
		APIBaseURL: strings.TrimRight(getEnv("API_BASE_URL", "http://10.0.2.2:5199"), "/"),
		APITimeout: getEnvAsDuration("API_TIMEOUT", 15*time.Second),
		Timezone:   getEnv("APP_TIMEZONE", "Asia/Ho_Chi_Minh"),

		BookingWindowDays: getEnvAsInt("BOOKING_WINDOW_DAYS", 7),
		HomeVisitCity:     getEnv("HOME_VISIT_CITY", "Thành phố Hồ Chí Minh"),

		PaymentPollInterval:     getEnvAsDuration("PAYMENT_POLL_INTERVAL", 5*time.Second),
		PaymentPollMaxAttempts:  getEnvAsInt("PAYMENT_POLL_MAX_ATTEMPTS", 60),
		PaymentPollTimeout:      getEnvAsDuration("PAYMENT_POLL_TIMEOUT", 10*time.Minute),
		CompensationMaxAttempts: getEnvAsInt("COMPENSATION_MAX_ATTEMPTS", 4),
		CompensationBaseDelay:   getEnvAsDuration("COMPENSATION_BASE_DELAY", 2*time.Second),
		OpenPaymentURL:          getEnvAsBool("OPEN_PAYMENT_URL", true),

		StoreBackend:   strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "file"))),
		StoreFile:      getEnv("STORE_FILE", defaultStoreFile()),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "medcare:"),

		SandboxPort:      getEnv("SANDBOX_PORT", "5199"),
		SandboxJWTSecret: getEnv("SANDBOX_JWT_SECRET", "sandbox-secret"),
		SandboxPublicURL: getEnv("SANDBOX_PUBLIC_URL", ""),
		MetricsAddr:      getEnv("METRICS_ADDR", ""),
	}
}

// Location resolves the configured timezone. Vietnam does not observe DST, so
// a fixed +07:00 zone is a safe stand-in when tzdata is missing.
func (c *Config) Location() *time.Location {
	if c != nil && c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	return time.FixedZone("ICT", 7*60*60)
}

func defaultStoreFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "medcare", "store.json")
	}
	return filepath.Join(home, ".medcare", "store.json")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

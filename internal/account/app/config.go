package app

import (
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/accounts/internal/account/service"
)

// Pending login backends.
const (
	PendingBackendSQLite = "sqlite"
	PendingBackendRedis  = "redis"
)

type Config struct {
	Issuer         string // Optional: issuer claim for session and purpose tokens (default: accounts)
	BaseURL        string // Optional: public origin used in mailed links, derived per request when empty
	TOTPIssuer     string // Optional: issuer shown by authenticator apps (default: Accounts)
	DatabaseFile   string // Optional: path to SQLite database file (default: ./accounts.db)
	PepperFile     string // Optional: path to file containing pepper for password hashing (default: ./pepper)
	SigningKeyFile string // Optional: path to file containing the HS256 signing key (default: ./signing.key)

	AdminEmail    string // Optional: seeds an Admin account on startup when set
	AdminPassword string // Optional: password of the seeded admin, generated when empty

	TOTPSkew         uint          // Optional: accepted 30s steps either side of now (default: 1)
	LockoutThreshold int           // Optional: failed attempts before lockout (default: 5)
	LockoutDuration  time.Duration // Optional: lockout length (default: 5m)
	PendingLoginTTL  time.Duration // Optional: time allowed for the second factor (default: 5m)
	TokenTTLs        service.TokenTTLs

	PendingBackend string // Optional: where pending logins live (sqlite, redis) (default: sqlite)
	RedisAddr      string // Optional: Redis address for the redis backend (default: localhost:6379)
	RedisPassword  string // Optional
	RedisDB        int    // Optional (default: 0)
	RedisTLS       bool   // Optional (default: false)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:         getEnvOrDefault("ACCOUNTS_ISSUER", "accounts"),
		BaseURL:        os.Getenv("ACCOUNTS_BASE_URL"),
		TOTPIssuer:     getEnvOrDefault("ACCOUNTS_TOTP_ISSUER", "Accounts"),
		DatabaseFile:   getEnvOrDefault("ACCOUNTS_DATABASE_FILE", "accounts.db"),
		PepperFile:     getEnvOrDefault("ACCOUNTS_PEPPER_FILE", "pepper"),
		SigningKeyFile: getEnvOrDefault("ACCOUNTS_SIGNING_KEY_FILE", "signing.key"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		LockoutThreshold: getEnvIntOrDefault("ACCOUNTS_LOCKOUT_THRESHOLD", service.DefaultLockoutPolicy.Threshold),
		LockoutDuration:  getEnvDurationOrDefault("ACCOUNTS_LOCKOUT_DURATION", service.DefaultLockoutPolicy.Duration),
		PendingLoginTTL:  getEnvDurationOrDefault("ACCOUNTS_PENDING_LOGIN_TTL", service.DefaultPendingLoginTTL),
		TokenTTLs: service.TokenTTLs{
			EmailConfirmation: getEnvDurationOrDefault("ACCOUNTS_EMAIL_CONFIRMATION_TTL", service.DefaultTokenTTLs.EmailConfirmation),
			PasswordReset:     getEnvDurationOrDefault("ACCOUNTS_PASSWORD_RESET_TTL", service.DefaultTokenTTLs.PasswordReset),
			TwoFactorRemember: getEnvDurationOrDefault("ACCOUNTS_REMEMBER_DEVICE_TTL", service.DefaultTokenTTLs.TwoFactorRemember),
			Session:           getEnvDurationOrDefault("ACCOUNTS_SESSION_TTL", service.DefaultTokenTTLs.Session),
			RememberedSession: getEnvDurationOrDefault("ACCOUNTS_REMEMBERED_SESSION_TTL", service.DefaultTokenTTLs.RememberedSession),
		},

		PendingBackend: getEnvOrDefault("PENDING_LOGIN_BACKEND", PendingBackendSQLite),
		RedisAddr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvIntOrDefault("REDIS_DB", 0),
		RedisTLS:       getEnvBoolOrDefault("REDIS_TLS", false),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	// A negative skew makes no sense; fall back to the default window.
	cfg.TOTPSkew = 1
	if skew := getEnvIntOrDefault("ACCOUNTS_TOTP_SKEW", 1); skew >= 0 {
		cfg.TOTPSkew = uint(skew)
	}

	if cfg.PendingBackend != PendingBackendRedis {
		cfg.PendingBackend = PendingBackendSQLite
	}

	return cfg
}

// LinksFromRequestHost reports whether mailed links would take their origin
// from the Host header of a production request, which a caller controls.
func (c Config) LinksFromRequestHost() bool {
	return c.BaseURL == "" && c.Env == "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

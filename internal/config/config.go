package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "UsageBilling"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultBillingInterval  = time.Minute
	defaultBillingLockName  = "billing_cron"
	defaultUsageRatePerMin  = 600
	defaultDBMaxConns       = 10
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	billingIntervalEnvVar   = "BILLING_INTERVAL"
	usageRateLimitEnvVar    = "USAGE_RATE_LIMIT_PER_MINUTE"
	dbMaxConnsEnvVar        = "DB_MAX_CONNS"
	billingEnabledEnvVar    = "BILLING_ENABLED"
	autoMigrateEnvVar       = "AUTO_MIGRATE"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	DBMaxConns     int32
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	AutoMigrate    bool

	BillingEnabled  bool
	BillingInterval time.Duration
	BillingLockName string
	// BillingLockOwner identifies this process in cron_locks. Empty means lock.DefaultOwner, "<hostname>:pid:<pid>".
	BillingLockOwner string

	UsageRateLimitPerMinute int
	// AdminTokenHash is a bcrypt hash of the bearer token accepted on /admin routes.
	AdminTokenHash string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:                 getEnv("APP_NAME", defaultAppName),
		AppEnv:                  getEnv("APP_ENV", defaultAppEnv),
		Port:                    getEnv("PORT", defaultPort),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:               strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		DBMaxConns:              defaultDBMaxConns,
		RedisURL:                os.Getenv("REDIS_URL"),
		ShutdownPeriod:          defaultShutdownDelay,
		IdempotencyTTL:          defaultIdempotencyTTL,
		BillingEnabled:          true,
		BillingInterval:         defaultBillingInterval,
		BillingLockName:         getEnv("BILLING_LOCK_NAME", defaultBillingLockName),
		BillingLockOwner:        os.Getenv("BILLING_LOCK_OWNER"),
		UsageRateLimitPerMinute: defaultUsageRatePerMin,
		AdminTokenHash:          os.Getenv("ADMIN_TOKEN_HASH"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(billingIntervalEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", billingIntervalEnvVar, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", billingIntervalEnvVar)
		}
		cfg.BillingInterval = d
	}

	if v := os.Getenv(billingEnabledEnvVar); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", billingEnabledEnvVar, err)
		}
		cfg.BillingEnabled = b
	}

	if v := os.Getenv(autoMigrateEnvVar); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", autoMigrateEnvVar, err)
		}
		cfg.AutoMigrate = b
	}

	if v := os.Getenv(usageRateLimitEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", usageRateLimitEnvVar, err)
		}
		cfg.UsageRateLimitPerMinute = n
	}

	if v := os.Getenv(dbMaxConnsEnvVar); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", dbMaxConnsEnvVar, err)
		}
		cfg.DBMaxConns = int32(n)
	}

	if cfg.DatabaseURL == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local environment where the
// in-memory store is acceptable.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

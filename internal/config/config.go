// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server and worker binaries read from the environment.
type Config struct {
	Database DatabaseConfig

	HTTPAddr string
	LogLevel string

	// Business rules
	MaxGroupsPerReceiver   int
	VerifyMaxAttempts      int
	FailOnExhaustedRetries bool
	CleanupMembers         bool

	// Dispatcher timing
	PollInterval        time.Duration
	IdleBackoff         time.Duration
	NoCheckerBackoff    time.Duration
	PlatformCallTimeout time.Duration
	ListingLease        time.Duration
	DispatcherCount     int

	PlatformGatewayURL string
	RedisAddress       string
	AMQPURL            string
	KeywordsFile       string

	Keywords Keywords
}

type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

// DSN renders a lib/pq connection URL.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "sellgroup"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		PlatformGatewayURL: getEnv("PLATFORM_GATEWAY_URL", "http://localhost:9090"),
		RedisAddress:       os.Getenv("REDIS_ADDRESS"),
		AMQPURL:            os.Getenv("AMQP_URL"),
		KeywordsFile:       os.Getenv("KEYWORDS_FILE"),
	}

	var err error
	if cfg.MaxGroupsPerReceiver, err = getInt("MAX_GROUPS_PER_RECEIVER", 10); err != nil {
		return nil, err
	}
	if cfg.VerifyMaxAttempts, err = getInt("VERIFY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.DispatcherCount, err = getInt("DISPATCHER_COUNT", 1); err != nil {
		return nil, err
	}
	if cfg.FailOnExhaustedRetries, err = getBool("FAIL_ON_EXHAUSTED_RETRIES", false); err != nil {
		return nil, err
	}
	if cfg.CleanupMembers, err = getBool("CLEANUP_MEMBERS_ON_FINALIZE", true); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdleBackoff, err = getDuration("IDLE_BACKOFF", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.NoCheckerBackoff, err = getDuration("NO_CHECKER_BACKOFF", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.PlatformCallTimeout, err = getDuration("PLATFORM_CALL_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ListingLease, err = getDuration("LISTING_LEASE", 10*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Keywords, err = LoadKeywords(cfg.KeywordsFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxGroupsPerReceiver < 1 {
		return fmt.Errorf("MAX_GROUPS_PER_RECEIVER must be positive, got %d", c.MaxGroupsPerReceiver)
	}
	if c.VerifyMaxAttempts < 1 {
		return fmt.Errorf("VERIFY_MAX_ATTEMPTS must be positive, got %d", c.VerifyMaxAttempts)
	}
	if c.DispatcherCount < 1 {
		return fmt.Errorf("DISPATCHER_COUNT must be positive, got %d", c.DispatcherCount)
	}
	if c.PlatformCallTimeout <= 0 {
		return fmt.Errorf("PLATFORM_CALL_TIMEOUT must be positive")
	}
	return nil
}

// RequireSessionLocks fails unless REDIS_ADDRESS is set. A process that
// shares session ids with another process needs the distributed lock to keep
// one in-flight operation per session.
func (c *Config) RequireSessionLocks() error {
	if strings.TrimSpace(c.RedisAddress) == "" {
		return fmt.Errorf("REDIS_ADDRESS is required: sessions are shared with the worker")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

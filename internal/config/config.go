package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	NumWorkers  int

	MaxConcurrency     int
	SendTimeout        time.Duration
	SendDelay          time.Duration
	RateLimitPerMinute int
	RetryWindow        time.Duration
	RetrySweepInterval string

	PreferenceDefaultsFile string
	AllowInsecureWebhooks  bool

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	FirebaseCredentialsFile string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// MemoryDatabaseURL selects the in-memory store.
const MemoryDatabaseURL = "memory://"

// Load reads configuration from environment variables, after loading a .env
// file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		NumWorkers:  getEnvInt("NUM_WORKERS", 4),

		MaxConcurrency:     getEnvInt("MAX_CONCURRENCY", 5),
		SendTimeout:        getEnvDuration("SEND_TIMEOUT", 30*time.Second),
		SendDelay:          getEnvDuration("SEND_DELAY", 0),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		RetryWindow:        getEnvDuration("RETRY_WINDOW", 24*time.Hour),
		RetrySweepInterval: getEnv("RETRY_SWEEP_INTERVAL", "@every 10m"),

		PreferenceDefaultsFile: getEnv("PREFERENCE_DEFAULTS_FILE", ""),
		AllowInsecureWebhooks:  getEnvBool("ALLOW_INSECURE_WEBHOOKS", false),

		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@example.com"),

		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENCY must be at least 1, got %d", cfg.MaxConcurrency)
	}
	if (cfg.VAPIDPublicKey == "") != (cfg.VAPIDPrivateKey == "") {
		return nil, fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return cfg, nil
}

// WebPushEnabled reports whether VAPID keys are configured.
func (c *Config) WebPushEnabled() bool { return c.VAPIDPrivateKey != "" }

// EmailEnabled reports whether an SMTP relay is configured.
func (c *Config) EmailEnabled() bool { return c.SMTPHost != "" && c.SMTPFrom != "" }

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}

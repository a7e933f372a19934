package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the service, loaded from the environment.
type Config struct {
	// App
	Port      string
	AppEnv    string
	AppURL    string
	SentryDSN string

	// Database
	DBDriver     string
	DBConnection string

	// Session lifecycle
	DefaultExpiry time.Duration
	MaxExpiry     time.Duration
	SweepInterval time.Duration

	// Quota policy
	MaxFileSizeBytes int64
	MaxSessionBytes  int64
	AllowedMimeTypes []string

	// Chunked transfers
	RecommendedChunkSize    int64
	MaxChunkSize            int64
	TargetChunkCount        int64
	UploadInactivityTimeout time.Duration

	// Event fan-out
	EventBufferSize int

	// Rate limiting
	RateLimitMax    int
	RateLimitWindow time.Duration

	// QR rendering
	QRSize int

	// Object storage
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string
	S3PresignExpiry time.Duration
}

// Load reads the configuration from the environment, with a .env file as
// a convenience for development. Every value has a default except the S3
// credentials, which are required outside development.
func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		slog.Debug("no .env file found, using environment")
	}

	cfg := &Config{
		Port:      envString("PORT", "8080"),
		AppEnv:    envString("APP_ENV", "development"),
		AppURL:    envString("APP_URL", "http://localhost:8080"),
		SentryDSN: envString("SENTRY_DSN", ""),

		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "data/dropbeam.db"),

		DefaultExpiry: envDuration("SESSION_DEFAULT_EXPIRY", 60*time.Minute),
		MaxExpiry:     envDuration("SESSION_MAX_EXPIRY", 24*time.Hour),
		SweepInterval: envDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		MaxFileSizeBytes: envInt64("MAX_FILE_SIZE_BYTES", 100<<20),
		MaxSessionBytes:  envInt64("MAX_SESSION_BYTES", 1000<<20),
		AllowedMimeTypes: envList("ALLOWED_MIME_TYPES"),

		RecommendedChunkSize:    envInt64("RECOMMENDED_CHUNK_SIZE", 5<<20),
		MaxChunkSize:            envInt64("MAX_CHUNK_SIZE", 10<<20),
		TargetChunkCount:        envInt64("TARGET_CHUNK_COUNT", 10),
		UploadInactivityTimeout: envDuration("UPLOAD_INACTIVITY_TIMEOUT", 10*time.Minute),

		EventBufferSize: envInt("EVENT_BUFFER_SIZE", 32),

		RateLimitMax:    envInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: envDuration("RATE_LIMIT_WINDOW", 15*time.Minute),

		QRSize: envInt("QR_SIZE", 256),

		S3Region:        envString("S3_REGION", "us-east-1"),
		S3Bucket:        envString("S3_BUCKET", "dropbeam"),
		S3Endpoint:      envString("S3_ENDPOINT", ""),
		S3PresignExpiry: envDuration("S3_PRESIGN_EXPIRY", time.Hour),
	}

	if cfg.IsDevelopment() {
		cfg.S3AccessKey = envString("S3_ACCESS_KEY", "minioadmin")
		cfg.S3SecretKey = envString("S3_SECRET_KEY", "minioadmin")
	} else {
		cfg.S3AccessKey = envRequired("S3_ACCESS_KEY")
		cfg.S3SecretKey = envRequired("S3_SECRET_KEY")
	}

	return cfg
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Sanitized returns the config as log attributes with secrets elided.
func (c *Config) Sanitized() []any {
	return []any{
		"port", c.Port,
		"env", c.AppEnv,
		"app_url", c.AppURL,
		"db_driver", c.DBDriver,
		"default_expiry", c.DefaultExpiry,
		"max_expiry", c.MaxExpiry,
		"sweep_interval", c.SweepInterval,
		"max_file_size_bytes", c.MaxFileSizeBytes,
		"max_session_bytes", c.MaxSessionBytes,
		"max_chunk_size", c.MaxChunkSize,
		"s3_bucket", c.S3Bucket,
		"s3_endpoint", c.S3Endpoint,
	}
}

func envString(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func envRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		slog.Error("required environment variable not set", "key", key)
		os.Exit(1)
	}
	return value
}

func envInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment, using fallback", "key", key, "value", value)
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		slog.Warn("invalid integer in environment, using fallback", "key", key, "value", value)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment, using fallback", "key", key, "value", value)
		return fallback
	}
	return d
}

// envList parses a comma-separated value. An unset or empty variable
// yields nil, which callers treat as "no restriction".
func envList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package config loads sealedchat's process configuration from the
// environment once at startup, following the teacher's os.Getenv-per-file
// pattern but centralized into a single typed struct.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration, read once in main and passed by
// value to every component that needs it.
type Config struct {
	ListenAddr string

	DatabaseURL string

	MasterKey []byte // 32 raw bytes, decoded from MASTER_KEY

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	BucketAttach   string
	BucketArchive  string

	RedisURL string

	JWTSigningSecret []byte

	SessionCookieLifetime time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     float64
	RateLimitBypassIPs string
	TrustProxy         bool

	ArchivalInterval time.Duration
	RoomTTL          time.Duration

	AdminAllowCIDRs string

	EnableInternalStats bool
	InternalStatsToken  string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return v, nil
}

// Load reads and validates the process configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	var err error

	cfg.ListenAddr = getenv("LISTEN_ADDR", ":8080")

	if cfg.DatabaseURL, err = requireEnv("DATABASE_URL"); err != nil {
		return cfg, err
	}

	masterKeyB64, err := requireEnv("MASTER_KEY")
	if err != nil {
		return cfg, err
	}
	key, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return cfg, fmt.Errorf("invalid MASTER_KEY format: %w", err)
	}
	if len(key) != 32 {
		return cfg, fmt.Errorf("MASTER_KEY must decode to 32 bytes, got %d", len(key))
	}
	cfg.MasterKey = key

	cfg.MinioEndpoint = getenv("MINIO_ENDPOINT", "localhost:9000")
	if cfg.MinioAccessKey, err = requireEnv("MINIO_ACCESS_KEY"); err != nil {
		return cfg, err
	}
	if cfg.MinioSecretKey, err = requireEnv("MINIO_SECRET_KEY"); err != nil {
		return cfg, err
	}
	cfg.MinioUseSSL = getenv("MINIO_USE_SSL", "false") == "true"
	cfg.BucketAttach = getenv("S3_BUCKET_ATTACH", "attachments")
	cfg.BucketArchive = getenv("S3_BUCKET_ARCHIVES", "archives")

	cfg.RedisURL = getenv("REDIS_URL", "redis://localhost:6379/0")

	jwtSecret := getenv("JWT_SIGNING_SECRET", "")
	if jwtSecret == "" {
		// Fall back to the master key so a minimal deployment still works;
		// operators should set JWT_SIGNING_SECRET explicitly in production.
		cfg.JWTSigningSecret = cfg.MasterKey
	} else {
		cfg.JWTSigningSecret = []byte(jwtSecret)
	}

	days, err := strconv.Atoi(getenv("SESSION_COOKIE_LIFETIME_DAYS", "30"))
	if err != nil {
		return cfg, fmt.Errorf("invalid SESSION_COOKIE_LIFETIME_DAYS: %w", err)
	}
	cfg.SessionCookieLifetime = time.Duration(days) * 24 * time.Hour

	cfg.RateLimitPerSecond = parseFloatDefault("RATE_LIMIT_PER_SECOND", 5)
	cfg.RateLimitBurst = parseFloatDefault("RATE_LIMIT_BURST", 20)
	cfg.RateLimitBypassIPs = getenv("RATE_LIMIT_BYPASS_IPS", "")
	cfg.TrustProxy = getenv("TRUST_PROXY", "0") == "1"

	cfg.ArchivalInterval = 60 * time.Second
	cfg.RoomTTL = 24 * time.Hour

	cfg.AdminAllowCIDRs = getenv("ADMIN_ALLOW_CIDRS", "127.0.0.1/32")

	cfg.EnableInternalStats = getenv("ENABLE_INTERNAL_STATS", "0") == "1"
	cfg.InternalStatsToken = getenv("INTERNAL_STATS_TOKEN", "")

	return cfg, nil
}

func parseFloatDefault(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

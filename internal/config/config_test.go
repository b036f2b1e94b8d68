package config

import (
	"encoding/base64"
	"testing"
)

func validMasterKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func TestLoadRequiresMasterKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("MASTER_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when MASTER_KEY is unset")
	}
}

func TestLoadRejectsWrongSizeMasterKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("MASTER_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for a 16-byte master key")
	}
}

func TestLoadDefaultsJWTSecretToMasterKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("MASTER_KEY", validMasterKey())
	t.Setenv("JWT_SIGNING_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(cfg.JWTSigningSecret) != string(cfg.MasterKey) {
		t.Fatalf("expected JWT secret to default to the master key")
	}
}

func TestLoadHonorsRateLimitOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("MASTER_KEY", validMasterKey())
	t.Setenv("RATE_LIMIT_PER_SECOND", "12.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateLimitPerSecond != 12.5 {
		t.Fatalf("expected RateLimitPerSecond=12.5, got %v", cfg.RateLimitPerSecond)
	}
}

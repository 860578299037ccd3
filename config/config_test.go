package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/otpauth/config"
)

const testSecret = "config-test-secret-at-least-32-chars"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/otpauth")
	t.Setenv("JWT_SECRET", testSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "local" {
		t.Errorf("Env = %q, want local", cfg.Env)
	}
	if cfg.OTPCodeTTL != 10*time.Minute {
		t.Errorf("OTPCodeTTL = %s, want 10m", cfg.OTPCodeTTL)
	}
	if cfg.OTPCooldown != 60*time.Second {
		t.Errorf("OTPCooldown = %s, want 60s", cfg.OTPCooldown)
	}
	if cfg.OTPMaxAttempts != 0 {
		t.Errorf("OTPMaxAttempts = %d, want 0", cfg.OTPMaxAttempts)
	}
	if cfg.DefaultRole != "user" {
		t.Errorf("DefaultRole = %q, want user", cfg.DefaultRole)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel = %v, want info", cfg.SlogLevel())
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", testSecret)

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for empty DATABASE_URL")
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "too-short")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for short JWT_SECRET")
	}
}

func TestLoad_ProductionRequiresResend(t *testing.T) {
	setRequired(t)
	t.Setenv("ENV", "production")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error when RESEND_API_KEY is missing in production")
	}

	t.Setenv("RESEND_API_KEY", "re_test")
	t.Setenv("RESEND_FROM", "auth@example.com")
	if _, err := config.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		cfg := config.Config{LogLevel: in}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"25" validate:"min=1"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"5"  validate:"min=0,ltefield=DBMaxConns"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret       string        `env:"JWT_SECRET,required" validate:"required,min=32"`
	JWTIssuer       string        `env:"JWT_ISSUER"          envDefault:"otpauth"`
	JWKSURL         string        `env:"JWKS_URL"            validate:"omitempty,url"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"    envDefault:"15m"  validate:"min=1m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL"   envDefault:"168h" validate:"gtfield=AccessTokenTTL"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	MailDropDir  string `env:"MAIL_DROP_DIR"  envDefault:"tmp/mail"`
	// Origin of the emailed link. GET /auth/verify there must not consume the
	// code; this API's own page only POSTs it back.
	AppURL       string `env:"APP_URL"        envDefault:"http://localhost:3000" validate:"required,url"`

	OTPCodeTTL     time.Duration `env:"OTP_CODE_TTL"     envDefault:"10m" validate:"min=1m"`
	OTPCooldown    time.Duration `env:"OTP_COOLDOWN"     envDefault:"60s" validate:"min=1s"`
	OTPMaxAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"0"   validate:"min=0,max=100"`
	DefaultRole    string        `env:"DEFAULT_ROLE"     envDefault:"user" validate:"required"`

	SweepCron      string        `env:"SWEEP_CRON"       envDefault:"*/15 * * * *" validate:"required"`
	SweepGrace     time.Duration `env:"SWEEP_GRACE"      envDefault:"1h"`
	SweepBatchSize int           `env:"SWEEP_BATCH_SIZE" envDefault:"500" validate:"min=1,max=10000"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

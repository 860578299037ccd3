package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/otpauth/config"
	"github.com/ErlanBelekov/otpauth/internal/email"
	"github.com/ErlanBelekov/otpauth/internal/health"
	"github.com/ErlanBelekov/otpauth/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/otpauth/internal/log"
	"github.com/ErlanBelekov/otpauth/internal/metrics"
	"github.com/ErlanBelekov/otpauth/internal/token"
	httptransport "github.com/ErlanBelekov/otpauth/internal/transport/http"
	"github.com/ErlanBelekov/otpauth/internal/transport/http/handler"
	"github.com/ErlanBelekov/otpauth/internal/transport/http/middleware"
	"github.com/ErlanBelekov/otpauth/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := ctxlog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	userRepo := postgres.NewUserRepository(pool)
	challengeRepo := postgres.NewChallengeRepository(pool)

	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, cfg.MailDropDir, logger)
	issuer := token.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	challenges := usecase.NewChallengeManager(userRepo, challengeRepo, sender, usecase.ChallengeConfig{
		CodeTTL:     cfg.OTPCodeTTL,
		Cooldown:    cfg.OTPCooldown,
		DefaultRole: cfg.DefaultRole,
		AppURL:      cfg.AppURL,
	})
	verifier := usecase.NewVerifier(userRepo, challengeRepo, issuer, cfg.OTPMaxAttempts)

	parsers := []middleware.SubjectParser{issuer}
	if cfg.JWKSURL != "" {
		jwks, err := token.NewJWKS(ctx, cfg.JWKSURL)
		if err != nil {
			stop()
			log.Fatalf("jwks: %v", err)
		}
		parsers = append(parsers, jwks)
	}

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, postgres.Dependency(pool))

	router := httptransport.NewRouter(logger,
		httptransport.Handlers{
			Auth: handler.NewAuthHandler(challenges, verifier, logger),
			User: handler.NewUserHandler(),
		},
		middleware.Auth(parsers...),
		middleware.LoadUser(userRepo, logger),
	)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

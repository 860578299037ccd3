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
	"github.com/ErlanBelekov/otpauth/internal/health"
	"github.com/ErlanBelekov/otpauth/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/otpauth/internal/log"
	"github.com/ErlanBelekov/otpauth/internal/metrics"
	"github.com/ErlanBelekov/otpauth/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := ctxlog.New(os.Stdout, cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxConns: 2, MinConns: 1})
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, postgres.Dependency(pool))

	sweeper, err := scheduler.NewSweeper(
		postgres.NewChallengeRepository(pool),
		logger,
		cfg.SweepCron,
		cfg.SweepGrace,
		cfg.SweepBatchSize,
	)
	if err != nil {
		stop()
		log.Fatalf("sweeper: %v", err)
	}
	go sweeper.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("sweeper shut down")
}

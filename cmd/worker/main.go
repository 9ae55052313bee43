// Package main is the entry point for the fuelops background worker.
// It keeps the exchange-rate cache warm and logs pool health.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"fuelops/internal/domain/exchange"
	"fuelops/internal/infrastructure/storage/postgres"
	"fuelops/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting fuelops worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	rateCfg := exchange.DefaultClientConfig(getEnv("RATES_API_URL", "https://api.exchangerate.host"))
	rateCfg.APIKey = getEnv("RATES_API_KEY", "")
	rates := exchange.NewCachedProvider(exchange.NewClient(rateCfg, log))

	// Bases to refresh: the currencies calculations most often target.
	bases := splitEnvList("RATE_REFRESH_BASES", "USD,EUR,GBP")

	scheduler := cron.New()

	refreshSpec := getEnv("RATE_REFRESH_SCHEDULE", "@every 30m")
	_, err = scheduler.AddFunc(refreshSpec, func() {
		refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if err := rates.Refresh(refreshCtx, bases); err != nil {
			log.Warnw("exchange rate refresh failed", "error", err)
			return
		}
		log.Infow("exchange rates refreshed", "bases", bases)
	})
	if err != nil {
		log.Fatalw("invalid rate refresh schedule", "schedule", refreshSpec, "error", err)
	}

	_, err = scheduler.AddFunc("@every 5m", func() {
		postgres.LogPoolStats(ctx, pool.Unwrap())
	})
	if err != nil {
		log.Fatalw("failed to schedule pool stats job", "error", err)
	}

	scheduler.Start()
	log.Infow("worker started", "refresh_schedule", refreshSpec, "bases", bases)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Warn("jobs did not finish before shutdown deadline")
	}

	log.Info("worker stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func splitEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

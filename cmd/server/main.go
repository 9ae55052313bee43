// Package main is the entry point for the fuelops API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuelops/internal/domain/exchange"
	"fuelops/internal/domain/pricing"
	v1 "fuelops/internal/infrastructure/http/v1"
	"fuelops/internal/infrastructure/storage/postgres"
	"fuelops/pkg/logger"
)

var version = "dev"

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting fuelops server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	// --- Stores ---
	refRepo := postgres.NewReferenceRepo(pool)
	ruleRepo := postgres.NewPricingRepo(pool)

	var calcLog *postgres.CalcLog
	if getEnv("CALC_LOG_ENABLED", "true") == "true" {
		calcLog, err = postgres.NewCalcLog(pool)
		if err != nil {
			log.Fatalw("failed to create calculation log", "error", err)
		}
	}

	// --- Exchange rates ---
	rateCfg := exchange.DefaultClientConfig(getEnv("RATES_API_URL", "https://api.exchangerate.host"))
	rateCfg.APIKey = getEnv("RATES_API_KEY", "")
	rates := exchange.NewCachedProvider(exchange.NewClient(rateCfg, log))

	// --- Pricing service ---
	var audit pricing.AuditSink
	if calcLog != nil {
		audit = calcLog
	}
	service := pricing.NewService(ruleRepo, refRepo, rates, refRepo, audit, log)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:           pool.Unwrap(),
		Logger:         log,
		PricingService: service,
		CalcLog:        calcLog,
		Version:        version,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port, "version", version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
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

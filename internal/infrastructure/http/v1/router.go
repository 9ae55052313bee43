// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"fuelops/internal/domain/pricing"
	"fuelops/internal/infrastructure/http/v1/handlers"
	"fuelops/internal/infrastructure/http/v1/middleware"
	"fuelops/internal/infrastructure/storage/postgres"
	"fuelops/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks).
	Pool *pgxpool.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// PricingService runs calculations.
	PricingService *pricing.Service

	// CalcLog serves calculation history; optional.
	CalcLog *postgres.CalcLog

	// Version is reported on the info endpoint.
	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	{
		base := handlers.NewBaseHandler()
		pricingHandler := handlers.NewPricingHandler(base, cfg.PricingService, cfg.CalcLog)
		pricingHandler.RegisterRoutes(v1.Group("/pricing"))
	}

	return router
}

// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"docflow/internal/domain/lifecycle"
	"docflow/internal/infrastructure/http/v1/handlers"
	"docflow/internal/infrastructure/http/v1/middleware"
	"docflow/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Service runs every document operation
	Service *lifecycle.Service

	// Logger for request logging
	Logger *logger.Logger

	// Readiness checks reported by /health/ready (e.g. "database", "redis")
	Readiness map[string]handlers.ReadinessCheck

	// History serves the audit trail; nil disables the route's data
	History handlers.HistoryReader
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Readiness)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	base := handlers.NewBaseHandler()
	documentHandler := handlers.NewDocumentHandler(base, cfg.Service, cfg.History)
	engineHandler := handlers.NewEngineHandler(base, cfg.Service)

	v1 := router.Group("/api/v1")
	{
		RegisterDocumentRoutes(v1.Group("/documents"), documentHandler)

		v1.POST("/tax/compute", engineHandler.ComputeTax)
		v1.GET("/costing/average", engineHandler.AverageCost)
		v1.POST("/costing/distribute", engineHandler.DistributeCost)
		v1.GET("/balances", engineHandler.Balances)
		v1.POST("/allocations/suggest", engineHandler.SuggestAllocations)
	}

	return router
}

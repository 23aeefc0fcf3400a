package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamtip/settlement_service/internal/api/handlers"
	"github.com/streamtip/settlement_service/internal/api/middleware"
	"github.com/streamtip/settlement_service/internal/infrastructure/di"
	"github.com/streamtip/settlement_service/pkg/tracing"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	if container.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Global middleware - order matters
	if container.Config.Tracing.Enabled {
		router.Use(tracing.HTTPMiddleware())
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(container.Config.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(container.Config.Server.RateLimitPerMin))
	router.Use(middleware.SecurityHeaders())

	settlementHandler := handlers.NewSettlementHandler(container.SettlementService, container.ZapLogger)
	bridgeHandler := handlers.NewBridgeHandler(container.SettlementService, container.ZapLogger)
	analyticsHandler := handlers.NewAnalyticsHandler(container.SettlementService, container.ZapLogger)
	healthHandler := handlers.NewHealthHandler(container.HealthChecks(), container.ZapLogger, container.Version)

	// Health and observability (no rate-limit exemption needed at this scale)
	router.GET("/health", healthHandler.Health)
	router.GET("/ping", healthHandler.Ping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		settlements := v1.Group("/settlements")
		{
			settlements.POST("/tips", settlementHandler.QueueTip)
			settlements.POST("/settle", settlementHandler.ManualSettle)
			settlements.POST("/process", settlementHandler.ProcessBatch)
			settlements.GET("", settlementHandler.ListSettlements)
			settlements.GET("/pending/totals", settlementHandler.PendingTotals)
			settlements.GET("/pending/batches", settlementHandler.ListPendingBatches)
			settlements.GET("/:id", settlementHandler.GetSettlement)
			settlements.GET("/:id/status", settlementHandler.GetStatus)
			settlements.GET("/:id/tips", settlementHandler.ListSettlementTips)
		}

		v1.GET("/bridge/status", bridgeHandler.Status)
		v1.GET("/analytics/:streamer", analyticsHandler.GetStreamerAnalytics)
	}

	return router
}

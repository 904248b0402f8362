package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ton-sweeper/sweeper_service/docs"

	"github.com/ton-sweeper/sweeper_service/internal/api/handlers"
	"github.com/ton-sweeper/sweeper_service/internal/api/middleware"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/di"
	"github.com/ton-sweeper/sweeper_service/pkg/idempotency"
	"github.com/ton-sweeper/sweeper_service/pkg/tracing"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	router := gin.New()

	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.SecurityHeaders())

	coreHandlers := handlers.NewCoreHandlers(container.Logger)
	for name, check := range container.ReadinessChecks() {
		coreHandlers.AddCheck(name, check)
	}

	tonEventHandler := handlers.NewTonEventHandler(container.Coordinator, container.Logger)
	sourceHandlers := handlers.NewSourceHandlers(
		container.Coordinator,
		container.PriorityCache,
		container.DrainRuns,
		container.Logger,
	)

	// Health checks (no auth required)
	router.GET("/health", coreHandlers.Health)
	router.GET("/health/ready", coreHandlers.Ready)
	router.GET("/metrics", handlers.Metrics())

	// Swagger documentation (development only)
	if container.Config.Environment != "production" {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	webhookAuth := middleware.SharedSecret(container.Config.Sweeper.WebhookSecret)
	dedupe := idempotency.Middleware(container.Idempotency, container.ZapLog)

	// Webhook deliveries bypass the rate limit so every one is acknowledged.
	// Unversioned path existing webhook subscriptions point at
	router.POST("/ton-event", webhookAuth, dedupe, tonEventHandler.HandleTonEvent)

	v1 := router.Group("/api/v1")
	v1.POST("/webhooks/ton-event", webhookAuth, dedupe, tonEventHandler.HandleTonEvent)

	ops := v1.Group("")
	ops.Use(middleware.RateLimit(container.Config.Server.RateLimitPerMin))
	{
		ops.GET("/sources", sourceHandlers.ListSources)
		ops.GET("/sources/:address/priorities", sourceHandlers.GetPriorities)
		ops.POST("/sources/:address/drain", webhookAuth, sourceHandlers.TriggerDrain)
		ops.GET("/drains", sourceHandlers.ListDrains)
	}

	return router
}

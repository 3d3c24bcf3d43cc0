package server

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chungtau/mti-gateway/internal/config"
	"github.com/chungtau/mti-gateway/internal/handler"
	"github.com/chungtau/mti-gateway/internal/middleware"
)

// RouterDeps are the collaborators the HTTP routes need
type RouterDeps struct {
	Transactions handler.TransactionService
	Hub          handler.Subscriber
	Idempotency  middleware.IdempotencyStore
	Health       map[string]handler.Pinger
	// RateLimits enables per-merchant rate limiting when set
	RateLimits middleware.RateLimitStore
	Logger     zerolog.Logger
}

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.DevMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Logging first so Recovery can use the request logger
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.Recovery())

	healthHandler := handler.NewHealthHandler(deps.Health)
	transactionHandler := handler.NewTransactionHandler(deps.Transactions)
	eventsHandler := handler.NewEventsHandler(deps.Hub, cfg.SubscriberBuffer)
	authHandler := handler.NewAuthHandler(cfg.JWTSecret, cfg.DevMode)

	// Health check endpoints (no auth required)
	router.GET("/health", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Dev-only auth endpoint (only available in DEV_MODE)
	if cfg.DevMode {
		router.POST("/auth/dev/token", authHandler.GenerateDevToken)
	}

	v1 := router.Group("/v1")
	{
		v1.Use(middleware.Auth(cfg.JWTSecret))

		if deps.RateLimits != nil {
			rateLimiter := middleware.NewRateLimiter(deps.RateLimits, cfg.RateLimitRPS, cfg.RateLimitBurst)
			v1.Use(rateLimiter.Middleware())
		}

		transactions := v1.Group("/transactions")
		{
			if deps.Idempotency != nil {
				transactions.POST("", middleware.Idempotency(deps.Idempotency), transactionHandler.Submit)
			} else {
				transactions.POST("", transactionHandler.Submit)
			}
			transactions.GET("", transactionHandler.List)
			transactions.GET("/:id", transactionHandler.Get)
		}

		v1.GET("/protocols", handler.ListProtocols)
		v1.GET("/events", eventsHandler.Stream)
	}

	return router
}

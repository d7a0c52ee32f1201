package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grpc-queue-service/internal/adapter/gin/handler"
	"grpc-queue-service/internal/adapter/gin/middleware"
	grpcmiddleware "grpc-queue-service/internal/adapter/grpc/middleware"
	"grpc-queue-service/internal/adapter/identity"
)

// Options carries the optional router collaborators.
type Options struct {
	RateLimiter    *grpcmiddleware.RateLimiter
	Metrics        middleware.HTTPObserver
	MetricsHandler http.Handler
	AllowedOrigins []string
}

// SetupRouter configures and returns a Gin router with all routes and middleware
func SetupRouter(queueHandler *handler.QueueHandler, opts Options, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Metrics(opts.Metrics))
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "grpc-queue-service-gin",
		})
	})

	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	// API v1 routes
	v1 := router.Group("/v1")
	v1.Use(middleware.RateLimiter(opts.RateLimiter))
	v1.Use(middleware.Identity())
	{
		queues := v1.Group("/queues")
		{
			queues.POST("", queueHandler.CreateQueue)
			queues.GET("", queueHandler.ListQueues)
			queues.GET("/:id", queueHandler.GetQueue)
			queues.POST("/:id/entries", middleware.RequireCaller(), queueHandler.JoinQueue)
			queues.GET("/:id/entries", queueHandler.ListWaiting)
			queues.DELETE("/:id/entries/:entryId", middleware.RequireCaller(), queueHandler.LeaveQueue)
			queues.POST("/:id/advance", queueHandler.AdvanceQueue)
		}

		me := v1.Group("/me", middleware.RequireCaller())
		{
			me.GET("/tickets", queueHandler.ListMyTickets)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Authorization", identity.HeaderUserID, identity.HeaderUserName, middleware.HeaderRequestID},
		ExposeHeaders: []string{"Content-Length", middleware.HeaderRequestID, "X-RateLimit-Limit"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

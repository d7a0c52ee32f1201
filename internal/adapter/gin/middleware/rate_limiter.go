package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	grpcmiddleware "grpc-queue-service/internal/adapter/grpc/middleware"
)

// RateLimiter applies the shared token bucket per route and client IP.
func RateLimiter(limiter *grpcmiddleware.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Enabled() {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		// Redis errors fail open inside Allow.
		allowed, _ := limiter.Allow(c.Request.Context(), c.Request.Method+" "+route, c.ClientIP())
		if !allowed {
			cfg := limiter.Config()
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestsPerSecond))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": fmt.Sprintf("Rate limit exceeded: %d requests/second (burst capacity: %d)", cfg.RequestsPerSecond, cfg.BurstCapacity),
			})
			return
		}

		c.Next()
	}
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grpc-queue-service/internal/adapter/identity"
)

// Identity attaches the caller from X-User-ID / X-User-Name when present.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if caller, ok := identity.New(c.GetHeader(identity.HeaderUserID), c.GetHeader(identity.HeaderUserName)); ok {
			c.Request = c.Request.WithContext(identity.WithCaller(c.Request.Context(), caller))
		}
		c.Next()
	}
}

// RequireCaller rejects requests without a caller identity.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := identity.FromContext(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": identity.HeaderUserID + " header is required",
			})
			return
		}
		c.Next()
	}
}

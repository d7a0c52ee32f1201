package middleware

import "github.com/gin-gonic/gin"

// HTTPObserver records served requests.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int)
}

// Metrics counts requests by matched route and status.
func Metrics(obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if obs != nil {
			obs.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status())
		}
	}
}

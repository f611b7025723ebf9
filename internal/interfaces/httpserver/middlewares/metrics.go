package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"

	"collab-server/services/groupchat-api/internal/infrastructure/metrics"
)

// Metrics records request latency by route template. Unmatched paths share
// one label so scanners cannot inflate cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

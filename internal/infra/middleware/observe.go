package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestRecorder counts served requests. *metrics.Metrics implements it.
type RequestRecorder interface {
	IncHTTPRequest(method, route, status string)
}

// Observe logs each request at debug and records it in rec, labelled by the
// matched route template.
func Observe(log *slog.Logger, rec RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if rec != nil {
			rec.IncHTTPRequest(c.Request.Method, route, strconv.Itoa(status/100)+"xx")
		}
		log.Debug("http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
		)
	}
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// LoggerMiddleware логирует каждый HTTP-запрос
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Infow("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"durationMs", time.Since(start).Milliseconds(),
			"clientIp", c.ClientIP())
	}
}

package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// requestLogger пишет одну строку на запрос.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(started).Milliseconds(),
			"client_ip":   c.ClientIP(),
		})
		if cartID := c.GetString(cartIDContextKey); cartID != "" {
			entry = entry.WithField("cart_id", cartID)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("http request")
		case status >= 400:
			entry.Warn("http request")
		default:
			entry.Info("http request")
		}
	}
}

// requestMetrics считает запросы по шаблону маршрута.
func requestMetrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(started))
	}
}

// recovery превращает панику обработчика в 500 с единым телом ошибки.
func recovery(logger *log.Entry) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithField("panic", recovered).Error("http handler panic")
		c.AbortWithStatusJSON(500, ErrorResponse{Code: CodeInternal, Message: "internal server error"})
	})
}

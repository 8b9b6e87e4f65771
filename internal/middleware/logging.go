package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
)

const (
	loggerKey       = "logger"
	RequestIDHeader = "X-Request-ID"
)

// RequestLogger attaches a request-scoped entry to the context and logs one
// line per request once it completes.
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			if id, err := uuid.NewV4(); err == nil {
				requestID = id.String()
			}
		}
		c.Header(RequestIDHeader, requestID)

		entry := logger.WithField("request_id", requestID)
		c.Set(loggerKey, entry)

		c.Next()

		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if actor, ok := ActorFrom(c); ok {
			fields["user"] = actor.Username
		}

		entry = entry.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("Request completed")
		case status >= 400:
			entry.Warn("Request completed")
		default:
			entry.Info("Request completed")
		}
	}
}

// LoggerFrom returns the request-scoped logger, or the standard logger when
// RequestLogger is not installed.
func LoggerFrom(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(loggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.StandardLogger()
}

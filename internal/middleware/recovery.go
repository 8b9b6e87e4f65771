package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/bk-med/kanban/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RecoveryWithLog turns a panic into the standard 500 body. The panic value
// and stack go to the log only.
func RecoveryWithLog(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.WithFields(logrus.Fields{
				"panic":      r,
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"request_id": c.Writer.Header().Get(RequestIDHeader),
				"stack":      string(debug.Stack()),
			}).Error("Recovered from panic")

			appErr := apperrors.Internal(fmt.Errorf("panic: %v", r))
			c.AbortWithStatusJSON(appErr.Status(), appErr)
		}()
		c.Next()
	}
}

package middleware

import (
	"errors"

	"github.com/bk-med/kanban/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RespondError writes err as the JSON error body and aborts the chain.
// Errors that are not AppErrors become a 500 whose cause is logged but
// never sent to the client.
func RespondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}

	if appErr.Kind == apperrors.KindInternal {
		LoggerFrom(c).WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("Request failed")
	}

	c.AbortWithStatusJSON(appErr.Status(), appErr)
}

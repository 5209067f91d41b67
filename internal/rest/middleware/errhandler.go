package middleware

import (
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler middleware renders the last handler error as an ierr.ErrorResponse
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)
		if status >= 500 {
			log.Errorw("request failed",
				"path", c.FullPath(),
				"status", status,
				"error", err,
			)
		}
		c.JSON(status, ierr.NewErrorResponse(err))
	}
}

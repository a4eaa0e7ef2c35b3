package middleware

import (
	"errors"
	"net/http"

	"widget-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error maps errors attached to the gin context onto JSON responses. BaseError
// carries its own status; anything else is an opaque internal failure.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if errors.As(err.Err, &base) {
			c.JSON(base.Code.HTTPStatus(), base.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal server error",
			},
		})
	}
}

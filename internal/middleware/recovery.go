package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 carrying the request id. It must
// run after Logging.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			zerolog.Ctx(c.Request.Context()).Error().
				Interface("panic", rec).
				Str("merchant_id", GetMerchantID(c)).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":       "INTERNAL_ERROR",
				"message":    "An unexpected error occurred",
				"request_id": GetRequestID(c),
			})
		}()

		c.Next()
	}
}

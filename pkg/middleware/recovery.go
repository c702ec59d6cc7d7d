package middleware

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gomailer/mail-service/pkg/logger"
)

// Recovery turns a panic in any later handler into a 500 JSON response and
// logs it through the service logger instead of gin's default writer.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, err any) {
		logger.L().Error().
			Interface("panic", err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("request_id", RequestIDFrom(c)).
			Msg("panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
	})
}

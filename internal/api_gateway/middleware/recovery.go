package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery turns a panic into a 500 in the usual error envelope. The panic is
// logged with the route and acting user so a half-posted batch can be traced.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		attrs := []any{
			"error", recovered,
			"stack", string(debug.Stack()),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		}
		if route := c.FullPath(); route != "" {
			attrs = append(attrs, "route", route)
		}
		if user := GetUserID(c); user != "" {
			attrs = append(attrs, "user_id", user)
		}

		response := gin.H{
			"error": gin.H{
				"code":    "INTERNAL_SERVER_ERROR",
				"message": "An internal server error occurred",
			},
		}
		if id := GetCorrelationID(c); id != "" {
			attrs = append(attrs, "correlation_id", id)
			response["correlation_id"] = id
		}

		logger.Error("Panic recovered", attrs...)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response)
	})
}

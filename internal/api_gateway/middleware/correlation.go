package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	CorrelationIDKey    = "correlation_id"

	maxCorrelationIDLen = 64
)

// CorrelationID tags every request with an ID that follows it into logs,
// error bodies and queued pre-authorization runs. A caller supplied ID is
// kept only when it is a short token; anything else is replaced.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if !validCorrelationID(id) {
			id = uuid.NewString()
		}

		c.Header(CorrelationIDHeader, id)
		c.Set(CorrelationIDKey, id)
		c.Next()
	}
}

func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ':':
		default:
			return false
		}
	}
	return true
}

func GetCorrelationID(c *gin.Context) string {
	return c.GetString(CorrelationIDKey)
}

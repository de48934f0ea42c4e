package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader identifies the acting clerk. Authentication happens upstream.
	UserIDHeader = "X-User-ID"

	UserIDKey = "user_id"
)

// UserID copies the acting user from the request header into the context
func UserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); userID != "" {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	}
}

// GetUserID returns the acting user, or "" when the header was absent
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

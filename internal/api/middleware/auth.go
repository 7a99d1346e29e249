package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the API key as an alternative to a Bearer token
const APIKeyHeader = "X-Focusgate-Key"

// APIKey validates the configured key from the Authorization Bearer header
// or the X-Focusgate-Key header. An empty key disables the check.
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(APIKeyHeader)
		if provided == "" {
			authHeader := c.GetHeader("Authorization")
			const bearerPrefix = "Bearer "
			if authHeader != "" && !strings.HasPrefix(authHeader, bearerPrefix) {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid authorization scheme. Use Bearer token.",
					"code":  "INVALID_AUTH_SCHEME",
				})
				c.Abort()
				return
			}
			provided = strings.TrimPrefix(authHeader, bearerPrefix)
		}

		if provided == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization required",
				"code":  "AUTH_REQUIRED",
			})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

package middleware

import (
	"focusgate/internal/idgen"

	"github.com/gin-gonic/gin"
)

const RequestIDKey = "X-Request-ID"

// maxRequestIDLength caps caller-supplied IDs before they reach the logs
const maxRequestIDLength = 64

// RequestID tags every request with an ID, echoed in the response header.
// A well-formed caller-supplied ID is kept so CLI and server logs correlate;
// anything else is replaced with a fresh req_ ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDKey)
		if !validRequestID(requestID) {
			requestID = idgen.NewRequest()
		}
		c.Header(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '!' || id[i] > '~' {
			return false
		}
	}
	return true
}

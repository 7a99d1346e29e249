package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContentType requires application/json on POST, PUT and PATCH bodies.
// Body-less POSTs such as /block and /unblock pass through.
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if hasBody(c.Request) && c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "Content-Type must be application/json",
				"code":  "INVALID_CONTENT_TYPE",
			})
			return
		}
		c.Next()
	}
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

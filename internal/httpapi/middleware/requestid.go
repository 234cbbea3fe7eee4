package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/neuronote/internal/common"
)

const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLen = 128
)

// RequestID reuses the caller's X-Request-ID when present and sane, otherwise
// assigns a ULID. The id is echoed back on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLen {
			var err error
			if id, err = common.NewULID(); err != nil {
				id = ""
			}
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func RequestIDFromContext(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

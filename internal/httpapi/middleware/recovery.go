package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/neuronote/internal/common"
)

// Recovery turns a handler panic into a 500 with a generic body. Nothing about
// the panic reaches the caller.
func Recovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}

			log.ErrorContext(c.Request.Context(), "Handler panicked",
				"requestId", RequestIDFromContext(c),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"panic", r)

			if !c.Writer.Written() {
				common.Fail(c, http.StatusInternalServerError, "internal server error")
			}
			c.Abort()
		}()
		c.Next()
	}
}

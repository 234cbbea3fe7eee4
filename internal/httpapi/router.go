package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/neuronote/internal/common"
	"github.com/suPer8Hu/neuronote/internal/gateway"
	"github.com/suPer8Hu/neuronote/internal/httpapi/handlers"
	"github.com/suPer8Hu/neuronote/internal/httpapi/middleware"
	"github.com/suPer8Hu/neuronote/internal/metrics"
)

// NewRouter wires every route. m may be nil, in which case /metrics is not
// served.
func NewRouter(log *slog.Logger, gw *gateway.Gateway, m *metrics.Collector, session handlers.SessionConfig) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := handlers.NewHandler(gw, log, m, session)

	r.GET("/", h.Root)
	r.GET("/ping", h.Ping)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// summarization
	r.POST("/summarize", h.Summarize)
	r.GET("/ws/summarize", h.SummarizeSession)
	return r
}

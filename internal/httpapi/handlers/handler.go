package handlers

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/suPer8Hu/neuronote/internal/gateway"
	"github.com/suPer8Hu/neuronote/internal/metrics"
)

const defaultHeartbeat = 15 * time.Second

// SessionConfig bounds a WebSocket session.
type SessionConfig struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
}

func (s SessionConfig) withDefaults() SessionConfig {
	if s.WriteWait <= 0 {
		s.WriteWait = 10 * time.Second
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	if s.MaxMessageBytes <= 0 {
		s.MaxMessageBytes = 2 << 20
	}
	return s
}

// pings must go out before the peer's read deadline expires
func (s SessionConfig) pingPeriod() time.Duration {
	return s.PongWait * 9 / 10
}

type Handler struct {
	Gateway *gateway.Gateway
	Log     *slog.Logger
	// Metrics may be nil.
	Metrics *metrics.Collector
	Session SessionConfig

	// Heartbeat is the SSE ping interval.
	Heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func NewHandler(gw *gateway.Gateway, log *slog.Logger, m *metrics.Collector, session SessionConfig) *Handler {
	return &Handler{
		Gateway:   gw,
		Log:       log,
		Metrics:   m,
		Session:   session.withDefaults(),
		Heartbeat: defaultHeartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

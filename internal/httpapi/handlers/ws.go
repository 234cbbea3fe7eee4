package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/suPer8Hu/neuronote/internal/ai"
	"github.com/suPer8Hu/neuronote/internal/common"
	"github.com/suPer8Hu/neuronote/internal/gateway"
)

const (
	frameChunk = "chunk"
	frameDone  = "done"
	frameError = "error"
)

// frame is one outbound session message. Every cycle ends with exactly one
// done or error frame.
type frame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Delta     string `json:"delta,omitempty"`
	Message   string `json:"message,omitempty"`
	Fragments int    `json:"fragments,omitempty"`
}

// SummarizeSession upgrades to a WebSocket and runs one summarization cycle
// per inbound message until the client leaves or a write fails.
func (h *Handler) SummarizeSession(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered with an HTTP error
		h.Log.InfoContext(c.Request.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		gw:   h.Gateway,
		cfg:  h.Session,
		log:  h.Log,
	}
	if h.Metrics != nil {
		h.Metrics.SessionOpened()
		defer h.Metrics.SessionClosed()
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	s.run(ctx)
}

type session struct {
	id   string
	conn *websocket.Conn
	gw   *gateway.Gateway
	cfg  SessionConfig
	log  *slog.Logger

	writeMu sync.Mutex // serializes writes (gorilla/websocket requirement)
	cycles  int
}

func (s *session) run(ctx context.Context) {
	s.log.InfoContext(ctx, "Session opened", "sessionId", s.id)
	defer func() {
		s.close()
		s.log.InfoContext(ctx, "Session closed", "sessionId", s.id, "cycles", s.cycles)
	}()

	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.heartbeat(stop)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.InfoContext(ctx, "Session read failed", "sessionId", s.id, "error", err)
			}
			return
		}

		if err := s.cycle(ctx, payload); err != nil {
			s.log.InfoContext(ctx, "Session write failed", "sessionId", s.id, "error", err)
			return
		}
		s.cycles++

		// pongs are only handled while reading, so a long cycle must not
		// count against the peer
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	}
}

// cycle relays one summarization and writes its terminal frame. A non-nil
// error means the connection is no longer writable.
func (s *session) cycle(ctx context.Context, payload []byte) error {
	req := parseInbound(payload)
	req.Streaming = true
	req.Transport = gateway.TransportSession
	if req.RequestID == "" {
		if id, err := common.NewULID(); err == nil {
			req.RequestID = id
		}
	}

	out := s.gw.Stream(ctx, req, func(f ai.Fragment) error {
		if f.IsDiagnostic() {
			return nil
		}
		return s.write(frame{Type: frameChunk, RequestID: req.RequestID, Delta: f.Content})
	})

	switch out.Kind {
	case gateway.KindNone:
		return s.write(frame{Type: frameDone, RequestID: out.RequestID, Fragments: out.Fragments})
	case gateway.KindTransport:
		return out.Err
	case gateway.KindBackend:
		return s.write(frame{Type: frameError, RequestID: out.RequestID, Message: out.Diagnostic})
	case gateway.KindValidation:
		return s.write(frame{Type: frameError, RequestID: out.RequestID, Message: out.Err.Error()})
	default:
		return s.write(frame{Type: frameError, RequestID: out.RequestID, Message: "internal server error"})
	}
}

// parseInbound takes either raw record text or a JSON object carrying text
// and an optional request id. A JSON object without a text field is itself
// the record.
func parseInbound(payload []byte) gateway.Request {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var in summarizeReq
		if err := json.Unmarshal(trimmed, &in); err == nil && in.text() != "" {
			return gateway.Request{Text: in.text(), RequestID: in.requestID()}
		}
	}
	return gateway.Request{Text: string(payload)}
}

func (s *session) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (s *session) heartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		}
	}
}

func (s *session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *session) close() {
	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := s.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.log.Debug("Close frame not sent", "sessionId", s.id, "error", err)
	}
	s.writeMu.Unlock()
	_ = s.conn.Close()
}

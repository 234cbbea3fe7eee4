package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/neuronote/internal/ai"
	"github.com/suPer8Hu/neuronote/internal/common"
	"github.com/suPer8Hu/neuronote/internal/gateway"
	"github.com/suPer8Hu/neuronote/internal/httpapi/middleware"
)

// summarizeReq accepts both the current field names and the older
// ehr_text / patient_id ones.
type summarizeReq struct {
	Text      string `json:"text"`
	EHRText   string `json:"ehr_text"`
	RequestID string `json:"request_id"`
	PatientID string `json:"patient_id"`
	Stream    bool   `json:"stream"`
}

func (r summarizeReq) text() string {
	if r.Text != "" {
		return r.Text
	}
	return r.EHRText
}

func (r summarizeReq) requestID() string {
	if id := strings.TrimSpace(r.RequestID); id != "" {
		return id
	}
	return strings.TrimSpace(r.PatientID)
}

func (h *Handler) Summarize(c *gin.Context) {
	var body summarizeReq
	if err := c.ShouldBindJSON(&body); err != nil {
		h.Gateway.Reject(c.Request.Context(), gateway.Request{
			RequestID: middleware.RequestIDFromContext(c),
			Transport: gateway.TransportBuffered,
		}, err)
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}

	id := body.requestID()
	if id == "" {
		id = middleware.RequestIDFromContext(c)
	} else {
		c.Header(middleware.RequestIDHeader, id)
	}
	req := gateway.Request{
		Text:      body.text(),
		RequestID: id,
		Streaming: body.Stream,
	}

	switch {
	case !body.Stream:
		req.Transport = gateway.TransportBuffered
		h.summarizeBuffered(c, req)
	case strings.Contains(c.GetHeader("Accept"), "text/event-stream"):
		req.Transport = gateway.TransportSSE
		h.summarizeSSE(c, req)
	default:
		req.Transport = gateway.TransportChunked
		h.summarizeChunked(c, req)
	}
}

func (h *Handler) summarizeBuffered(c *gin.Context, req gateway.Request) {
	out := h.Gateway.Buffer(c.Request.Context(), req)
	if out.Completed() {
		common.OK(c, http.StatusOK, gin.H{"summary": out.Summary})
		return
	}
	failOutcome(c, out)
}

// failOutcome writes the JSON error for a request that produced no body yet.
func failOutcome(c *gin.Context, out gateway.Outcome) {
	switch out.Kind {
	case gateway.KindValidation:
		common.Fail(c, http.StatusBadRequest, out.Err.Error())
	case gateway.KindBackend:
		common.Fail(c, http.StatusInternalServerError, out.Diagnostic)
	case gateway.KindTransport:
		// nobody left to tell
		c.Abort()
	default:
		common.Fail(c, http.StatusInternalServerError, "internal server error")
	}
}

// summarizeChunked writes every fragment as its own flushed chunk of a
// text/plain body. A diagnostic is the last chunk.
func (h *Handler) summarizeChunked(c *gin.Context, req gateway.Request) {
	ctx := c.Request.Context()
	out := h.Gateway.Stream(ctx, req, func(f ai.Fragment) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.Writer.Written() {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
		}
		if _, err := c.Writer.WriteString(f.Content); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if !c.Writer.Written() {
		failOutcome(c, out)
	}
}

// sseWriter serializes event writes from the relay and the heartbeat.
// Headers go out with the first event so early failures can still be
// answered with a plain JSON error.
type sseWriter struct {
	mu      sync.Mutex
	c       *gin.Context
	started bool
}

func (w *sseWriter) send(event string, payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.c.Request.Context().Err(); err != nil {
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if !w.started {
		w.c.Header("Content-Type", "text/event-stream")
		w.c.Header("Cache-Control", "no-cache")
		w.c.Header("Connection", "keep-alive")
		w.c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
		w.c.Status(http.StatusOK)
		w.started = true
	}
	if _, err := fmt.Fprintf(w.c.Writer, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

func (w *sseWriter) isStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (h *Handler) summarizeSSE(c *gin.Context, req gateway.Request) {
	ctx := c.Request.Context()
	w := &sseWriter{c: c}

	// heartbeat ticker (keeps connections alive while the model warms up)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.send("ping", gin.H{"type": "ping", "ts": time.Now().Unix()}); err != nil {
					return
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	out := h.Gateway.Stream(ctx, req, func(f ai.Fragment) error {
		if f.IsDiagnostic() {
			// reported once, as the terminal error event
			return nil
		}
		return w.send("chunk", gin.H{"type": "chunk", "delta": f.Content})
	})
	close(stop)
	wg.Wait()

	if !w.isStarted() && out.Kind != gateway.KindBackend {
		failOutcome(c, out)
		return
	}

	var err error
	switch out.Kind {
	case gateway.KindNone:
		err = w.send("done", gin.H{"type": "done", "request_id": out.RequestID, "fragments": out.Fragments})
	case gateway.KindTransport:
		return
	case gateway.KindBackend:
		err = w.send("error", gin.H{"type": "error", "request_id": out.RequestID, "message": out.Diagnostic})
	case gateway.KindValidation:
		err = w.send("error", gin.H{"type": "error", "request_id": out.RequestID, "message": out.Err.Error()})
	default:
		err = w.send("error", gin.H{"type": "error", "request_id": out.RequestID, "message": "internal server error"})
	}
	if err != nil {
		h.Log.InfoContext(ctx, "Failed to write terminal event",
			"requestId", out.RequestID,
			"error", err)
	}
}

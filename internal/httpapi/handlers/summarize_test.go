package handlers

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/neuronote/internal/ai"
	"github.com/suPer8Hu/neuronote/internal/gateway"
	"github.com/suPer8Hu/neuronote/internal/httpapi/middleware"
	"github.com/suPer8Hu/neuronote/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const janeDoe = "Patient: Jane Doe, Age 40, Dx: Hypertension"

var janeDoeSummary = []string{
	"- **Patient Overview:** Jane Doe, 40.",
	"\n- **Diagnosis:** Hypertension.",
	"\n- **Medications:** None listed.",
}

// fakeSource replays fragments and records the text it was asked about.
type fakeSource struct {
	fragments []ai.Fragment
	calls     atomic.Int32
	lastText  atomic.Value
}

func (s *fakeSource) Summarize(_ context.Context, text string) iter.Seq[ai.Fragment] {
	s.calls.Add(1)
	s.lastText.Store(text)
	return func(yield func(ai.Fragment) bool) {
		for _, f := range s.fragments {
			if !yield(f) {
				return
			}
		}
	}
}

func janeDoeSource() *fakeSource {
	src := &fakeSource{}
	for _, c := range janeDoeSummary {
		src.fragments = append(src.fragments, ai.Fragment{Content: c})
	}
	return src
}

func newTestRouter(src ai.Source) *gin.Engine {
	h := NewHandler(gateway.New(src), logger.Nop(), nil, SessionConfig{})
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/", h.Root)
	r.GET("/ping", h.Ping)
	r.POST("/summarize", h.Summarize)
	r.GET("/ws/summarize", h.SummarizeSession)
	return r
}

func post(r http.Handler, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/summarize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSummarize_Buffered(t *testing.T) {
	src := janeDoeSource()
	w := post(newTestRouter(src), `{"text":"`+janeDoe+`","stream":false}`)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Summary string `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, strings.Join(janeDoeSummary, ""), body.Summary)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, janeDoe, src.lastText.Load())
}

func TestSummarize_LegacyFieldNames(t *testing.T) {
	src := janeDoeSource()
	w := post(newTestRouter(src), `{"ehr_text":"`+janeDoe+`","patient_id":"P-001"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "P-001", w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, janeDoe, src.lastText.Load())
}

func TestSummarize_EmptyText(t *testing.T) {
	for _, body := range []string{`{"text":""}`, `{"text":"   \n"}`, `{}`} {
		src := janeDoeSource()
		w := post(newTestRouter(src), body)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"text is required"}`, w.Body.String())
		assert.Zero(t, src.calls.Load())
	}
}

func TestSummarize_InvalidJSON(t *testing.T) {
	w := post(newTestRouter(janeDoeSource()), `{"text":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid json"}`, w.Body.String())
}

func TestSummarize_BufferedBackendFailure(t *testing.T) {
	src := &fakeSource{fragments: []ai.Fragment{ai.Diagnostic("ollama: connection refused")}}
	w := post(newTestRouter(src), `{"text":"`+janeDoe+`"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"ollama: connection refused"}`, w.Body.String())
}

func TestSummarize_Chunked(t *testing.T) {
	w := post(newTestRouter(janeDoeSource()), `{"text":"`+janeDoe+`","stream":true}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, strings.Join(janeDoeSummary, ""), w.Body.String())
	assert.True(t, w.Flushed)
}

func TestSummarize_ChunkedDiagnosticIsLastChunk(t *testing.T) {
	src := &fakeSource{fragments: []ai.Fragment{
		{Content: "- **Patient Overview:**"},
		ai.Diagnostic("ollama: stream ended before completion"),
	}}
	w := post(newTestRouter(src), `{"text":"`+janeDoe+`","stream":true}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "- **Patient Overview:**[Error]: ollama: stream ended before completion", w.Body.String())
}

func TestSummarize_ChunkedValidationIsJSON(t *testing.T) {
	w := post(newTestRouter(janeDoeSource()), `{"text":"","stream":true}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"text is required"}`, w.Body.String())
}

type sseEvent struct {
	name string
	data map[string]any
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var e sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				e.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e.data))
			}
		}
		out = append(out, e)
	}
	return out
}

func TestSummarize_SSE(t *testing.T) {
	w := post(newTestRouter(janeDoeSource()), `{"text":"`+janeDoe+`","stream":true,"request_id":"req-9"}`,
		"Accept", "text/event-stream")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, len(janeDoeSummary)+1)
	for i, c := range janeDoeSummary {
		assert.Equal(t, "chunk", events[i].name)
		assert.Equal(t, c, events[i].data["delta"])
	}
	last := events[len(events)-1]
	assert.Equal(t, "done", last.name)
	assert.Equal(t, "req-9", last.data["request_id"])
	assert.EqualValues(t, len(janeDoeSummary), last.data["fragments"])
}

func TestSummarize_SSEBackendFailure(t *testing.T) {
	src := &fakeSource{fragments: []ai.Fragment{ai.Diagnostic("remote: status 429: quota exceeded")}}
	w := post(newTestRouter(src), `{"text":"`+janeDoe+`","stream":true}`, "Accept", "text/event-stream")

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].name)
	assert.Equal(t, "remote: status 429: quota exceeded", events[0].data["message"])
}

func TestRootAndPing(t *testing.T) {
	r := newTestRouter(janeDoeSource())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "NeuroNote")
}

// cancellingSource cancels the caller's context after n fragments and counts
// every fragment pulled.
type cancellingSource struct {
	cancel context.CancelFunc
	after  int
	pulled atomic.Int32
}

func (s *cancellingSource) Summarize(ctx context.Context, _ string) iter.Seq[ai.Fragment] {
	return func(yield func(ai.Fragment) bool) {
		for i := 0; i < 10; i++ {
			if i == s.after {
				s.cancel()
			}
			s.pulled.Add(1)
			f := ai.Fragment{Content: "- line\n"}
			if ctx.Err() != nil {
				f = ai.Diagnosticf("ollama: %v", ctx.Err())
			}
			if !yield(f) {
				return
			}
		}
	}
}

func TestSummarize_ChunkedStopsReadingWhenCallerLeaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancellingSource{cancel: cancel, after: 2}

	req := httptest.NewRequest(http.MethodPost, "/summarize",
		strings.NewReader(`{"text":"`+janeDoe+`","stream":true}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newTestRouter(src).ServeHTTP(w, req)

	assert.Equal(t, "- line\n- line\n", w.Body.String())
	assert.EqualValues(t, 3, src.pulled.Load())
	assert.NotContains(t, w.Body.String(), ai.DiagnosticPrefix)
}

func TestSummarize_BufferedCallerLeavesWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancellingSource{cancel: cancel, after: 1}

	req := httptest.NewRequest(http.MethodPost, "/summarize",
		strings.NewReader(`{"text":"`+janeDoe+`"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newTestRouter(src).ServeHTTP(w, req)

	assert.Empty(t, w.Body.String())
	assert.EqualValues(t, 2, src.pulled.Load())
}

package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, hits *atomic.Int32, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gemini-2.5-flash",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "- **Patient Overview:** Jane Doe, 40.\n- **Diagnosis:** Hypertension."}
  }]
}`

func TestRemoteSource_YieldsWholeReplyOnce(t *testing.T) {
	var (
		hits    atomic.Int32
		authHdr string
		payload map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		authHdr = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	src := NewRemoteSource(srv.URL, "test-key", "", nil)
	frags := slices.Collect(src.Summarize(context.Background(), "Patient: Jane Doe, Age 40, Dx: Hypertension"))

	require.Len(t, frags, 1)
	assert.False(t, frags[0].IsDiagnostic())
	assert.Contains(t, frags[0].Content, "Hypertension")
	assert.Equal(t, "Bearer test-key", authHdr)
	assert.Equal(t, DefaultRemoteModel, payload["model"])
	msgs, ok := payload["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
	assert.EqualValues(t, 1, hits.Load())
}

func TestRemoteSource_AuthFailureIsDiagnostic(t *testing.T) {
	var hits atomic.Int32
	srv := completionServer(t, &hits, http.StatusUnauthorized,
		`{"error":{"message":"API key not valid","type":"invalid_request_error"}}`)
	defer srv.Close()

	frags := slices.Collect(NewRemoteSource(srv.URL, "bad", "m", nil).Summarize(context.Background(), "record"))

	require.Len(t, frags, 1)
	assert.True(t, frags[0].IsDiagnostic())
	assert.Contains(t, frags[0].Message(), "status 401")
}

func TestRemoteSource_DoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := completionServer(t, &hits, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)
	defer srv.Close()

	frags := slices.Collect(NewRemoteSource(srv.URL, "k", "m", nil).Summarize(context.Background(), "record"))

	require.Len(t, frags, 1)
	assert.True(t, frags[0].IsDiagnostic())
	assert.EqualValues(t, 1, hits.Load())
}

func TestRemoteSource_MissingKey(t *testing.T) {
	var hits atomic.Int32
	srv := completionServer(t, &hits, http.StatusOK, completionBody)
	defer srv.Close()

	frags := slices.Collect(NewRemoteSource(srv.URL, " ", "m", nil).Summarize(context.Background(), "record"))

	require.Len(t, frags, 1)
	assert.Equal(t, "[Error]: remote: api key is required", frags[0].Content)
	assert.Zero(t, hits.Load())
}

func TestRemoteSource_EmptyChoices(t *testing.T) {
	var hits atomic.Int32
	srv := completionServer(t, &hits, http.StatusOK,
		`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	defer srv.Close()

	frags := slices.Collect(NewRemoteSource(srv.URL, "k", "m", nil).Summarize(context.Background(), "record"))

	require.Len(t, frags, 1)
	assert.Equal(t, "[Error]: remote: empty response", frags[0].Content)
}

func TestRemoteSource_EmptyText(t *testing.T) {
	var hits atomic.Int32
	srv := completionServer(t, &hits, http.StatusOK, completionBody)
	defer srv.Close()

	frags := slices.Collect(NewRemoteSource(srv.URL, "k", "m", nil).Summarize(context.Background(), ""))

	require.Len(t, frags, 1)
	assert.True(t, frags[0].IsDiagnostic())
	assert.Zero(t, hits.Load())
}

func TestRemoteSource_TrimsAPIKey(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	frags := slices.Collect(NewRemoteSource(srv.URL, "  secret-key\n", "m", nil).Summarize(context.Background(), "record"))

	require.Len(t, frags, 1)
	assert.False(t, frags[0].IsDiagnostic())
	assert.Equal(t, "Bearer secret-key", auth.Load())
}

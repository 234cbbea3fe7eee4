package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
)

// OllamaSource streams summaries from a locally hosted Ollama model.
type OllamaSource struct {
	BaseURL string
	Model   string
	Client  *http.Client
	Log     *slog.Logger
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatReq struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
}

type ollamaStreamResp struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
	Error   string    `json:"error,omitempty"`
}

func NewOllamaSource(baseURL, model string, log *slog.Logger) *OllamaSource {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "granite3.2:8b"
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &OllamaSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		// no global timeout; ctx controls streaming
		Client: &http.Client{},
		Log:    log,
	}
}

// Summarize forwards every non-empty token group Ollama emits as one fragment.
func (s *OllamaSource) Summarize(ctx context.Context, text string) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		if strings.TrimSpace(text) == "" {
			yield(Diagnostic(emptyInputMessage))
			return
		}

		resp, err := s.open(ctx, text)
		if err != nil {
			s.fail(ctx, yield, err)
			return
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		// Increase scanner buffer for long JSON lines.
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		produced := 0
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}

			var decoded ollamaStreamResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				s.fail(ctx, yield, fmt.Errorf("malformed stream line: %w", err))
				return
			}
			if decoded.Error != "" {
				s.fail(ctx, yield, errors.New(decoded.Error))
				return
			}

			if decoded.Message.Content != "" {
				produced++
				if !yield(Fragment{Content: decoded.Message.Content}) {
					return
				}
			}

			if decoded.Done {
				if produced == 0 {
					s.fail(ctx, yield, errors.New("model returned an empty summary"))
				}
				return
			}
		}

		if err := sc.Err(); err != nil {
			s.fail(ctx, yield, err)
			return
		}
		s.fail(ctx, yield, errors.New("stream ended before completion"))
	}
}

func (s *OllamaSource) open(ctx context.Context, text string) (*http.Response, error) {
	if s.Client == nil {
		return nil, errors.New("http client is nil")
	}

	msgs := BuildMessages(text)
	reqBody := ollamaChatReq{
		Model:  s.Model,
		Stream: true,
		Messages: func() []ollamaMsg {
			out := make([]ollamaMsg, 0, len(msgs))
			for _, m := range msgs {
				out = append(out, ollamaMsg{Role: m.Role, Content: m.Content})
			}
			return out
		}(),
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/chat", s.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		var decoded ollamaStreamResp
		if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, decoded.Error)
		}
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp, nil
}

func (s *OllamaSource) fail(ctx context.Context, yield func(Fragment) bool, err error) {
	s.Log.WarnContext(ctx, "Ollama summarization failed",
		"error", err,
		"model", s.Model)
	yield(Diagnosticf("ollama: %v", err))
}

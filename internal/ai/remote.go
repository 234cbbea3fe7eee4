package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultRemoteBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultRemoteModel   = "gemini-2.5-flash"
)

// RemoteSource summarizes through a hosted OpenAI-compatible Chat Completions
// endpoint (Gemini, OpenRouter, OpenAI). The call is blocking and the whole
// reply is yielded as a single fragment.
type RemoteSource struct {
	client openai.Client
	apiKey string
	model  string
	log    *slog.Logger
}

func NewRemoteSource(baseURL, apiKey, model string, log *slog.Logger) *RemoteSource {
	if baseURL == "" {
		baseURL = DefaultRemoteBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if model == "" {
		model = DefaultRemoteModel
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	apiKey = strings.TrimSpace(apiKey)
	return &RemoteSource{
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		apiKey: apiKey,
		model:  model,
		log:    log,
	}
}

func (s *RemoteSource) Summarize(ctx context.Context, text string) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		if strings.TrimSpace(text) == "" {
			yield(Diagnostic(emptyInputMessage))
			return
		}

		summary, err := s.complete(ctx, text)
		if err != nil {
			s.log.WarnContext(ctx, "Remote summarization failed",
				"error", err,
				"model", s.model)
			yield(Diagnosticf("remote: %v", err))
			return
		}
		yield(Fragment{Content: summary})
	}
}

func (s *RemoteSource) complete(ctx context.Context, text string) (string, error) {
	if s.apiKey == "" {
		return "", errors.New("api key is required")
	}

	msgs := BuildMessages(text)
	params := openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)),
	}
	for _, m := range msgs {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("status %d: %s", apiErr.StatusCode, apiErrorMessage(apiErr))
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response")
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("output text is missing (finish reason = %s)", resp.Choices[0].FinishReason)
	}
	return content, nil
}

func apiErrorMessage(err *openai.Error) string {
	if msg := strings.TrimSpace(err.Message); msg != "" {
		return msg
	}
	return "request failed"
}

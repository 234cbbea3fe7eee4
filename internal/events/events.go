// Package events carries summarization lifecycle events from the gateway to
// whatever sinks the process wires in (logs, metrics, a message broker).
// Events never contain record text or summary content.
package events

import (
	"context"
	"log/slog"
	"time"
)

type Event struct {
	Time       time.Time `json:"time"`
	RequestID  string    `json:"request_id"`
	Transport  string    `json:"transport"`
	State      string    `json:"state"`
	Terminal   bool      `json:"terminal"`
	Kind       string    `json:"kind,omitempty"`
	Fragments  int       `json:"fragments,omitempty"`
	Bytes      int       `json:"bytes,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Recorder receives lifecycle events. Record is called on the request path and
// must not block.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

type RecorderFunc func(ctx context.Context, e Event)

func (f RecorderFunc) Record(ctx context.Context, e Event) { f(ctx, e) }

type multi []Recorder

// Multi fans every event out to each non-nil recorder in order.
func Multi(recorders ...Recorder) Recorder {
	out := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Record(ctx context.Context, e Event) {
	for _, r := range m {
		r.Record(ctx, e)
	}
}

func Nop() Recorder {
	return RecorderFunc(func(context.Context, Event) {})
}

type logRecorder struct {
	log *slog.Logger
}

// NewLogRecorder writes each state transition as a debug-level record.
func NewLogRecorder(log *slog.Logger) Recorder {
	return logRecorder{log: log}
}

func (r logRecorder) Record(ctx context.Context, e Event) {
	attrs := []any{
		"requestId", e.RequestID,
		"transport", e.Transport,
		"state", e.State,
	}
	if e.Terminal {
		attrs = append(attrs,
			"kind", e.Kind,
			"fragments", e.Fragments,
			"bytes", e.Bytes,
			"durationMs", e.DurationMS)
	}
	r.log.DebugContext(ctx, "Summarization state changed", attrs...)
}

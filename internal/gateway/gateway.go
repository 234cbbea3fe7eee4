// Package gateway runs one summarization request from receipt to a terminal
// state and relays the Summary Source's fragments to a transport sink.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/suPer8Hu/neuronote/internal/ai"
	"github.com/suPer8Hu/neuronote/internal/events"
)

const noOutputMessage = "no summary was generated"

// Gateway is stateless between requests; the source is shared by every
// concurrent request.
type Gateway struct {
	source       ai.Source
	log          *slog.Logger
	recorder     events.Recorder
	maxTextBytes int
}

type Option func(*Gateway)

func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

func WithRecorder(r events.Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// WithMaxTextBytes rejects larger record texts as validation failures.
// Zero disables the limit.
func WithMaxTextBytes(n int) Option {
	return func(g *Gateway) { g.maxTextBytes = n }
}

func New(source ai.Source, opts ...Option) *Gateway {
	g := &Gateway{
		source:   source,
		log:      slog.New(slog.DiscardHandler),
		recorder: events.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stream validates req, invokes the source and hands every fragment to emit in
// production order. A diagnostic fragment is relayed and then ends the request
// as a backend failure. An error from emit ends it as a transport failure and
// no further fragments are pulled from the source.
func (g *Gateway) Stream(ctx context.Context, req Request, emit func(ai.Fragment) error) (out Outcome) {
	start := time.Now()
	out = Outcome{RequestID: req.RequestID, State: StateReceived}
	g.transition(ctx, req, StateReceived)

	defer func() {
		if r := recover(); r != nil {
			g.log.ErrorContext(ctx, "Summarization panicked",
				"requestId", req.RequestID,
				"transport", req.Transport,
				"panic", r)
			out.State = StateFailed
			out.Kind = KindInternal
			out.Err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
		out.Duration = time.Since(start)
		g.finish(ctx, req, out)
	}()

	g.transition(ctx, req, StateValidating)
	if err := g.Validate(req); err != nil {
		out.State, out.Kind, out.Err = StateFailed, KindValidation, err
		return out
	}

	g.transition(ctx, req, StateDispatched)
	seq := g.source.Summarize(ctx, req.Text)

	g.transition(ctx, req, StateRelaying)
	for f := range seq {
		// a cancelled caller context surfaces from the source as a
		// diagnostic; it is the caller leaving, not the backend failing
		if err := ctx.Err(); err != nil {
			out.State, out.Kind, out.Err = StateFailed, KindTransport, err
			return out
		}
		if err := emit(f); err != nil {
			out.State, out.Kind, out.Err = StateFailed, KindTransport, err
			return out
		}
		out.Fragments++
		out.Bytes += len(f.Content)

		if f.IsDiagnostic() {
			out.State, out.Kind, out.Diagnostic = StateFailed, KindBackend, f.Message()
			return out
		}
	}

	if out.Fragments == 0 {
		if err := ctx.Err(); err != nil {
			out.State, out.Kind, out.Err = StateFailed, KindTransport, err
			return out
		}
		f := ai.Diagnostic(noOutputMessage)
		if err := emit(f); err != nil {
			out.State, out.Kind, out.Err = StateFailed, KindTransport, err
			return out
		}
		out.Fragments++
		out.Bytes += len(f.Content)
		out.State, out.Kind, out.Diagnostic = StateFailed, KindBackend, noOutputMessage
		return out
	}

	out.State = StateCompleted
	return out
}

// Buffer runs the same lifecycle as Stream but accumulates fragments and
// returns their in-order concatenation as Outcome.Summary on completion.
func (g *Gateway) Buffer(ctx context.Context, req Request) Outcome {
	var b strings.Builder
	out := g.Stream(ctx, req, func(f ai.Fragment) error {
		if !f.IsDiagnostic() {
			b.WriteString(f.Content)
		}
		return nil
	})
	if out.Completed() {
		out.Summary = b.String()
	}
	return out
}

// Reject ends a request whose payload could not be decoded into a Request.
// It is recorded as received then failed, and the source is never invoked.
func (g *Gateway) Reject(ctx context.Context, req Request, err error) Outcome {
	g.transition(ctx, req, StateReceived)
	out := Outcome{
		RequestID: req.RequestID,
		State:     StateFailed,
		Kind:      KindValidation,
		Err:       fmt.Errorf("%w: %v", ErrMalformed, err),
	}
	g.finish(ctx, req, out)
	return out
}

func (g *Gateway) transition(ctx context.Context, req Request, state State) {
	g.recorder.Record(ctx, events.Event{
		Time:      time.Now(),
		RequestID: req.RequestID,
		Transport: string(req.Transport),
		State:     string(state),
	})
}

func (g *Gateway) finish(ctx context.Context, req Request, out Outcome) {
	e := events.Event{
		Time:       time.Now(),
		RequestID:  req.RequestID,
		Transport:  string(req.Transport),
		State:      string(out.State),
		Terminal:   true,
		Kind:       string(out.Kind),
		Fragments:  out.Fragments,
		Bytes:      out.Bytes,
		DurationMS: out.Duration.Milliseconds(),
		Diagnostic: out.Diagnostic,
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	g.recorder.Record(ctx, e)

	attrs := []any{
		"requestId", req.RequestID,
		"transport", req.Transport,
		"fragments", out.Fragments,
		"durationMs", out.Duration.Milliseconds(),
	}
	switch out.Kind {
	case KindNone:
		g.log.InfoContext(ctx, "Summary delivered", attrs...)
	case KindValidation:
		g.log.InfoContext(ctx, "Summary request rejected", append(attrs, "error", out.Err)...)
	case KindTransport:
		g.log.InfoContext(ctx, "Caller went away mid-stream", append(attrs, "error", out.Err)...)
	case KindBackend:
		g.log.WarnContext(ctx, "Summary source reported a failure", append(attrs, "diagnostic", out.Diagnostic)...)
	default:
		g.log.ErrorContext(ctx, "Summary request failed", append(attrs, "kind", out.Kind, "error", out.Err)...)
	}
}

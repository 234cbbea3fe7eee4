package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyText    = errors.New("text is required")
	ErrTextTooLarge = errors.New("text exceeds maximum size")
	ErrInternal     = errors.New("internal error")
	// ErrMalformed marks a payload the transport could not decode.
	ErrMalformed = errors.New("malformed request")
)

// Transport names the binding a request arrived on.
type Transport string

const (
	TransportBuffered Transport = "buffered"
	TransportChunked  Transport = "chunked"
	TransportSSE      Transport = "sse"
	TransportSession  Transport = "session"
)

// Request is one summarization request, built at the transport boundary and
// never modified afterwards.
type Request struct {
	Text      string
	RequestID string
	Streaming bool
	Transport Transport
}

type State string

const (
	StateReceived   State = "received"
	StateValidating State = "validating"
	StateDispatched State = "dispatched"
	StateRelaying   State = "relaying"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Kind classifies why a request failed.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindBackend    Kind = "backend"
	KindTransport  Kind = "transport"
	KindInternal   Kind = "internal"
)

// Outcome is the terminal result of one request.
type Outcome struct {
	RequestID string
	State     State
	Kind      Kind
	// Err is set for validation, transport and internal failures.
	Err error
	// Diagnostic is the backend message, without the diagnostic prefix.
	Diagnostic string
	// Summary is only filled by Buffer, and only on completion.
	Summary   string
	Fragments int
	Bytes     int
	Duration  time.Duration
}

func (o Outcome) Completed() bool { return o.State == StateCompleted }

func (g *Gateway) Validate(req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}
	if g.maxTextBytes > 0 && len(req.Text) > g.maxTextBytes {
		return fmt.Errorf("%w (%d bytes, limit %d)", ErrTextTooLarge, len(req.Text), g.maxTextBytes)
	}
	return nil
}

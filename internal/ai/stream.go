package ai

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// DiagnosticPrefix marks a fragment that reports a failure instead of summary text.
const DiagnosticPrefix = "[Error]: "

// Fragment is one unit of generated summary text.
type Fragment struct {
	Content string
}

// Diagnostic builds the terminal fragment a Source emits when it cannot summarize.
func Diagnostic(msg string) Fragment {
	return Fragment{Content: DiagnosticPrefix + msg}
}

func Diagnosticf(format string, args ...any) Fragment {
	return Diagnostic(fmt.Sprintf(format, args...))
}

func (f Fragment) IsDiagnostic() bool {
	return strings.HasPrefix(f.Content, DiagnosticPrefix)
}

// Message returns the diagnostic text without its prefix.
func (f Fragment) Message() string {
	return strings.TrimPrefix(f.Content, DiagnosticPrefix)
}

// Source turns clinical record text into a lazy sequence of fragments.
//
// Implementations never return an error or panic past this boundary: a failure
// is reported as one diagnostic fragment that ends the sequence. Nothing is sent
// to the backend until the caller starts ranging over the sequence, and breaking
// out of the range stops the backend read.
type Source interface {
	Summarize(ctx context.Context, text string) iter.Seq[Fragment]
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, text string) iter.Seq[Fragment]

func (f SourceFunc) Summarize(ctx context.Context, text string) iter.Seq[Fragment] {
	return f(ctx, text)
}

// Single yields exactly one fragment.
func Single(f Fragment) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		yield(f)
	}
}

const emptyInputMessage = "ehr text is empty"

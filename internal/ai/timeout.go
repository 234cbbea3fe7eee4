package ai

import (
	"context"
	"errors"
	"iter"
	"time"
)

// WithTimeout bounds every Summarize call of src by d. Once the deadline has
// passed, the rest of the sequence is replaced by a single timeout diagnostic.
// A non-positive d returns src unchanged.
func WithTimeout(src Source, d time.Duration) Source {
	if d <= 0 {
		return src
	}
	return SourceFunc(func(ctx context.Context, text string) iter.Seq[Fragment] {
		return func(yield func(Fragment) bool) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			produced := 0
			for f := range src.Summarize(ctx, text) {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					yield(Diagnosticf("summary timed out after %s", d))
					return
				}
				produced++
				if !yield(f) {
					return
				}
			}
			if produced == 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				yield(Diagnosticf("summary timed out after %s", d))
			}
		}
	})
}

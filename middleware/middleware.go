package middleware

import (
	"context"
	"errors"

	"github.com/stonezone/batchgen/failure"
	"github.com/stonezone/batchgen/job"
)

// Handler is the terminal function that invokes the job callback.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the job being executed and the next handler to call.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes middleware into one. The first middleware in the list is
// the outermost wrapper, so Chain(Recover, Timeout, Logging) runs as
//
//	Recover → Timeout → Logging → callback
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}

// Outcome values reported by the logging, metrics and tracing middleware.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// outcome maps a callback error to the job outcome and, for failures, the
// classified failure kind. Cancellation carries no kind.
func outcome(err error) (string, failure.Kind) {
	switch {
	case err == nil:
		return OutcomeCompleted, ""
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled, ""
	default:
		return OutcomeFailed, failure.Classify(err)
	}
}

// Package middleware provides composable middleware for job execution.
//
// A [Middleware] is a function that wraps the call into a job's callback.
// Middleware are composed into a chain using [Chain] and applied before
// each job executes. They are applied right-to-left: the first middleware
// in the slice is the outermost wrapper.
//
//	// recover → logging → callback
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Recover]: catches panics and converts them to errors
//   - [Timeout]: bounds each callback with a deadline
//   - [Logging]: logs job name, batch, duration and outcome
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-job duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting. The job passed to middleware is a snapshot; changes to
// it are not recorded.
package middleware

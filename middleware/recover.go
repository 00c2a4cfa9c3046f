package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/stonezone/batchgen/failure"
	"github.com/stonezone/batchgen/job"
)

// Recover returns middleware that turns a panic in the handler chain into
// a job failure and logs it with a stack trace. The resulting error is of
// kind failure.Unknown whatever the panic value says.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job callback panicked",
					slog.String("job_name", j.Name),
					slog.String("job_id", j.ID),
					slog.String("batch_id", j.BatchID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = failure.Wrap(failure.Unknown, fmt.Errorf("panic in job %s: %v", j.Name, r))
			}
		}()
		return next(ctx)
	}
}

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/stonezone/batchgen/job"
)

// Timeout returns middleware that bounds every callback with d. When the
// deadline passes the callback's context is cancelled and a well-behaved
// callback returns context.DeadlineExceeded. A zero d disables the
// deadline.
func Timeout(logger *slog.Logger, d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		logger.Debug("job timeout set",
			slog.String("job_id", j.ID),
			slog.Duration("timeout", d),
		)
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}

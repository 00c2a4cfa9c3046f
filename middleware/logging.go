package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/stonezone/batchgen/failure"
	"github.com/stonezone/batchgen/job"
)

// Logging returns middleware that logs each callback invocation. Failures
// are logged at error level with their failure kind; cancellations at warn.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("job started",
			slog.String("job_name", j.Name),
			slog.String("job_id", j.ID),
			slog.String("batch_id", j.BatchID),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		result, kind := outcome(err)
		switch result {
		case OutcomeCompleted:
			logger.Info("job completed",
				slog.String("job_name", j.Name),
				slog.String("job_id", j.ID),
				slog.Duration("elapsed", elapsed),
			)
		case OutcomeCancelled:
			logger.Warn("job cancelled",
				slog.String("job_name", j.Name),
				slog.String("job_id", j.ID),
				slog.Duration("elapsed", elapsed),
			)
		default:
			logger.Error("job failed",
				slog.String("job_name", j.Name),
				slog.String("job_id", j.ID),
				slog.Duration("elapsed", elapsed),
				slog.String("error_kind", string(kind)),
				slog.Bool("retryable", failure.Retryable(kind)),
				slog.String("error", err.Error()),
			)
		}

		return err
	}
}

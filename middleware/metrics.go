package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stonezone/batchgen/failure"
	"github.com/stonezone/batchgen/job"
)

// meterName is the instrumentation scope name for batchgen metrics.
const meterName = "github.com/stonezone/batchgen"

// Metrics returns middleware that records per-job callback metrics using
// the global OTel MeterProvider. Without a configured provider the
// instruments are noops.
//
// Instruments:
//   - batchgen.job.duration (Float64Histogram): callback time in seconds
//   - batchgen.job.executions (Int64Counter): callback invocations
//
// Both carry job_name and outcome (completed, failed or cancelled). Failed
// invocations also carry error_kind, the failure.Kind of the error, and
// retryable.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram(
		"batchgen.job.duration",
		metric.WithDescription("Duration of job callbacks in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"batchgen.job.executions",
		metric.WithDescription("Job callback invocations by outcome and failure kind"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		result, kind := outcome(err)
		attrs := []attribute.KeyValue{
			attribute.String("job_name", j.Name),
			attribute.String("outcome", result),
		}
		if kind != "" {
			attrs = append(attrs,
				attribute.String("error_kind", string(kind)),
				attribute.Bool("retryable", failure.Retryable(kind)),
			)
		}
		set := metric.WithAttributes(attrs...)
		duration.Record(ctx, elapsed, set)
		executions.Add(ctx, 1, set)

		return err
	}
}

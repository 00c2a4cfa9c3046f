package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stonezone/batchgen/failure"
	"github.com/stonezone/batchgen/job"
)

// tracerName is the instrumentation scope name for batchgen tracing.
const tracerName = "github.com/stonezone/batchgen"

// Tracing returns middleware that wraps each job callback in a span from
// the global TracerProvider. Without a configured provider the span is a
// noop.
//
// The span carries batchgen.job.id, batchgen.job.name and
// batchgen.batch.id, plus batchgen.job.outcome once the callback returns.
// A failed callback marks the span as an error and adds
// batchgen.error.kind and batchgen.error.retryable.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "batchgen.job.execute",
			trace.WithAttributes(
				attribute.String("batchgen.job.id", j.ID),
				attribute.String("batchgen.job.name", j.Name),
				attribute.String("batchgen.batch.id", j.BatchID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		result, kind := outcome(err)
		span.SetAttributes(attribute.String("batchgen.job.outcome", result))

		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case kind == "":
			// Cancelled by the caller; not an error of the job itself.
			span.SetStatus(codes.Unset, "")
		default:
			span.SetAttributes(
				attribute.String("batchgen.error.kind", string(kind)),
				attribute.Bool("batchgen.error.retryable", failure.Retryable(kind)),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}

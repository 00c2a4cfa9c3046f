package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/stonezone/batchgen/job"
	mw "github.com/stonezone/batchgen/middleware"
	"github.com/stonezone/batchgen/payload"
)

// lessonJob is a job as the batch manager would hand it to the pool.
func lessonJob() *job.Job {
	j := job.New("Math_3", payload.NewMap().Set("subject", payload.String("Math")))
	j.BatchID = "batch_123"
	return j
}

// runTraced executes fn under the tracing middleware and returns the single
// span it produced.
func runTraced(t *testing.T, j *job.Job, fn mw.Handler) (sdktrace.ReadOnlySpan, error) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	err := mw.TracingWithTracer(tp.Tracer("batchgen-test"))(context.Background(), j, fn)

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	return ended[0], err
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[string]string {
	out := map[string]string{}
	for _, kv := range span.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestTracing_SpanPerJob(t *testing.T) {
	j := lessonJob()
	span, err := runTraced(t, j, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Tracing: %v", err)
	}

	if span.Name() != "batchgen.job.execute" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindInternal {
		t.Errorf("span kind = %v, want internal", span.SpanKind())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}

	got := spanAttrs(span)
	for key, want := range map[string]string{
		"batchgen.job.id":      j.ID,
		"batchgen.job.name":    "Math_3",
		"batchgen.batch.id":    "batch_123",
		"batchgen.job.outcome": "completed",
	} {
		if got[key] != want {
			t.Errorf("%s = %q, want %q", key, got[key], want)
		}
	}
}

func TestTracing_FailedCallbackMarksSpan(t *testing.T) {
	rateLimited := errors.New("429 rate limit exceeded")
	span, err := runTraced(t, lessonJob(), func(context.Context) error { return rateLimited })
	if !errors.Is(err, rateLimited) {
		t.Fatalf("err = %v, want the callback error", err)
	}

	if span.Status().Code != codes.Error || span.Status().Description != rateLimited.Error() {
		t.Errorf("status = %+v", span.Status())
	}
	var recorded bool
	for _, ev := range span.Events() {
		recorded = recorded || ev.Name == "exception"
	}
	if !recorded {
		t.Error("callback error not recorded as a span event")
	}

	attrs := spanAttrs(span)
	for key, want := range map[string]string{
		"batchgen.job.outcome":     "failed",
		"batchgen.error.kind":      "rate_limit",
		"batchgen.error.retryable": "true",
	} {
		if attrs[key] != want {
			t.Errorf("%s = %q, want %q", key, attrs[key], want)
		}
	}
}

func TestTracing_PermanentFailureKind(t *testing.T) {
	span, _ := runTraced(t, lessonJob(), func(context.Context) error {
		return errors.New("monthly quota reached")
	})
	attrs := spanAttrs(span)
	if attrs["batchgen.error.kind"] != "quota_exceeded" || attrs["batchgen.error.retryable"] != "false" {
		t.Errorf("attributes = %v", attrs)
	}
}

func TestTracing_CancelledIsNotAnError(t *testing.T) {
	span, err := runTraced(t, lessonJob(), func(context.Context) error { return context.Canceled })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if span.Status().Code != codes.Unset {
		t.Errorf("status = %v, want Unset", span.Status().Code)
	}
	attrs := spanAttrs(span)
	if attrs["batchgen.job.outcome"] != "cancelled" {
		t.Errorf("outcome = %q", attrs["batchgen.job.outcome"])
	}
	if _, ok := attrs["batchgen.error.kind"]; ok {
		t.Error("cancelled span carries an error kind")
	}
}

func TestTracing_CallbackSeesSpanContext(t *testing.T) {
	var inner trace.SpanContext
	span, _ := runTraced(t, lessonJob(), func(ctx context.Context) error {
		inner = trace.SpanContextFromContext(ctx)
		return nil
	})

	if !inner.IsValid() {
		t.Fatal("callback context carries no span")
	}
	if inner.SpanID() != span.SpanContext().SpanID() {
		t.Error("callback span differs from the job span")
	}
}

func TestTracing_GlobalProviderPassThrough(t *testing.T) {
	ran := false
	err := mw.Tracing()(context.Background(), lessonJob(), func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("ran = %v, err = %v", ran, err)
	}
}

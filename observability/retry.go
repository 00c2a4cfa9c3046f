package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stonezone/batchgen/retry"
)

var _ retry.Observer = (*RetryMetrics)(nil)

// RetryMetrics is a retry.Observer that records OpenTelemetry instruments:
//   - batchgen.retry.attempts (Int64Counter): attempts started, with a
//     "retry" attribute that is false for the first attempt
//   - batchgen.retry.backoff (Float64Histogram): backoff sleeps in ms
//   - batchgen.retry.exhausted (Int64Counter): loops that ran out of attempts
//   - batchgen.retry.gave_up (Int64Counter): loops ended by a terminal error
type RetryMetrics struct {
	attempts  metric.Int64Counter
	backoff   metric.Float64Histogram
	exhausted metric.Int64Counter
	gaveUp    metric.Int64Counter
}

// NewRetryMetrics creates a RetryMetrics on the global MeterProvider.
func NewRetryMetrics() *RetryMetrics {
	return NewRetryMetricsWithMeter(otel.Meter(meterName))
}

// NewRetryMetricsWithMeter creates a RetryMetrics with the given meter.
func NewRetryMetricsWithMeter(meter metric.Meter) *RetryMetrics {
	attempts, _ := meter.Int64Counter("batchgen.retry.attempts",
		metric.WithDescription("Attempts started by the retry executor"))
	backoff, _ := meter.Float64Histogram("batchgen.retry.backoff",
		metric.WithDescription("Backoff delay before the next attempt"),
		metric.WithUnit("ms"))
	exhausted, _ := meter.Int64Counter("batchgen.retry.exhausted",
		metric.WithDescription("Retry loops that used every attempt"))
	gaveUp, _ := meter.Int64Counter("batchgen.retry.gave_up",
		metric.WithDescription("Retry loops ended by a non-retryable error"))

	return &RetryMetrics{
		attempts:  attempts,
		backoff:   backoff,
		exhausted: exhausted,
		gaveUp:    gaveUp,
	}
}

func (m *RetryMetrics) OnAttempt(ctx context.Context, ev retry.Event) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("retry", ev.Attempt > 0)))
}

func (m *RetryMetrics) OnBackoff(ctx context.Context, ev retry.Event) {
	m.backoff.Record(ctx, float64(ev.Delay.Milliseconds()), kindAttr(ev))
}

func (m *RetryMetrics) OnSuccess(context.Context, retry.Event) {}

func (m *RetryMetrics) OnGiveUp(ctx context.Context, ev retry.Event) {
	m.gaveUp.Add(ctx, 1, kindAttr(ev))
}

func (m *RetryMetrics) OnExhausted(ctx context.Context, ev retry.Event) {
	m.exhausted.Add(ctx, 1, kindAttr(ev))
}

func kindAttr(ev retry.Event) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("error_kind", string(ev.Kind)))
}

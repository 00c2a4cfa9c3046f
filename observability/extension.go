package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/ext"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/store"
)

const meterName = "github.com/stonezone/batchgen/observability"

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.JobEnqueued    = (*MetricsExtension)(nil)
	_ ext.JobCompleted   = (*MetricsExtension)(nil)
	_ ext.JobFailed      = (*MetricsExtension)(nil)
	_ ext.JobCancelled   = (*MetricsExtension)(nil)
	_ ext.BatchStarted   = (*MetricsExtension)(nil)
	_ ext.BatchCompleted = (*MetricsExtension)(nil)
	_ ext.BatchCancelled = (*MetricsExtension)(nil)
	_ ext.SweepCompleted = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters with
// OpenTelemetry. Register it on the ext.Registry to track enqueue,
// completion, failure and cancellation counts, batch outcomes and sweeps.
type MetricsExtension struct {
	JobEnqueued    metric.Int64Counter
	JobCompleted   metric.Int64Counter
	JobFailed      metric.Int64Counter
	JobCancelled   metric.Int64Counter
	BatchStarted   metric.Int64Counter
	BatchCompleted metric.Int64Counter
	BatchCancelled metric.Int64Counter
	SweepRemoved   metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the given meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// On error the API hands back a noop instrument.
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		JobEnqueued:    counter("batchgen.job.enqueued", "Jobs accepted by the worker pool"),
		JobCompleted:   counter("batchgen.job.completed", "Jobs whose callback returned a result"),
		JobFailed:      counter("batchgen.job.failed", "Jobs whose callback returned an error"),
		JobCancelled:   counter("batchgen.job.cancelled", "Jobs cancelled while queued or running"),
		BatchStarted:   counter("batchgen.batch.started", "Batches submitted to the pool"),
		BatchCompleted: counter("batchgen.batch.completed", "Batches whose jobs all finished"),
		BatchCancelled: counter("batchgen.batch.cancelled", "Batches cancelled by an operator"),
		SweepRemoved:   counter("batchgen.sweep.removed", "Status records removed by age sweeps"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.JobEnqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	m.JobCancelled.Add(ctx, 1, jobAttrs(j))
	return nil
}

// ── Batch lifecycle hooks ───────────────────────────

// OnBatchStarted implements ext.BatchStarted.
func (m *MetricsExtension) OnBatchStarted(ctx context.Context, b *batch.Batch) error {
	m.BatchStarted.Add(ctx, 1, batchAttrs(b))
	return nil
}

// OnBatchCompleted implements ext.BatchCompleted.
func (m *MetricsExtension) OnBatchCompleted(ctx context.Context, b *batch.Batch) error {
	m.BatchCompleted.Add(ctx, 1, batchAttrs(b))
	return nil
}

// OnBatchCancelled implements ext.BatchCancelled.
func (m *MetricsExtension) OnBatchCancelled(ctx context.Context, b *batch.Batch) error {
	m.BatchCancelled.Add(ctx, 1, batchAttrs(b))
	return nil
}

// ── Maintenance hooks ───────────────────────────────

// OnSweepCompleted implements ext.SweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(ctx context.Context, res *store.SweepResult) error {
	if res != nil && res.Removed > 0 {
		m.SweepRemoved.Add(ctx, int64(res.Removed))
	}
	return nil
}

func jobAttrs(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_name", j.Name))
}

func batchAttrs(b *batch.Batch) metric.AddOption {
	return metric.WithAttributes(attribute.String("batch_name", b.Name))
}

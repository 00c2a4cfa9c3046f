package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/ext"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/store"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Extension)(nil)
	_ ext.JobEnqueued    = (*Extension)(nil)
	_ ext.JobStarted     = (*Extension)(nil)
	_ ext.JobCompleted   = (*Extension)(nil)
	_ ext.JobFailed      = (*Extension)(nil)
	_ ext.JobCancelled   = (*Extension)(nil)
	_ ext.BatchCreated   = (*Extension)(nil)
	_ ext.BatchStarted   = (*Extension)(nil)
	_ ext.BatchCompleted = (*Extension)(nil)
	_ ext.BatchCancelled = (*Extension)(nil)
	_ ext.BatchDeleted   = (*Extension)(nil)
	_ ext.SweepCompleted = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	At         time.Time      `json:"at"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes audit events to a slog.Logger, one record per event,
// at a level derived from the event severity.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder returns a LogRecorder, using slog.Default when logger is nil.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

// Record implements Recorder.
func (l *LogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("action", evt.Action),
		slog.String("category", evt.Category),
		slog.String("resource", evt.Resource),
		slog.String("resource_id", evt.ResourceID),
		slog.String("outcome", evt.Outcome),
	}
	if evt.Reason != "" {
		attrs = append(attrs, slog.String("reason", evt.Reason))
	}
	keys := make([]string, 0, len(evt.Metadata))
	for k := range evt.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, evt.Metadata[k]))
	}

	l.logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges batchgen lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID, CategoryJob, nil,
		"job_name", j.Name,
		"batch_id", j.BatchID,
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID, CategoryJob, nil,
		"job_name", j.Name,
		"batch_id", j.BatchID,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID, CategoryJob, nil,
		"job_name", j.Name,
		"batch_id", j.BatchID,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID, CategoryJob, jobErr,
		"job_name", j.Name,
		"batch_id", j.BatchID,
	)
}

// OnJobCancelled implements ext.JobCancelled.
func (e *Extension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobCancelled, SeverityWarning, OutcomeFailure,
		ResourceJob, j.ID, CategoryJob, nil,
		"job_name", j.Name,
		"batch_id", j.BatchID,
		"started", !j.CancelledBeforeStart(),
	)
}

// ── Batch lifecycle hooks ───────────────────────────

// OnBatchCreated implements ext.BatchCreated.
func (e *Extension) OnBatchCreated(ctx context.Context, b *batch.Batch) error {
	return e.record(ctx, ActionBatchCreated, SeverityInfo, OutcomeSuccess,
		ResourceBatch, b.ID, CategoryBatch, nil,
		"batch_name", b.Name,
		"total_jobs", b.TotalJobs,
		"estimated_cost", b.EstimatedCost,
	)
}

// OnBatchStarted implements ext.BatchStarted.
func (e *Extension) OnBatchStarted(ctx context.Context, b *batch.Batch) error {
	return e.record(ctx, ActionBatchStarted, SeverityInfo, OutcomeSuccess,
		ResourceBatch, b.ID, CategoryBatch, nil,
		"batch_name", b.Name,
		"total_jobs", b.TotalJobs,
	)
}

// OnBatchCompleted implements ext.BatchCompleted. A batch whose jobs all
// ran still completes when some failed; the outcome reflects that.
func (e *Extension) OnBatchCompleted(ctx context.Context, b *batch.Batch) error {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if b.FailedJobs > 0 {
		outcome, severity = OutcomeFailure, SeverityWarning
	}
	return e.record(ctx, ActionBatchCompleted, severity, outcome,
		ResourceBatch, b.ID, CategoryBatch, nil,
		"batch_name", b.Name,
		"completed_jobs", b.CompletedJobs,
		"failed_jobs", b.FailedJobs,
		"total_jobs", b.TotalJobs,
	)
}

// OnBatchCancelled implements ext.BatchCancelled.
func (e *Extension) OnBatchCancelled(ctx context.Context, b *batch.Batch) error {
	return e.record(ctx, ActionBatchCancelled, SeverityWarning, OutcomeFailure,
		ResourceBatch, b.ID, CategoryBatch, nil,
		"batch_name", b.Name,
		"completed_jobs", b.CompletedJobs,
		"cancelled_jobs", b.CancelledJobs,
	)
}

// OnBatchDeleted implements ext.BatchDeleted.
func (e *Extension) OnBatchDeleted(ctx context.Context, batchID string) error {
	return e.record(ctx, ActionBatchDeleted, SeverityWarning, OutcomeSuccess,
		ResourceBatch, batchID, CategoryBatch, nil,
	)
}

// ── Store hooks ─────────────────────────────────────

// OnSweepCompleted implements ext.SweepCompleted.
func (e *Extension) OnSweepCompleted(ctx context.Context, res *store.SweepResult) error {
	outcome := OutcomeSuccess
	if len(res.Errors) > 0 {
		outcome = OutcomeFailure
	}
	return e.record(ctx, ActionSweepCompleted, SeverityInfo, outcome,
		ResourceStatusDir, "", CategoryStore, nil,
		"scanned", res.Scanned,
		"removed", res.Removed,
		"errors", len(res.Errors),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
// Recorder failures are logged, never returned.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		if s, isStr := kvPairs[i+1].(string); isStr && s == "" {
			continue
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		At:         e.now(),
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}

// Package ext defines the extension system for batchgen.
// Extensions are notified of lifecycle events (job enqueued, completed,
// failed, batch started, etc.) and can react to them with logging,
// metrics or audit trails.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/store"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is accepted by the worker pool.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job's callback returns a result.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job's callback returns an error.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobCancelled is called when a job is cancelled while queued or running.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Batch lifecycle hooks
// ──────────────────────────────────────────────────

// BatchCreated is called after a batch and its jobs are persisted.
type BatchCreated interface {
	OnBatchCreated(ctx context.Context, b *batch.Batch) error
}

// BatchStarted is called after every job of a batch has been submitted.
type BatchStarted interface {
	OnBatchStarted(ctx context.Context, b *batch.Batch) error
}

// BatchCompleted is called once when a batch's finished jobs reach its total.
type BatchCompleted interface {
	OnBatchCompleted(ctx context.Context, b *batch.Batch) error
}

// BatchCancelled is called when a pending or running batch is cancelled.
type BatchCancelled interface {
	OnBatchCancelled(ctx context.Context, b *batch.Batch) error
}

// BatchDeleted is called after a terminal batch is removed.
type BatchDeleted interface {
	OnBatchDeleted(ctx context.Context, batchID string) error
}

// ──────────────────────────────────────────────────
// Other hooks
// ──────────────────────────────────────────────────

// SweepCompleted is called after a status sweep finishes.
type SweepCompleted interface {
	OnSweepCompleted(ctx context.Context, res *store.SweepResult) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

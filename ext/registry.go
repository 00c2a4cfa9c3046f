package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/store"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobCancelledEntry struct {
	name string
	hook JobCancelled
}

type batchCreatedEntry struct {
	name string
	hook BatchCreated
}

type batchStartedEntry struct {
	name string
	hook BatchStarted
}

type batchCompletedEntry struct {
	name string
	hook BatchCompleted
}

type batchCancelledEntry struct {
	name string
	hook BatchCancelled
}

type batchDeletedEntry struct {
	name string
	hook BatchDeleted
}

type sweepCompletedEntry struct {
	name string
	hook SweepCompleted
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. Extensions are sorted into per-hook slices at registration so
// emit calls only visit the ones that care.
//
// Register is not safe to call concurrently with the Emit methods; register
// everything before starting the pool.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued    []jobEnqueuedEntry
	jobStarted     []jobStartedEntry
	jobCompleted   []jobCompletedEntry
	jobFailed      []jobFailedEntry
	jobCancelled   []jobCancelledEntry
	batchCreated   []batchCreatedEntry
	batchStarted   []batchStartedEntry
	batchCompleted []batchCompletedEntry
	batchCancelled []batchCancelledEntry
	batchDeleted   []batchDeletedEntry
	sweepCompleted []sweepCompletedEntry
	shutdown       []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(JobCancelled); ok {
		r.jobCancelled = append(r.jobCancelled, jobCancelledEntry{name, h})
	}
	if h, ok := e.(BatchCreated); ok {
		r.batchCreated = append(r.batchCreated, batchCreatedEntry{name, h})
	}
	if h, ok := e.(BatchStarted); ok {
		r.batchStarted = append(r.batchStarted, batchStartedEntry{name, h})
	}
	if h, ok := e.(BatchCompleted); ok {
		r.batchCompleted = append(r.batchCompleted, batchCompletedEntry{name, h})
	}
	if h, ok := e.(BatchCancelled); ok {
		r.batchCancelled = append(r.batchCancelled, batchCancelledEntry{name, h})
	}
	if h, ok := e.(BatchDeleted); ok {
		r.batchDeleted = append(r.batchDeleted, batchDeletedEntry{name, h})
	}
	if h, ok := e.(SweepCompleted); ok {
		r.sweepCompleted = append(r.sweepCompleted, sweepCompletedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobCancelled notifies all extensions that implement JobCancelled.
func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCancelled {
		if err := e.hook.OnJobCancelled(ctx, j); err != nil {
			r.logHookError("OnJobCancelled", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Batch event emitters
// ──────────────────────────────────────────────────

// EmitBatchCreated notifies all extensions that implement BatchCreated.
func (r *Registry) EmitBatchCreated(ctx context.Context, b *batch.Batch) {
	for _, e := range r.batchCreated {
		if err := e.hook.OnBatchCreated(ctx, b); err != nil {
			r.logHookError("OnBatchCreated", e.name, err)
		}
	}
}

// EmitBatchStarted notifies all extensions that implement BatchStarted.
func (r *Registry) EmitBatchStarted(ctx context.Context, b *batch.Batch) {
	for _, e := range r.batchStarted {
		if err := e.hook.OnBatchStarted(ctx, b); err != nil {
			r.logHookError("OnBatchStarted", e.name, err)
		}
	}
}

// EmitBatchCompleted notifies all extensions that implement BatchCompleted.
func (r *Registry) EmitBatchCompleted(ctx context.Context, b *batch.Batch) {
	for _, e := range r.batchCompleted {
		if err := e.hook.OnBatchCompleted(ctx, b); err != nil {
			r.logHookError("OnBatchCompleted", e.name, err)
		}
	}
}

// EmitBatchCancelled notifies all extensions that implement BatchCancelled.
func (r *Registry) EmitBatchCancelled(ctx context.Context, b *batch.Batch) {
	for _, e := range r.batchCancelled {
		if err := e.hook.OnBatchCancelled(ctx, b); err != nil {
			r.logHookError("OnBatchCancelled", e.name, err)
		}
	}
}

// EmitBatchDeleted notifies all extensions that implement BatchDeleted.
func (r *Registry) EmitBatchDeleted(ctx context.Context, batchID string) {
	for _, e := range r.batchDeleted {
		if err := e.hook.OnBatchDeleted(ctx, batchID); err != nil {
			r.logHookError("OnBatchDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitSweepCompleted notifies all extensions that implement SweepCompleted.
func (r *Registry) EmitSweepCompleted(ctx context.Context, res *store.SweepResult) {
	for _, e := range r.sweepCompleted {
		if err := e.hook.OnSweepCompleted(ctx, res); err != nil {
			r.logHookError("OnSweepCompleted", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors never reach the caller.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

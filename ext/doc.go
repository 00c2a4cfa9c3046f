// Package ext defines the extension system for batchgen.
//
// # Implementing an Extension
//
//	type Notifier struct{}
//
//	func (n *Notifier) Name() string { return "notifier" }
//
//	func (n *Notifier) OnBatchCompleted(ctx context.Context, b *batch.Batch) error {
//	    log.Printf("batch %s done: %d ok, %d failed", b.ID, b.CompletedJobs, b.FailedJobs)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobEnqueued]: job was accepted by the worker pool
//   - [JobStarted]: a worker began executing the job
//   - [JobCompleted]: the callback returned a result
//   - [JobFailed]: the callback returned an error
//   - [JobCancelled]: the job was cancelled
//
// # Batch Lifecycle Hooks
//
//   - [BatchCreated], [BatchStarted], [BatchCompleted], [BatchCancelled], [BatchDeleted]
//
// # Other Hooks
//
//   - [SweepCompleted]: an age sweep of the status directory finished
//   - [Shutdown]: the engine is shutting down
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never interrupt job execution.
package ext

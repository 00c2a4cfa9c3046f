package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued    = "job.enqueued"
	ActionJobStarted     = "job.started"
	ActionJobCompleted   = "job.completed"
	ActionJobFailed      = "job.failed"
	ActionJobCancelled   = "job.cancelled"
	ActionBatchCreated   = "batch.created"
	ActionBatchStarted   = "batch.started"
	ActionBatchCompleted = "batch.completed"
	ActionBatchCancelled = "batch.cancelled"
	ActionBatchDeleted   = "batch.deleted"
	ActionSweepCompleted = "sweep.completed"
)

// Audit event categories group related actions.
const (
	CategoryJob   = "batchgen.job"
	CategoryBatch = "batchgen.batch"
	CategoryStore = "batchgen.store"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob       = "job"
	ResourceBatch     = "batch"
	ResourceStatusDir = "status_dir"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobCancelled,
		ActionBatchCreated,
		ActionBatchStarted,
		ActionBatchCompleted,
		ActionBatchCancelled,
		ActionBatchDeleted,
		ActionSweepCompleted,
	}
}

package job

import "context"

// Store records job status. Implementations must be safe for concurrent
// use; the durable implementation also coordinates across processes.
type Store interface {
	// Write persists the full record for j, replacing any previous one.
	Write(ctx context.Context, j *Job) error

	// Read returns the latest recorded status for the job. The second
	// result is false when no valid record exists.
	Read(ctx context.Context, jobID string) (*Job, bool)
}

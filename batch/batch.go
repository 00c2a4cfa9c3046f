package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/job"
)

// Status represents the lifecycle state of a batch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	// StatusFailed means the batch could not be submitted to the pool.
	// Batches whose jobs all fail still end completed.
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is completed, failed or cancelled.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Batch is a named group of jobs submitted and tracked together.
type Batch struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Jobs          []*job.Job `json:"jobs"`
	Status        Status     `json:"status"`
	TotalJobs     int        `json:"total_jobs"`
	CompletedJobs int        `json:"completed_jobs"`
	FailedJobs    int        `json:"failed_jobs"`
	CancelledJobs int        `json:"cancelled_jobs"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	EstimatedCost float64    `json:"estimated_cost"`
}

// Progress returns the fraction of jobs that reached completed or failed.
func (b *Batch) Progress() float64 {
	if b.TotalJobs == 0 {
		return 0
	}
	return float64(b.CompletedJobs+b.FailedJobs) / float64(b.TotalJobs)
}

// Clone returns a deep copy of b.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	out := *b
	out.Jobs = make([]*job.Job, len(b.Jobs))
	for i, j := range b.Jobs {
		out.Jobs[i] = j.Clone()
	}
	if b.StartedAt != nil {
		t := *b.StartedAt
		out.StartedAt = &t
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Validate checks the fields every stored batch record must carry.
func (b *Batch) Validate() error {
	switch {
	case b.ID == "":
		return fmt.Errorf("%w: batch: missing id", batchgen.ErrInvalidRecord)
	case b.Name == "":
		return fmt.Errorf("%w: batch %s: missing name", batchgen.ErrInvalidRecord, b.ID)
	case !b.Status.Valid():
		return fmt.Errorf("%w: batch %s: unknown status %q", batchgen.ErrInvalidRecord, b.ID, b.Status)
	case b.CreatedAt.IsZero():
		return fmt.Errorf("%w: batch %s: missing created_at", batchgen.ErrInvalidRecord, b.ID)
	case b.TotalJobs != len(b.Jobs):
		return fmt.Errorf("%w: batch %s: total_jobs %d != %d jobs", batchgen.ErrInvalidRecord, b.ID, b.TotalJobs, len(b.Jobs))
	case b.CompletedJobs+b.FailedJobs > b.TotalJobs:
		return fmt.Errorf("%w: batch %s: finished jobs exceed total", batchgen.ErrInvalidRecord, b.ID)
	}
	return nil
}

// Recount recomputes the counters from the job statuses.
func (b *Batch) Recount() {
	b.TotalJobs = len(b.Jobs)
	b.CompletedJobs, b.FailedJobs, b.CancelledJobs = 0, 0, 0
	for _, j := range b.Jobs {
		switch j.Status {
		case job.StatusCompleted:
			b.CompletedJobs++
		case job.StatusFailed:
			b.FailedJobs++
		case job.StatusCancelled:
			b.CancelledJobs++
		}
	}
}

// Store persists batch records.
type Store interface {
	// SaveBatch writes the full batch record, replacing any previous one.
	SaveBatch(ctx context.Context, b *Batch) error

	// LoadBatch reads a batch record. It returns an error wrapping
	// batchgen.ErrBatchNotFound when none exists.
	LoadBatch(ctx context.Context, batchID string) (*Batch, error)

	// DeleteBatch removes a batch record. Deleting a missing record is
	// not an error.
	DeleteBatch(ctx context.Context, batchID string) error

	// ListBatches returns every stored batch in no particular order.
	ListBatches(ctx context.Context) ([]*Batch, error)
}

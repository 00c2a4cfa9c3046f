package job

import (
	"context"
	"fmt"
	"time"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/id"
	"github.com/stonezone/batchgen/payload"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to be picked up by a worker.
	StatusPending Status = "pending"
	// StatusRunning means a worker is currently executing the job.
	StatusRunning Status = "running"
	// StatusCompleted means the callback returned a result.
	StatusCompleted Status = "completed"
	// StatusFailed means the callback returned an error.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was cancelled before or while running.
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

// Terminal reports whether no further transitions can happen from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Callback is the unit of work executed for a job. It receives a copy of
// the job's parameters and should observe ctx for cancellation.
type Callback func(ctx context.Context, params payload.Map) (payload.Map, error)

// Job represents a unit of work and its recorded status.
type Job struct {
	ID           string       `json:"id"`
	BatchID      string       `json:"batch_id,omitempty"`
	Name         string       `json:"name"`
	Params       payload.Map  `json:"params"`
	Status       Status       `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Result       *payload.Map `json:"result,omitempty"`
	Progress     float64      `json:"progress"`
}

// New returns a pending job with a fresh ID. A nil params map is treated
// as empty.
func New(name string, params *payload.Map) *Job {
	j := &Job{
		ID:        id.NewJobID().String(),
		Name:      name,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if params != nil {
		j.Params = *params.Clone()
	}
	return j
}

// MarkRunning records that a worker picked the job up.
func (j *Job) MarkRunning(now time.Time) {
	j.Status = StatusRunning
	j.StartedAt = &now
	j.Progress = 0
}

// MarkCompleted records a successful result.
func (j *Job) MarkCompleted(now time.Time, result payload.Map) {
	j.Status = StatusCompleted
	j.CompletedAt = &now
	j.Result = &result
	j.ErrorMessage = ""
	j.Progress = 1
}

// MarkFailed records a callback error.
func (j *Job) MarkFailed(now time.Time, msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	j.Status = StatusFailed
	j.CompletedAt = &now
	j.ErrorMessage = msg
	j.Result = nil
	j.Progress = 0
}

// MarkCancelled records a cancellation. A job that never ran gets
// StartedAt equal to CompletedAt; see CancelledBeforeStart.
func (j *Job) MarkCancelled(now time.Time) {
	if j.StartedAt == nil {
		start := now
		j.StartedAt = &start
	}
	j.Status = StatusCancelled
	j.CompletedAt = &now
	j.Result = nil
	j.ErrorMessage = ""
}

// CancelledBeforeStart reports whether j was cancelled while still queued.
func (j *Job) CancelledBeforeStart() bool {
	return j.Status == StatusCancelled &&
		j.StartedAt != nil && j.CompletedAt != nil &&
		j.StartedAt.Equal(*j.CompletedAt)
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Params = *j.Params.Clone()
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.Result != nil {
		out.Result = j.Result.Clone()
	}
	return &out
}

// Validate checks required fields and the status invariants: StartedAt is
// set exactly when the job is not pending, Result exactly when completed and
// ErrorMessage exactly when failed.
func (j *Job) Validate() error {
	switch {
	case j.ID == "":
		return fmt.Errorf("%w: job: missing id", batchgen.ErrInvalidRecord)
	case j.Name == "":
		return j.invalid("missing name")
	case !j.Status.Valid():
		return j.invalid(fmt.Sprintf("unknown status %q", j.Status))
	case j.CreatedAt.IsZero():
		return j.invalid("missing created_at")
	case j.Progress < 0 || j.Progress > 1:
		return j.invalid(fmt.Sprintf("progress %v out of range", j.Progress))
	}

	started := j.StartedAt != nil
	if started == (j.Status == StatusPending) {
		if started {
			return j.invalid("pending job has started_at")
		}
		return j.invalid(string(j.Status) + " job has no started_at")
	}
	if (j.Result != nil) != (j.Status == StatusCompleted) {
		return j.invalid("result must be set exactly when completed")
	}
	if (j.ErrorMessage != "") != (j.Status == StatusFailed) {
		return j.invalid("error_message must be set exactly when failed")
	}
	return nil
}

func (j *Job) invalid(reason string) error {
	return fmt.Errorf("%w: job %s: %s", batchgen.ErrInvalidRecord, j.ID, reason)
}
